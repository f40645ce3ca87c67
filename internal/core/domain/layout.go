package domain

import "path/filepath"

const (
	// BakeDirName is the name of the internal workspace directory.
	BakeDirName = ".bake"

	// CacheDirName is the name of the cache directory.
	CacheDirName = "cache"

	// BuildFileName is the name of the project buildfile.
	BuildFileName = "bake.yaml"

	// RecordFileName is the name of the per-slot metadata file.
	RecordFileName = "cache.json"

	// DataDirName is the name of the per-slot data directory.
	DataDirName = "data"

	// ScratchPrefix prefixes temporary slot directories under the cache root.
	ScratchPrefix = ".scratch-"

	// DirPerm is the default permission for directories (rwxr-x---).
	DirPerm = 0o750

	// FilePerm is the default permission for files (rw-r--r--).
	FilePerm = 0o644
)

// DefaultCachePath returns the cache root used when none is configured.
// It sits next to the build directory: <parent of build>/.bake/cache.
func DefaultCachePath(buildDir string) string {
	return filepath.Join(filepath.Dir(filepath.Clean(buildDir)), BakeDirName, CacheDirName)
}
