package ports

import "go.trai.ch/bake/internal/core/domain"

// Fingerprinter computes per-file change metadata.
//
//go:generate go run go.uber.org/mock/mockgen -source=fingerprint.go -destination=mocks/mock_fingerprint.go -package=mocks
type Fingerprinter interface {
	// Mode reports which fingerprint shape the implementation produces.
	Mode() domain.FingerprintMode
	// Fingerprint computes the fingerprint of the regular file at path.
	Fingerprint(path string) (domain.Fingerprint, error)
}

// Snapshotter builds FileSets from a live tree and copies them between roots.
type Snapshotter interface {
	// Snapshot selects files under root with the given patterns and fingerprints them
	// with the given mode. A nil pattern list selects the whole tree.
	Snapshot(root string, patterns []string, mode domain.FingerprintMode) (*domain.FileSet, error)
	// Exclude keeps the given absolute directories out of every later snapshot.
	Exclude(dirs ...string)
	// CopyAll copies every file tracked by set from srcRoot to dstRoot.
	CopyAll(set *domain.FileSet, srcRoot, dstRoot string) error
}
