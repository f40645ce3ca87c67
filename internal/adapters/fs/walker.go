// Package fs provides file system adapters for selecting, fingerprinting and copying files.
package fs

import (
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
	"go.trai.ch/bake/internal/core/domain"
)

// Walker provides file walking functionality over an afero filesystem.
type Walker struct {
	fs afero.Fs

	mu      sync.RWMutex
	exclude map[string]bool
}

// NewWalker creates a new Walker.
func NewWalker(afs afero.Fs) *Walker {
	return &Walker{fs: afs}
}

// WalkFiles yields the regular files under root as slash-separated paths relative to root.
// Symlinks are followed only when they point at regular files. VCS directories and the
// bake metadata directory are skipped. Walking stops at the first error, which is yielded.
func (w *Walker) WalkFiles(root string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		stopped := false
		err := afero.Walk(w.fs, root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}

			if info.IsDir() {
				if path != root && (skipDir(info.Name()) || w.excluded(path)) {
					return filepath.SkipDir
				}
				return nil
			}

			if !w.isRegular(path, info) {
				return nil
			}

			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}

			if !yield(filepath.ToSlash(rel), nil) {
				stopped = true
				return filepath.SkipAll
			}
			return nil
		})
		if err != nil && !stopped {
			yield("", err)
		}
	}
}

// Exclude skips the given directories, and everything below them, in later walks.
func (w *Walker) Exclude(dirs ...string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.exclude == nil {
		w.exclude = make(map[string]bool, len(dirs))
	}
	for _, dir := range dirs {
		w.exclude[filepath.Clean(dir)] = true
	}
}

func (w *Walker) excluded(path string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.exclude[filepath.Clean(path)]
}

// isRegular reports whether path is a regular file, resolving symlinks.
func (w *Walker) isRegular(path string, info fs.FileInfo) bool {
	if info.Mode()&os.ModeSymlink == 0 {
		return info.Mode().IsRegular()
	}
	target, err := w.fs.Stat(path)
	if err != nil {
		return false
	}
	return target.Mode().IsRegular()
}

func skipDir(name string) bool {
	switch name {
	case ".git", ".jj", domain.BakeDirName:
		return true
	default:
		return false
	}
}
