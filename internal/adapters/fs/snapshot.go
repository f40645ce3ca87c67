package fs

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/spf13/afero"
	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/bake/internal/core/ports"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

var _ ports.Snapshotter = (*Snapshotter)(nil)

// Snapshotter builds FileSets from a live tree and copies tracked files between roots.
type Snapshotter struct {
	fs       afero.Fs
	walker   *Walker
	resolver *Resolver
	workers  int

	mu            sync.Mutex
	fingerprinter map[domain.FingerprintMode]ports.Fingerprinter
}

// Option configures a Snapshotter.
type Option func(*Snapshotter)

// WithWorkers limits how many files are fingerprinted concurrently.
func WithWorkers(n int) Option {
	return func(s *Snapshotter) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithFingerprinter overrides the fingerprinter used for its mode.
func WithFingerprinter(fp ports.Fingerprinter) Option {
	return func(s *Snapshotter) {
		s.fingerprinter[fp.Mode()] = fp
	}
}

// NewSnapshotter creates a Snapshotter over afs.
func NewSnapshotter(afs afero.Fs, opts ...Option) *Snapshotter {
	walker := NewWalker(afs)
	s := &Snapshotter{
		fs:            afs,
		walker:        walker,
		resolver:      NewResolver(afs, walker),
		workers:       runtime.GOMAXPROCS(0),
		fingerprinter: make(map[domain.FingerprintMode]ports.Fingerprinter),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot resolves patterns under root and fingerprints every selected file.
func (s *Snapshotter) Snapshot(root string, patterns []string, mode domain.FingerprintMode) (*domain.FileSet, error) {
	fp, err := s.fingerprinterFor(mode)
	if err != nil {
		return nil, err
	}

	paths, err := s.resolver.Resolve(root, patterns)
	if err != nil {
		return nil, err
	}

	prints := make([]domain.Fingerprint, len(paths))
	g := new(errgroup.Group)
	g.SetLimit(s.workers)
	for i, rel := range paths {
		g.Go(func() error {
			sum, err := fp.Fingerprint(filepath.Join(root, filepath.FromSlash(rel)))
			if err != nil {
				return err
			}
			prints[i] = sum
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, zerr.With(zerr.Wrap(domain.ErrMissingInput, err.Error()), "root", root)
		}
		return nil, err
	}

	entries := make(map[string]domain.Fingerprint, len(paths))
	for i, rel := range paths {
		entries[rel] = prints[i]
	}
	return domain.NewFileSet(mode, entries), nil
}

// Exclude keeps the given directories out of every later snapshot.
func (s *Snapshotter) Exclude(dirs ...string) {
	s.walker.Exclude(dirs...)
}

// CopyAll copies every file tracked by set from srcRoot to dstRoot.
// Parent directories are created, and permissions and modification times are preserved.
func (s *Snapshotter) CopyAll(set *domain.FileSet, srcRoot, dstRoot string) error {
	for _, rel := range set.Paths() {
		src := filepath.Join(srcRoot, filepath.FromSlash(rel))
		dst := filepath.Join(dstRoot, filepath.FromSlash(rel))
		if err := s.copyFile(src, dst); err != nil {
			return zerr.With(zerr.With(zerr.Wrap(err, domain.ErrCopyFailed.Error()), "src", src), "dst", dst)
		}
	}
	return nil
}

func (s *Snapshotter) copyFile(src, dst string) error {
	info, err := s.fs.Stat(src)
	if err != nil {
		return err
	}

	if err := s.fs.MkdirAll(filepath.Dir(dst), domain.DirPerm); err != nil {
		return err
	}

	in, err := s.fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close() //nolint:errcheck // Read-only file

	if err := s.fs.Remove(dst); err != nil && !os.IsNotExist(err) {
		return err
	}

	out, err := s.fs.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if err := copyBuffered(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	return s.fs.Chtimes(dst, info.ModTime(), info.ModTime())
}

func (s *Snapshotter) fingerprinterFor(mode domain.FingerprintMode) (ports.Fingerprinter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if fp, ok := s.fingerprinter[mode]; ok {
		return fp, nil
	}
	fp, err := NewFingerprinter(s.fs, mode)
	if err != nil {
		return nil, err
	}
	s.fingerprinter[mode] = fp
	return fp, nil
}
