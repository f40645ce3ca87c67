package fs

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/spf13/afero"
	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/bake/internal/core/ports"
	"go.trai.ch/zerr"
)

var (
	_ ports.Fingerprinter = (*ContentFingerprinter)(nil)
	_ ports.Fingerprinter = (*StatFingerprinter)(nil)
)

const defaultBufferSize = 32 * 1024

var bufferPool = sync.Pool{
	New: func() any {
		buffer := make([]byte, defaultBufferSize)
		return &buffer
	},
}

// NewFingerprinter returns the fingerprinter for mode.
func NewFingerprinter(afs afero.Fs, mode domain.FingerprintMode) (ports.Fingerprinter, error) {
	switch mode {
	case domain.FingerprintContent:
		return NewContentFingerprinter(afs, mode, sha256.New), nil
	case domain.FingerprintFast:
		return NewContentFingerprinter(afs, mode, func() hash.Hash { return xxhash.New() }), nil
	case domain.FingerprintStat:
		return NewStatFingerprinter(afs), nil
	default:
		return nil, zerr.With(zerr.Wrap(domain.ErrInvalidFingerprintMode, "unknown mode"), "mode", string(mode))
	}
}

// ContentFingerprinter hashes file bytes.
type ContentFingerprinter struct {
	fs      afero.Fs
	mode    domain.FingerprintMode
	newHash func() hash.Hash
}

// NewContentFingerprinter creates a fingerprinter that digests file content with newHash.
func NewContentFingerprinter(afs afero.Fs, mode domain.FingerprintMode, newHash func() hash.Hash) *ContentFingerprinter {
	return &ContentFingerprinter{fs: afs, mode: mode, newHash: newHash}
}

// Mode returns the configured content mode.
func (c *ContentFingerprinter) Mode() domain.FingerprintMode {
	return c.mode
}

// Fingerprint returns the hex digest of the file content.
func (c *ContentFingerprinter) Fingerprint(path string) (domain.Fingerprint, error) {
	f, err := c.fs.Open(path)
	if err != nil {
		return domain.Fingerprint{}, zerr.With(zerr.Wrap(err, domain.ErrFingerprintFailed.Error()), "path", path)
	}
	defer f.Close() //nolint:errcheck // Read-only file

	h := c.newHash()
	if err := copyBuffered(h, f); err != nil {
		return domain.Fingerprint{}, zerr.With(zerr.Wrap(err, domain.ErrFingerprintFailed.Error()), "path", path)
	}

	return domain.Fingerprint{Hash: hex.EncodeToString(h.Sum(nil))}, nil
}

// StatFingerprinter uses file metadata instead of content.
// Change time falls back to modification time when the platform does not expose it.
type StatFingerprinter struct {
	fs afero.Fs
}

// NewStatFingerprinter creates a StatFingerprinter.
func NewStatFingerprinter(afs afero.Fs) *StatFingerprinter {
	return &StatFingerprinter{fs: afs}
}

// Mode returns domain.FingerprintStat.
func (s *StatFingerprinter) Mode() domain.FingerprintMode {
	return domain.FingerprintStat
}

// Fingerprint returns the mtime, ctime and size of the file.
func (s *StatFingerprinter) Fingerprint(path string) (domain.Fingerprint, error) {
	info, err := s.fs.Stat(path)
	if err != nil {
		return domain.Fingerprint{}, zerr.With(zerr.Wrap(err, domain.ErrFingerprintFailed.Error()), "path", path)
	}

	mtime := info.ModTime().UnixNano()
	ctime, ok := changeTime(info)
	if !ok {
		ctime = mtime
	}

	return domain.Fingerprint{
		MTime: mtime,
		CTime: ctime,
		Size:  info.Size(),
	}, nil
}

func copyBuffered(dst io.Writer, src io.Reader) error {
	bufPtr := bufferPool.Get().(*[]byte) //nolint:errcheck,forcetypeassert // Pool only holds *[]byte
	defer bufferPool.Put(bufPtr)

	_, err := io.CopyBuffer(dst, src, *bufPtr)
	return err
}
