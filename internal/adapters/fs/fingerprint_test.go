package fs_test

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/bake/internal/adapters/fs"
	"go.trai.ch/bake/internal/core/domain"
)

func TestFingerprinter_ContentModes(t *testing.T) {
	afs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(afs, "/f.txt", []byte("hello"), 0o644))

	tests := []struct {
		mode domain.FingerprintMode
		want string
	}{
		{domain.FingerprintContent, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"},
		{domain.FingerprintFast, "26c7827d889f6da3"},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			fp, err := fs.NewFingerprinter(afs, tt.mode)
			require.NoError(t, err)
			assert.Equal(t, tt.mode, fp.Mode())

			got, err := fp.Fingerprint("/f.txt")
			require.NoError(t, err)
			assert.Equal(t, domain.Fingerprint{Hash: tt.want}, got)
		})
	}
}

func TestFingerprinter_ContentChangesWithOneByte(t *testing.T) {
	afs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(afs, "/f.txt", []byte("abc"), 0o644))
	fp, err := fs.NewFingerprinter(afs, domain.FingerprintContent)
	require.NoError(t, err)

	before, err := fp.Fingerprint("/f.txt")
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(afs, "/f.txt", []byte("abd"), 0o644))
	after, err := fp.Fingerprint("/f.txt")
	require.NoError(t, err)

	assert.NotEqual(t, before, after)
}

func TestFingerprinter_Stat(t *testing.T) {
	afs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(afs, "/f.txt", []byte("12345"), 0o644))
	mtime := time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, afs.Chtimes("/f.txt", mtime, mtime))

	fp, err := fs.NewFingerprinter(afs, domain.FingerprintStat)
	require.NoError(t, err)

	got, err := fp.Fingerprint("/f.txt")
	require.NoError(t, err)

	assert.Empty(t, got.Hash)
	assert.Equal(t, int64(5), got.Size)
	assert.Equal(t, mtime.UnixNano(), got.MTime)
	// Memory filesystems expose no change time.
	assert.Equal(t, got.MTime, got.CTime)
}

func TestFingerprinter_Errors(t *testing.T) {
	afs := afero.NewMemMapFs()

	_, err := fs.NewFingerprinter(afs, "md5")
	require.ErrorIs(t, err, domain.ErrInvalidFingerprintMode)

	fp, err := fs.NewFingerprinter(afs, domain.FingerprintContent)
	require.NoError(t, err)
	_, err = fp.Fingerprint("/missing")
	require.Error(t, err)
}
