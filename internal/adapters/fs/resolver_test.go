package fs_test

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/bake/internal/adapters/fs"
	"go.trai.ch/bake/internal/core/domain"
)

func writeFiles(t *testing.T, afs afero.Fs, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, afs.MkdirAll(filepath.Dir(path), 0o750))
		require.NoError(t, afero.WriteFile(afs, path, []byte(content), 0o644))
	}
}

func newResolver(afs afero.Fs) *fs.Resolver {
	return fs.NewResolver(afs, fs.NewWalker(afs))
}

func TestResolver_Patterns(t *testing.T) {
	afs := afero.NewMemMapFs()
	writeFiles(t, afs, "/src", map[string]string{
		"requirements.txt":   "six==1.14.0",
		"setup.py":           "setup()",
		"pkg/a.go":           "package pkg",
		"pkg/sub/b.go":       "package sub",
		"pkg/sub/c.txt":      "c",
		"docs/readme.md":     "# docs",
		".git/config":        "[core]",
		".bake/cache/x/data": "cached",
	})
	r := newResolver(afs)

	tests := []struct {
		name     string
		patterns []string
		want     []string
	}{
		{"literal file", []string{"requirements.txt"}, []string{"requirements.txt"}},
		{"directory", []string{"pkg/"}, []string{"pkg/a.go", "pkg/sub/b.go", "pkg/sub/c.txt"}},
		{"single level glob", []string{"pkg/*.go"}, []string{"pkg/a.go"}},
		{"recursive glob", []string{"**/*.go"}, []string{"pkg/a.go", "pkg/sub/b.go"}},
		{"glob without matches", []string{"*.rs"}, []string{}},
		{"glob under missing dir", []string{"missing/*.go"}, []string{}},
		{"duplicates collapsed", []string{"setup.py", "*.py"}, []string{"setup.py"}},
		{"empty list", []string{}, []string{}},
		{"whole tree", nil, []string{
			"docs/readme.md", "pkg/a.go", "pkg/sub/b.go", "pkg/sub/c.txt", "requirements.txt", "setup.py",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve("/src", tt.patterns)
			require.NoError(t, err)
			if len(tt.want) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolver_Errors(t *testing.T) {
	afs := afero.NewMemMapFs()
	writeFiles(t, afs, "/src", map[string]string{
		"lib/six.py": "six",
		"file.txt":   "x",
	})
	r := newResolver(afs)

	tests := []struct {
		name    string
		pattern string
		wantErr error
	}{
		{"missing literal", "requirements.txt", domain.ErrMissingInput},
		{"directory without separator", "lib", domain.ErrExpectedFileIsDirectory},
		{"missing directory", "out/", domain.ErrMissingInput},
		{"file with separator", "file.txt/", domain.ErrMissingInput},
		{"absolute", "/etc/passwd", domain.ErrInvalidPattern},
		{"escaping", "../secret", domain.ErrInvalidPattern},
		{"bad glob", "[a-", domain.ErrInvalidPattern},
		{"empty", "", domain.ErrInvalidPattern},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve("/src", []string{tt.pattern})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestMatchesGlobPattern(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		pattern string
		want    bool
	}{
		{"star matches one level", "a.go", "*.go", true},
		{"star does not cross directories", "pkg/a.go", "*.go", false},
		{"double star matches zero dirs", "a.go", "**/*.go", true},
		{"double star matches many dirs", "a/b/c/d.go", "**/*.go", true},
		{"double star in middle", "src/x/y/main.go", "src/**/main.go", true},
		{"trailing double star", "src/x/y", "src/**", true},
		{"prefix mismatch", "lib/x.go", "src/**/*.go", false},
		{"question mark", "a1.txt", "a?.txt", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, fs.MatchesGlobPattern(tt.path, tt.pattern))
		})
	}
}
