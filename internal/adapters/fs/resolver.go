package fs

import (
	"errors"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/afero"
	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/zerr"
)

// Resolver expands declared file patterns into concrete relative paths.
//
// A pattern ending in a path separator selects every regular file below that directory.
// A pattern containing '*', '?' or '[' is a glob where "**" spans any number of directories.
// Any other pattern names a single regular file that must exist.
type Resolver struct {
	fs     afero.Fs
	walker *Walker
}

// NewResolver creates a new Resolver.
func NewResolver(afs afero.Fs, walker *Walker) *Resolver {
	return &Resolver{fs: afs, walker: walker}
}

// Resolve returns the sorted, de-duplicated slash-separated paths selected by patterns under root.
// A nil pattern list selects the whole tree.
func (r *Resolver) Resolve(root string, patterns []string) ([]string, error) {
	if patterns == nil {
		return r.walk(root, "")
	}

	unique := make(map[string]struct{})
	for _, pattern := range patterns {
		matches, err := r.resolvePattern(root, pattern)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			unique[m] = struct{}{}
		}
	}

	result := make([]string, 0, len(unique))
	for p := range unique {
		result = append(result, p)
	}
	slices.Sort(result)
	return result, nil
}

func (r *Resolver) resolvePattern(root, pattern string) ([]string, error) {
	clean, dirOnly, err := normalizePattern(pattern)
	if err != nil {
		return nil, err
	}

	switch {
	case dirOnly:
		return r.resolveDir(root, clean, pattern)
	case isGlob(clean):
		return r.resolveGlob(root, clean)
	default:
		return r.resolveFile(root, clean, pattern)
	}
}

func (r *Resolver) resolveDir(root, dir, pattern string) ([]string, error) {
	full := filepath.Join(root, filepath.FromSlash(dir))
	info, err := r.fs.Stat(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, zerr.With(zerr.Wrap(domain.ErrMissingInput, "directory does not exist"), "pattern", pattern)
		}
		return nil, zerr.With(zerr.Wrap(err, "failed to stat directory"), "path", full)
	}
	if !info.IsDir() {
		return nil, zerr.With(zerr.Wrap(domain.ErrMissingInput, "pattern with trailing separator does not name a directory"), "pattern", pattern)
	}
	return r.walk(root, dir)
}

func (r *Resolver) resolveFile(root, file, pattern string) ([]string, error) {
	full := filepath.Join(root, filepath.FromSlash(file))
	info, err := r.fs.Stat(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, zerr.With(zerr.Wrap(domain.ErrMissingInput, "declared file does not exist"), "pattern", pattern)
		}
		return nil, zerr.With(zerr.Wrap(err, "failed to stat file"), "path", full)
	}
	if info.IsDir() {
		return nil, zerr.With(zerr.Wrap(domain.ErrExpectedFileIsDirectory, "declared file is a directory"), "pattern", pattern)
	}
	if !info.Mode().IsRegular() {
		return nil, zerr.With(zerr.Wrap(domain.ErrMissingInput, "declared file is not a regular file"), "pattern", pattern)
	}
	return []string{file}, nil
}

func (r *Resolver) resolveGlob(root, pattern string) ([]string, error) {
	base := globBase(pattern)
	if base != "" {
		exists, err := afero.DirExists(r.fs, filepath.Join(root, filepath.FromSlash(base)))
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, "failed to stat glob base"), "pattern", pattern)
		}
		if !exists {
			return nil, nil
		}
	}

	candidates, err := r.walk(root, base)
	if err != nil {
		return nil, err
	}

	var matches []string
	for _, c := range candidates {
		if matchesGlobPattern(c, pattern) {
			matches = append(matches, c)
		}
	}
	return matches, nil
}

// walk lists regular files below root/sub, relative to root.
func (r *Resolver) walk(root, sub string) ([]string, error) {
	dir := root
	if sub != "" {
		dir = filepath.Join(root, filepath.FromSlash(sub))
	}

	var files []string
	for rel, err := range r.walker.WalkFiles(dir) {
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, "failed to walk directory"), "path", dir)
		}
		if sub != "" {
			rel = path.Join(sub, rel)
		}
		files = append(files, rel)
	}
	return files, nil
}

// normalizePattern converts a pattern to a clean slash path and reports whether it selects a directory.
func normalizePattern(pattern string) (string, bool, error) {
	p := filepath.ToSlash(pattern)
	dirOnly := strings.HasSuffix(p, "/")

	if p == "" || path.IsAbs(p) || filepath.IsAbs(pattern) {
		return "", false, zerr.With(zerr.Wrap(domain.ErrInvalidPattern, "pattern must be a non-empty relative path"), "pattern", pattern)
	}

	clean := path.Clean(p)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", false, zerr.With(zerr.Wrap(domain.ErrInvalidPattern, "pattern escapes its root"), "pattern", pattern)
	}
	if clean == "." {
		clean = ""
		if !dirOnly {
			return "", false, zerr.With(zerr.Wrap(domain.ErrInvalidPattern, "pattern names the root itself"), "pattern", pattern)
		}
	}

	if isGlob(clean) {
		if _, err := path.Match(clean, ""); err != nil {
			return "", false, zerr.With(zerr.Wrap(domain.ErrInvalidPattern, err.Error()), "pattern", pattern)
		}
	}
	return clean, dirOnly, nil
}

func isGlob(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[")
}

// globBase returns the leading directories of pattern that contain no glob characters.
func globBase(pattern string) string {
	parts := strings.Split(pattern, "/")
	var base []string
	for _, part := range parts[:len(parts)-1] {
		if isGlob(part) {
			break
		}
		base = append(base, part)
	}
	return strings.Join(base, "/")
}

// matchesGlobPattern matches a slash path against a pattern where "**" spans directories.
func matchesGlobPattern(name, pattern string) bool {
	return matchGlobParts(strings.Split(name, "/"), strings.Split(pattern, "/"))
}

func matchGlobParts(nameParts, patternParts []string) bool {
	if len(patternParts) == 0 {
		return len(nameParts) == 0
	}

	if patternParts[0] == "**" {
		if matchGlobParts(nameParts, patternParts[1:]) {
			return true
		}
		return len(nameParts) > 0 && matchGlobParts(nameParts[1:], patternParts)
	}

	if len(nameParts) == 0 {
		return false
	}

	matched, err := path.Match(patternParts[0], nameParts[0])
	if err != nil || !matched {
		return false
	}
	return matchGlobParts(nameParts[1:], patternParts[1:])
}
