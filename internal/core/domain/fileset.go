package domain

import (
	"maps"
	"slices"
)

// FileSet is an immutable snapshot of files keyed by slash-separated relative path.
type FileSet struct {
	mode    FingerprintMode
	entries map[string]Fingerprint
}

// FileSetDiff lists the paths that differ between two FileSets.
type FileSetDiff struct {
	Added   []string
	Removed []string
	Changed []string
}

// Empty reports whether the diff contains no differences.
func (d FileSetDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// NewFileSet creates a FileSet from the given entries. The map is copied.
func NewFileSet(mode FingerprintMode, entries map[string]Fingerprint) *FileSet {
	cp := make(map[string]Fingerprint, len(entries))
	maps.Copy(cp, entries)
	return &FileSet{mode: mode, entries: cp}
}

// FileSetFromRecord rehydrates a persisted path to fingerprint mapping.
// It does not touch the filesystem.
func FileSetFromRecord(mode FingerprintMode, record map[string]Fingerprint) *FileSet {
	return NewFileSet(mode, record)
}

// Mode returns the fingerprint mode the set was built with.
func (s *FileSet) Mode() FingerprintMode {
	return s.mode
}

// Len returns the number of tracked files.
func (s *FileSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Get returns the fingerprint for a path.
func (s *FileSet) Get(path string) (Fingerprint, bool) {
	if s == nil {
		return Fingerprint{}, false
	}
	fp, ok := s.entries[path]
	return fp, ok
}

// Paths returns the tracked paths in sorted order.
func (s *FileSet) Paths() []string {
	if s == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(s.entries))
}

// Record returns a copy of the mapping suitable for persistence.
func (s *FileSet) Record() map[string]Fingerprint {
	out := make(map[string]Fingerprint, s.Len())
	if s != nil {
		maps.Copy(out, s.entries)
	}
	return out
}

// Equal reports whether both sets track the same paths with identical fingerprints.
func (s *FileSet) Equal(other *FileSet) bool {
	if s.Len() != other.Len() {
		return false
	}
	if s == nil || other == nil {
		return true
	}
	for path, fp := range s.entries {
		ofp, ok := other.entries[path]
		if !ok || ofp != fp {
			return false
		}
	}
	return true
}

// Diff compares s (the reference) against other.
// Added holds paths only present in other, Removed holds paths only present in s.
func (s *FileSet) Diff(other *FileSet) FileSetDiff {
	var d FileSetDiff
	for _, path := range s.Paths() {
		ofp, ok := other.Get(path)
		if !ok {
			d.Removed = append(d.Removed, path)
			continue
		}
		if fp, _ := s.Get(path); fp != ofp {
			d.Changed = append(d.Changed, path)
		}
	}
	for _, path := range other.Paths() {
		if _, ok := s.Get(path); !ok {
			d.Added = append(d.Added, path)
		}
	}
	return d
}
