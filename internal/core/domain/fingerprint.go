package domain

import "strings"

// FingerprintMode selects how file change is detected.
type FingerprintMode string

const (
	// FingerprintContent hashes file bytes with SHA-256.
	FingerprintContent FingerprintMode = "content"
	// FingerprintFast hashes file bytes with xxHash64.
	FingerprintFast FingerprintMode = "fast"
	// FingerprintStat uses modification time, change time and size.
	FingerprintStat FingerprintMode = "stat"
)

// DefaultFingerprintMode is used when no mode is configured.
const DefaultFingerprintMode = FingerprintContent

// ParseFingerprintMode converts a configuration value into a FingerprintMode.
// An empty string selects the default mode.
func ParseFingerprintMode(s string) (FingerprintMode, error) {
	switch FingerprintMode(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return DefaultFingerprintMode, nil
	case FingerprintContent:
		return FingerprintContent, nil
	case FingerprintFast:
		return FingerprintFast, nil
	case FingerprintStat:
		return FingerprintStat, nil
	default:
		return "", ErrInvalidFingerprintMode
	}
}

// IsContent reports whether the mode produces a hash-shaped fingerprint.
func (m FingerprintMode) IsContent() bool {
	return m == FingerprintContent || m == FingerprintFast
}

// Fingerprint is the per-file metadata used to detect change.
// Content modes fill Hash; stat mode fills MTime, CTime and Size.
type Fingerprint struct {
	Hash  string `json:"hash,omitempty"`
	MTime int64  `json:"mtime,omitempty"`
	CTime int64  `json:"ctime,omitempty"`
	Size  int64  `json:"size,omitempty"`
}
