package config

// SupportedVersion is the only buildfile schema version understood by the loader.
const SupportedVersion = "1"

// Bakefile represents the structure of the bake.yaml buildfile.
type Bakefile struct {
	Version     string    `yaml:"version"`
	Source      string    `yaml:"source"`
	Build       string    `yaml:"build"`
	Dist        string    `yaml:"dist"`
	Cache       string    `yaml:"cache"`
	Fingerprint string    `yaml:"fingerprint"`
	Log         *LogDTO   `yaml:"log"`
	Steps       []StepDTO `yaml:"steps"`
}

// LogDTO configures the rotating log file.
type LogDTO struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	Compress   bool   `yaml:"compress"`
}

// StepDTO represents a step definition in the buildfile.
// A missing inputs or outputs list selects the whole tree; an empty list selects nothing.
type StepDTO struct {
	Name       string            `yaml:"name"`
	Inputs     []string          `yaml:"inputs"`
	Outputs    []string          `yaml:"outputs"`
	Timeout    *int64            `yaml:"timeout"`
	Version    string            `yaml:"version"`
	Invalidate any               `yaml:"invalidate"`
	Cmd        []string          `yaml:"cmd"`
	Env        map[string]string `yaml:"env"`
}
