package domain

import "time"

// Project is a loaded buildfile with all paths made absolute.
type Project struct {
	Root        string
	Source      string
	Build       string
	Dist        string
	Cache       string
	Fingerprint FingerprintMode
	Log         LogFile
	Steps       []Step
}

// LogFile configures the rotating debug log.
type LogFile struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	Compress   bool
}

// Step is one cached build step declared in the buildfile.
type Step struct {
	Name       string
	Inputs     []string
	Outputs    []string
	Timeout    *time.Duration
	Version    string
	Invalidate any
	Cmd        []string
	Env        map[string]string
}

// Step returns the step with the given name.
func (p *Project) Step(name string) (Step, bool) {
	for _, s := range p.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return Step{}, false
}

// StepNames returns the step names in declaration order.
func (p *Project) StepNames() []string {
	names := make([]string, 0, len(p.Steps))
	for _, s := range p.Steps {
		names = append(names, s.Name)
	}
	return names
}
