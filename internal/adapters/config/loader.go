// Package config provides the buildfile loader for bake.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/bake/internal/core/ports"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

const (
	defaultSource = "."
	defaultBuild  = "build"
	defaultDist   = "dist"
)

var stepName = regexp.MustCompile(`^[A-Za-z0-9_-][A-Za-z0-9_.-]*$`)

// Loader implements ports.ConfigLoader for bake.yaml files.
type Loader struct {
	logger ports.Logger
}

// NewLoader creates a new Loader.
func NewLoader(logger ports.Logger) *Loader {
	return &Loader{logger: logger}
}

// Load reads the buildfile at path. A directory path selects the bake.yaml inside it.
func (l *Loader) Load(path string) (*domain.Project, error) {
	path, err := resolvePath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path) //nolint:gosec // path is provided by user
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, zerr.With(zerr.Wrap(domain.ErrConfigNotFound, "no buildfile at path"), "path", path)
		}
		return nil, zerr.With(zerr.Wrap(err, domain.ErrConfigReadFailed.Error()), "path", path)
	}

	project, err := Parse(filepath.Dir(path), data)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "invalid buildfile"), "path", path)
	}

	if l.logger != nil {
		l.logger.Debug("loaded buildfile", "path", path, "steps", len(project.Steps))
	}
	return project, nil
}

// Parse decodes and validates buildfile content. Relative paths are resolved against root.
func Parse(root string, data []byte) (*domain.Project, error) {
	var bakefile Bakefile
	if err := yaml.Unmarshal(data, &bakefile); err != nil {
		return nil, zerr.Wrap(err, domain.ErrConfigParseFailed.Error())
	}

	if bakefile.Version != "" && bakefile.Version != SupportedVersion {
		return nil, zerr.With(zerr.Wrap(domain.ErrUnsupportedConfigVersion, "unknown schema version"),
			"version", bakefile.Version)
	}

	mode, err := domain.ParseFingerprintMode(bakefile.Fingerprint)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(domain.ErrInvalidFingerprintMode, "unknown fingerprint mode"),
			"fingerprint", bakefile.Fingerprint)
	}

	root, err = filepath.Abs(root)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to resolve buildfile directory"), "root", root)
	}

	project := &domain.Project{
		Root:        root,
		Source:      resolve(root, bakefile.Source, defaultSource),
		Build:       resolve(root, bakefile.Build, defaultBuild),
		Dist:        resolve(root, bakefile.Dist, defaultDist),
		Cache:       resolve(root, bakefile.Cache, ""),
		Fingerprint: mode,
	}
	if bakefile.Log != nil {
		project.Log = domain.LogFile{
			Path:       resolve(root, bakefile.Log.Path, ""),
			MaxSizeMB:  bakefile.Log.MaxSizeMB,
			MaxBackups: bakefile.Log.MaxBackups,
			Compress:   bakefile.Log.Compress,
		}
	}

	steps, err := parseSteps(bakefile.Steps)
	if err != nil {
		return nil, err
	}
	project.Steps = steps
	return project, nil
}

func parseSteps(dtos []StepDTO) ([]domain.Step, error) {
	if len(dtos) == 0 {
		return nil, zerr.Wrap(domain.ErrNoStepsDefined, "buildfile must declare at least one step")
	}

	seen := make(map[string]struct{}, len(dtos))
	steps := make([]domain.Step, 0, len(dtos))
	for i, dto := range dtos {
		if !stepName.MatchString(dto.Name) {
			return nil, zerr.With(zerr.With(zerr.Wrap(domain.ErrInvalidStepName, "step names may only contain letters, digits, '_', '-' and '.'"),
				"step", dto.Name), "index", i)
		}
		if _, dup := seen[dto.Name]; dup {
			return nil, zerr.With(zerr.Wrap(domain.ErrDuplicateStep, "step declared twice"), "step", dto.Name)
		}
		seen[dto.Name] = struct{}{}

		if len(dto.Cmd) == 0 {
			return nil, zerr.With(zerr.Wrap(domain.ErrMissingCommand, "cmd must list the program and its arguments"), "step", dto.Name)
		}

		step := domain.Step{
			Name:       dto.Name,
			Inputs:     dto.Inputs,
			Outputs:    dto.Outputs,
			Version:    dto.Version,
			Invalidate: dto.Invalidate,
			Cmd:        dto.Cmd,
			Env:        dto.Env,
		}
		if dto.Timeout != nil {
			timeout := time.Duration(*dto.Timeout) * time.Second
			step.Timeout = &timeout
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func resolvePath(path string) (string, error) {
	if path == "" {
		path = domain.BuildFileName
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", zerr.With(zerr.Wrap(err, "failed to resolve buildfile path"), "path", path)
	}
	if info, err := os.Stat(abs); err == nil && info.IsDir() {
		abs = filepath.Join(abs, domain.BuildFileName)
	}
	return abs, nil
}

func resolve(root, path, fallback string) string {
	if path == "" {
		path = fallback
	}
	if path == "" {
		return ""
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(root, path)
}
