package manager

import (
	"context"
	"maps"

	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/bake/internal/core/ports"
)

// Action is a build action. It observes and changes the filesystem only through its step.
type Action func(ctx context.Context, step *BuildStep) error

// ValueAction is an action that may produce a value. Cached value actions must return
// an empty value, since a value cannot be replayed from the cache.
type ValueAction func(ctx context.Context, step *BuildStep) (any, error)

// BuildStep is the context handed to an action.
type BuildStep struct {
	// BuildPath is the working root of the action.
	BuildPath string
	// DistPath is the root for distributable artifacts.
	DistPath string
	// Config holds free-form options for the action.
	Config map[string]any
	// Verbosity is the CLI verbosity level.
	Verbosity int
	// Logger is the leveled logger of the build.
	Logger ports.Logger

	source *sourceGuard
}

// SourcePath returns the project source root.
// It fails with domain.ErrSourceRevoked once any cached step has been entered.
func (s *BuildStep) SourcePath() (string, error) {
	if s.source == nil {
		return "", domain.ErrFoldersNotSet
	}
	return s.source.get()
}

// WithBuildPath returns a copy of the step whose build path is replaced.
func (s *BuildStep) WithBuildPath(path string) *BuildStep {
	cp := *s
	cp.Config = maps.Clone(s.Config)
	cp.BuildPath = path
	return &cp
}
