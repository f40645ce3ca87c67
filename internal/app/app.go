// Package app implements the application layer for bake.
package app

import (
	"context"
	"errors"
	"time"

	"go.trai.ch/bake/internal/adapters/telemetry" //nolint:depguard // Wired in app layer
	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/bake/internal/core/ports"
	"go.trai.ch/bake/internal/engine/manager"
	"go.trai.ch/bake/internal/engine/scheduler"
	"go.trai.ch/zerr"
)

// App represents the main application logic.
type App struct {
	configLoader ports.ConfigLoader
	manager      *manager.Manager
	scheduler    *scheduler.Scheduler
	logger       ports.Logger
	telemetry    ports.Telemetry
}

// RunOptions configures a build run.
type RunOptions struct {
	// ConfigPath is the buildfile or the directory holding it.
	ConfigPath string
	// Steps selects steps by name. Empty runs every step.
	Steps []string
	// NoCache runs every step without consulting or updating the cache.
	NoCache bool
	// Force discards the records of the selected steps before running them.
	Force bool
	// Verbosity raises (positive) or lowers (negative) the log level.
	Verbosity int
	// JSONLogs switches console logging to JSON.
	JSONLogs bool
}

// CleanOptions configures a clean run.
type CleanOptions struct {
	ConfigPath string
	Steps      []string
}

// configurableLogger is implemented by loggers whose output can be tuned at runtime.
type configurableLogger interface {
	SetLevel(level domain.LogLevel)
	SetJSON(enable bool)
	SetFile(cfg domain.LogFile) error
}

// New creates a new App instance.
func New(
	loader ports.ConfigLoader,
	mgr *manager.Manager,
	sched *scheduler.Scheduler,
	logger ports.Logger,
	tel ports.Telemetry,
) *App {
	return &App{
		configLoader: loader,
		manager:      mgr,
		scheduler:    sched,
		logger:       logger,
		telemetry:    tel,
	}
}

// Run executes the selected steps of the buildfile.
func (a *App) Run(ctx context.Context, opts RunOptions) (err error) {
	if l, ok := a.logger.(configurableLogger); ok {
		l.SetLevel(domain.LogLevelForVerbosity(opts.Verbosity))
		l.SetJSON(opts.JSONLogs)
	}

	project, steps, err := a.prepare(opts.ConfigPath, opts.Steps)
	if err != nil {
		return err
	}

	if project.Log.Path != "" {
		if l, ok := a.logger.(configurableLogger); ok {
			if err := l.SetFile(project.Log); err != nil {
				return zerr.With(zerr.Wrap(err, "failed to open log file"), "path", project.Log.Path)
			}
		}
	}

	if opts.NoCache {
		a.manager.DisableCache()
	}
	if opts.Force {
		a.manager.TaintCache()
	}

	bridge := telemetry.NewLogBridge(a.logger)
	shutdown := telemetry.Setup(bridge)
	defer func() {
		shutdownCtx := context.WithoutCancel(ctx)
		err = errors.Join(err, shutdown(shutdownCtx), a.telemetry.Close())
	}()

	start := time.Now()
	results, err := a.scheduler.Run(ctx, steps, scheduler.Options{
		Verbosity: opts.Verbosity,
		Config:    map[string]any{"fingerprint": string(project.Fingerprint)},
	})
	if err != nil {
		return errors.Join(domain.ErrBuildExecutionFailed, err)
	}

	cached := 0
	for _, r := range results {
		if r.Outcome == domain.OutcomeHit {
			cached++
		}
	}
	a.logger.Info("build finished",
		"steps", len(results),
		"cached", cached,
		"duration", time.Since(start).Round(time.Millisecond).String(),
	)
	return nil
}

// Clean discards the cache records of the selected steps.
func (a *App) Clean(_ context.Context, opts CleanOptions) error {
	_, steps, err := a.prepare(opts.ConfigPath, opts.Steps)
	if err != nil {
		return err
	}

	for _, step := range steps {
		if err := a.manager.TaintSlot(step.Name); err != nil {
			return zerr.With(zerr.Wrap(err, "failed to clean step"), "step", step.Name)
		}
	}
	return nil
}

// prepare loads the buildfile, resolves the selected steps and configures the manager.
func (a *App) prepare(configPath string, names []string) (*domain.Project, []domain.Step, error) {
	project, err := a.configLoader.Load(configPath)
	if err != nil {
		return nil, nil, zerr.Wrap(err, "failed to load configuration")
	}

	steps, err := selectSteps(project, names)
	if err != nil {
		return nil, nil, err
	}

	if err := a.manager.SetFingerprintMode(project.Fingerprint); err != nil {
		return nil, nil, err
	}
	if project.Cache != "" {
		if err := a.manager.SetCacheRoot(project.Cache); err != nil {
			return nil, nil, err
		}
	}
	if err := a.manager.SetFolders(project.Source, project.Build, project.Dist); err != nil {
		return nil, nil, err
	}
	return project, steps, nil
}

// selectSteps returns the named steps in declaration order, or every step when names is empty.
func selectSteps(project *domain.Project, names []string) ([]domain.Step, error) {
	if len(names) == 0 {
		return project.Steps, nil
	}

	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		if _, ok := project.Step(name); !ok {
			return nil, zerr.With(zerr.Wrap(domain.ErrStepNotFound, "step is not declared in the buildfile"), "step", name)
		}
		wanted[name] = true
	}

	steps := make([]domain.Step, 0, len(wanted))
	for _, s := range project.Steps {
		if wanted[s.Name] {
			steps = append(steps, s)
		}
	}
	return steps, nil
}
