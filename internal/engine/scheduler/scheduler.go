// Package scheduler runs the steps of a buildfile through the cache manager.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/bake/internal/core/ports"
	"go.trai.ch/bake/internal/engine/manager"
	"go.trai.ch/zerr"
)

// StepStatus represents the status of a step.
type StepStatus string

const (
	// StatusPending indicates the step is waiting to be executed.
	StatusPending StepStatus = "Pending"
	// StatusRunning indicates the step is currently executing.
	StatusRunning StepStatus = "Running"
	// StatusCompleted indicates the step command ran successfully.
	StatusCompleted StepStatus = "Completed"
	// StatusFailed indicates the step failed.
	StatusFailed StepStatus = "Failed"
	// StatusCached indicates the step outputs were replayed from cache.
	StatusCached StepStatus = "Cached"
)

// Environment variables exported to step commands.
const (
	EnvBuildPath  = "BAKE_BUILD_PATH"
	EnvDistPath   = "BAKE_DIST_PATH"
	EnvSourcePath = "BAKE_SOURCE_PATH"
	EnvStep       = "BAKE_STEP"
)

// StepResult describes one executed step.
type StepResult struct {
	Name     string
	Outcome  domain.Outcome
	Duration time.Duration
}

// Options configures a run.
type Options struct {
	// Verbosity is handed to every build step.
	Verbosity int
	// Config is handed to every build step.
	Config map[string]any
}

// Scheduler executes steps in declaration order, each wrapped by the cache manager.
type Scheduler struct {
	manager  *manager.Manager
	executor ports.Executor
	logger   ports.Logger

	mu         sync.RWMutex
	stepStatus map[string]StepStatus
}

// NewScheduler creates a new Scheduler.
func NewScheduler(mgr *manager.Manager, executor ports.Executor, logger ports.Logger) *Scheduler {
	return &Scheduler{
		manager:    mgr,
		executor:   executor,
		logger:     logger,
		stepStatus: make(map[string]StepStatus),
	}
}

// Run executes steps one after another and stops at the first failure.
// The manager folders must be set.
func (s *Scheduler) Run(ctx context.Context, steps []domain.Step, opts Options) ([]StepResult, error) {
	s.initStepStatuses(steps)

	build, err := s.manager.NewStep(opts.Config, opts.Verbosity)
	if err != nil {
		return nil, err
	}

	results := make([]StepResult, 0, len(steps))
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return results, zerr.Wrap(err, "build interrupted")
		}

		s.updateStatus(step.Name, StatusRunning)
		start := time.Now()
		outcome, err := s.cachedStep(step).Execute(ctx, build)
		elapsed := time.Since(start)
		results = append(results, StepResult{Name: step.Name, Outcome: outcome, Duration: elapsed})
		s.logger.Debug("step finished", "step", step.Name, "outcome", string(outcome), "duration", elapsed)

		if err != nil {
			s.updateStatus(step.Name, StatusFailed)
			return results, zerr.With(zerr.Wrap(err, "step execution failed"), "step", step.Name)
		}
		if outcome == domain.OutcomeHit {
			s.updateStatus(step.Name, StatusCached)
		} else {
			s.updateStatus(step.Name, StatusCompleted)
		}
	}
	return results, nil
}

// cachedStep wraps the command of step into a cached action.
func (s *Scheduler) cachedStep(step domain.Step) *manager.CachedStep {
	opts := []manager.CacheOption{
		manager.Name(step.Name),
		manager.Version(step.Version),
	}
	if step.Inputs != nil {
		opts = append(opts, manager.Inputs(step.Inputs...))
	}
	if step.Outputs != nil {
		opts = append(opts, manager.Outputs(step.Outputs...))
	}
	if step.Timeout != nil {
		opts = append(opts, manager.Timeout(*step.Timeout))
	}
	if step.Invalidate != nil {
		opts = append(opts, manager.InvalidationKey(step.Invalidate))
	}

	return s.manager.Cache(func(ctx context.Context, bs *manager.BuildStep) error {
		return s.executor.Execute(ctx, ports.Command{
			Name: step.Name,
			Args: step.Cmd,
			Dir:  bs.BuildPath,
			Env:  stepEnv(step, bs),
		})
	}, opts...)
}

func stepEnv(step domain.Step, bs *manager.BuildStep) []string {
	env := []string{
		EnvBuildPath + "=" + bs.BuildPath,
		EnvDistPath + "=" + bs.DistPath,
		EnvStep + "=" + step.Name,
	}
	if src, err := bs.SourcePath(); err == nil {
		env = append(env, EnvSourcePath+"="+src)
	}
	for k, v := range step.Env {
		env = append(env, k+"="+v)
	}
	return env
}

func (s *Scheduler) initStepStatuses(steps []domain.Step) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clear(s.stepStatus)
	for _, step := range steps {
		s.stepStatus[step.Name] = StatusPending
	}
}

func (s *Scheduler) updateStatus(name string, status StepStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stepStatus[name] = status
}
