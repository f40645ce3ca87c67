package shell

import "go.trai.ch/bake/internal/core/ports"

// NewExecutorWithEnviron creates an Executor inheriting from environ instead of os.Environ.
func NewExecutorWithEnviron(logger ports.Logger, environ []string) *Executor {
	e := NewExecutor(logger)
	e.environ = func() []string { return environ }
	return e
}

var (
	ResolveEnvironment = resolveEnvironment
	LookPath           = lookPath
)
