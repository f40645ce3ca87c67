// Package ports defines the core interfaces for the application.
package ports

import (
	"context"
)

// Command is a process invocation for a build step.
type Command struct {
	// Name identifies the step in logs.
	Name string
	// Args is the argv of the process. Args[0] is resolved through PATH.
	Args []string
	// Dir is the working directory.
	Dir string
	// Env holds extra "KEY=VALUE" pairs appended to the process environment.
	Env []string
}

// Executor defines the interface for running step commands.
//
//go:generate go run go.uber.org/mock/mockgen -source=executor.go -destination=mocks/mock_executor.go -package=mocks
type Executor interface {
	// Execute runs the command and blocks until it exits.
	//
	// Output is streamed to the logger and to the telemetry vertex found in ctx.
	// It returns an error if the process cannot be started or exits non-zero.
	Execute(ctx context.Context, cmd Command) error
}
