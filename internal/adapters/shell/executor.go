// Package shell provides the process executor for step commands.
package shell

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/bake/internal/core/ports"
	"go.trai.ch/zerr"
)

// inheritedEnvVars are the system variables passed through to step commands.
var inheritedEnvVars = map[string]struct{}{
	"HOME":   {},
	"LANG":   {},
	"PATH":   {},
	"TERM":   {},
	"TMPDIR": {},
	"USER":   {},
}

// Executor implements ports.Executor using os/exec.
type Executor struct {
	logger  ports.Logger
	environ func() []string
}

// NewExecutor creates a new Executor.
func NewExecutor(logger ports.Logger) *Executor {
	return &Executor{
		logger:  logger,
		environ: os.Environ,
	}
}

// Execute runs cmd and waits for it to exit.
// Each output line is logged and the raw streams are copied to the vertex in ctx, if any.
func (e *Executor) Execute(ctx context.Context, cmd ports.Command) error {
	if len(cmd.Args) == 0 {
		return zerr.With(zerr.Wrap(domain.ErrMissingCommand, "nothing to execute"), "step", cmd.Name)
	}

	env := resolveEnvironment(e.environ(), cmd.Env)
	name := cmd.Args[0]
	executable := name
	if !filepath.IsAbs(name) && !strings.Contains(name, string(filepath.Separator)) {
		if lp, err := lookPath(name, env); err == nil {
			executable = lp
		}
	}

	proc := exec.CommandContext(ctx, executable, cmd.Args[1:]...) //nolint:gosec // user provided command
	proc.Args[0] = name
	proc.Dir = cmd.Dir
	proc.Env = env

	stdoutLog := &logWriter{logger: e.logger, step: cmd.Name, warn: false}
	stderrLog := &logWriter{logger: e.logger, step: cmd.Name, warn: true}
	defer func() {
		_ = stdoutLog.Close()
		_ = stderrLog.Close()
	}()

	var stdout, stderr io.Writer = stdoutLog, stderrLog
	if v, ok := ports.VertexFromContext(ctx); ok {
		stdout = io.MultiWriter(stdoutLog, v.Stdout())
		stderr = io.MultiWriter(stderrLog, v.Stderr())
	}
	proc.Stdout = stdout
	proc.Stderr = stderr

	e.logger.Debug("running command", "step", cmd.Name, "args", cmd.Args, "dir", cmd.Dir)
	if err := proc.Run(); err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return zerr.With(zerr.With(zerr.Wrap(domain.ErrCommandFailed, err.Error()), "exit_code", exitCode), "step", cmd.Name)
	}
	return nil
}

// logWriter logs complete lines. A trailing partial line is logged on Close.
type logWriter struct {
	logger ports.Logger
	step   string
	warn   bool

	mu  sync.Mutex
	buf []byte
}

func (w *logWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.logLine(w.buf[:i])
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}

func (w *logWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.buf) > 0 {
		w.logLine(w.buf)
		w.buf = nil
	}
	return nil
}

func (w *logWriter) logLine(line []byte) {
	msg := strings.TrimSuffix(string(line), "\r")
	if w.warn {
		w.logger.Warn(msg, "step", w.step)
		return
	}
	w.logger.Info(msg, "step", w.step)
}

// resolveEnvironment keeps the inherited system variables and applies extra on top.
// A PATH in extra is prepended to the system PATH.
func resolveEnvironment(sysEnv, extra []string) []string {
	envMap := make(map[string]string)
	for _, entry := range sysEnv {
		if k, v, ok := strings.Cut(entry, "="); ok {
			if _, inherited := inheritedEnvVars[k]; inherited {
				envMap[k] = v
			}
		}
	}

	for _, entry := range extra {
		k, v, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		if sysPath := envMap["PATH"]; k == "PATH" && sysPath != "" {
			v = v + string(os.PathListSeparator) + sysPath
		}
		envMap[k] = v
	}

	result := make([]string, 0, len(envMap))
	for k, v := range envMap {
		result = append(result, k+"="+v)
	}
	return result
}

// lookPath searches for an executable in the PATH of env.
func lookPath(file string, env []string) (string, error) {
	var path string
	for _, e := range env {
		if p, ok := strings.CutPrefix(e, "PATH="); ok {
			path = p
			break
		}
	}
	if path == "" {
		return "", exec.ErrNotFound
	}

	for _, dir := range filepath.SplitList(path) {
		if dir == "" {
			dir = "."
		}
		candidate := filepath.Join(dir, file)
		if err := findExecutable(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", exec.ErrNotFound
}

func findExecutable(file string) error {
	d, err := os.Stat(file)
	if err != nil {
		return err
	}
	if m := d.Mode(); !m.IsDir() && m&0o111 != 0 {
		return nil
	}
	return os.ErrPermission
}
