package shell_test

import (
	"bytes"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/bake/internal/adapters/shell"
	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/bake/internal/core/ports"
	"go.trai.ch/bake/internal/core/ports/mocks"
	"go.uber.org/mock/gomock"
)

func newLogger(t *testing.T) *mocks.MockLogger {
	t.Helper()
	ctrl := gomock.NewController(t)
	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Debug(gomock.Any(), gomock.Any()).AnyTimes()
	return log
}

func shCommand(t *testing.T, script string, env ...string) ports.Command {
	t.Helper()
	return ports.Command{
		Name: "test-step",
		Args: []string{"sh", "-c", script},
		Dir:  t.TempDir(),
		Env:  env,
	}
}

func TestExecutor_StreamsLinesToLogger(t *testing.T) {
	tests := []struct {
		name   string
		script string
		expect func(log *mocks.MockLogger)
	}{
		{
			name:   "multiple lines",
			script: "echo line1; echo line2",
			expect: func(log *mocks.MockLogger) {
				gomock.InOrder(
					log.EXPECT().Info("line1", "step", "test-step"),
					log.EXPECT().Info("line2", "step", "test-step"),
				)
			},
		},
		{
			name:   "fragmented line",
			script: "printf part1; sleep 0.1; echo part2",
			expect: func(log *mocks.MockLogger) {
				log.EXPECT().Info("part1part2", "step", "test-step")
			},
		},
		{
			name:   "trailing partial line",
			script: "printf 'no newline'",
			expect: func(log *mocks.MockLogger) {
				log.EXPECT().Info("no newline", "step", "test-step")
			},
		},
		{
			name:   "stderr",
			script: "echo oops >&2",
			expect: func(log *mocks.MockLogger) {
				log.EXPECT().Warn("oops", "step", "test-step")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := newLogger(t)
			tt.expect(log)

			err := shell.NewExecutor(log).Execute(t.Context(), shCommand(t, tt.script))
			require.NoError(t, err)
		})
	}
}

func TestExecutor_Environment(t *testing.T) {
	log := newLogger(t)
	log.EXPECT().Info("/tmp/build-root []", "step", "test-step")

	environ := append(slices.Clone(os.Environ()), "SECRET_TOKEN=hunter2")
	executor := shell.NewExecutorWithEnviron(log, environ)

	cmd := shCommand(t, `echo "$BAKE_BUILD_PATH [$SECRET_TOKEN]"`, "BAKE_BUILD_PATH=/tmp/build-root")
	require.NoError(t, executor.Execute(t.Context(), cmd))
}

func TestExecutor_WorkingDirectory(t *testing.T) {
	cmd := shCommand(t, "pwd")
	want, err := filepath.EvalSymlinks(cmd.Dir)
	require.NoError(t, err)

	log := newLogger(t)
	log.EXPECT().Info(want, "step", "test-step")

	require.NoError(t, shell.NewExecutor(log).Execute(t.Context(), cmd))
}

func TestExecutor_Failure(t *testing.T) {
	log := newLogger(t)

	err := shell.NewExecutor(log).Execute(t.Context(), shCommand(t, "exit 3"))
	require.ErrorIs(t, err, domain.ErrCommandFailed)
	assert.Contains(t, err.Error(), "exit status 3")
}

func TestExecutor_MissingCommand(t *testing.T) {
	log := newLogger(t)

	err := shell.NewExecutor(log).Execute(t.Context(), ports.Command{Name: "empty"})
	require.ErrorIs(t, err, domain.ErrMissingCommand)
}

func TestExecutor_CopiesOutputToVertex(t *testing.T) {
	ctrl := gomock.NewController(t)
	log := newLogger(t)
	log.EXPECT().Info("out", "step", "test-step")
	log.EXPECT().Warn("err", "step", "test-step")

	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	vertex := mocks.NewMockVertex(ctrl)
	vertex.EXPECT().Stdout().Return(stdout)
	vertex.EXPECT().Stderr().Return(stderr)

	ctx := ports.ContextWithVertex(t.Context(), vertex)
	require.NoError(t, shell.NewExecutor(log).Execute(ctx, shCommand(t, "echo out; echo err >&2")))

	assert.Equal(t, "out\n", stdout.String())
	assert.Equal(t, "err\n", stderr.String())
}

func TestExecutor_PathFromCommandEnv(t *testing.T) {
	toolDir := t.TempDir()
	//nolint:gosec // Test requires executable file
	require.NoError(t, os.WriteFile(filepath.Join(toolDir, "bake-test-tool"), []byte("#!/bin/sh\necho success\n"), 0o700))

	log := newLogger(t)
	log.EXPECT().Info("success", "step", "tool")

	cmd := ports.Command{
		Name: "tool",
		Args: []string{"bake-test-tool"},
		Dir:  t.TempDir(),
		Env:  []string{"PATH=" + toolDir},
	}
	require.NoError(t, shell.NewExecutor(log).Execute(t.Context(), cmd))
}

func TestResolveEnvironment(t *testing.T) {
	env := shell.ResolveEnvironment(
		[]string{"PATH=/usr/bin", "HOME=/home/u", "AWS_SECRET=x", "malformed"},
		[]string{"PATH=/tools", "BAKE_DIST_PATH=/dist", "HOME=/override"},
	)
	slices.Sort(env)

	assert.Equal(t, []string{
		"BAKE_DIST_PATH=/dist",
		"HOME=/override",
		"PATH=/tools" + string(os.PathListSeparator) + "/usr/bin",
	}, env)
}

func TestLookPath(t *testing.T) {
	dir := t.TempDir()
	//nolint:gosec // Test requires executable file
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tool"), []byte("#!/bin/sh\n"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data"), []byte("x"), 0o600))

	path, err := shell.LookPath("tool", []string{"PATH=" + dir})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "tool"), path)

	_, err = shell.LookPath("data", []string{"PATH=" + dir})
	require.Error(t, err)

	_, err = shell.LookPath("tool", nil)
	require.Error(t, err)
}
