package app_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/bake/internal/adapters/fs"
	"go.trai.ch/bake/internal/adapters/telemetry"
	"go.trai.ch/bake/internal/app"
	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/bake/internal/core/ports"
	"go.trai.ch/bake/internal/core/ports/mocks"
	"go.trai.ch/bake/internal/engine/manager"
	"go.trai.ch/bake/internal/engine/scheduler"
	"go.trai.ch/zerr"
	"go.uber.org/mock/gomock"
)

type testLogger struct {
	mu    sync.Mutex
	msgs  []string
	level domain.LogLevel
	json  bool
	file  domain.LogFile
}

func (l *testLogger) add(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = append(l.msgs, msg)
}

func (l *testLogger) Debug(msg string, _ ...any) { l.add(msg) }
func (l *testLogger) Info(msg string, _ ...any)  { l.add(msg) }
func (l *testLogger) Warn(msg string, _ ...any)  { l.add(msg) }
func (l *testLogger) Error(err error)            { l.add(err.Error()) }

func (l *testLogger) SetLevel(level domain.LogLevel) { l.level = level }
func (l *testLogger) SetJSON(enable bool)            { l.json = enable }

func (l *testLogger) SetFile(cfg domain.LogFile) error {
	l.file = cfg
	return nil
}

func (l *testLogger) logged(msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.msgs {
		if m == msg {
			return true
		}
	}
	return false
}

func newProject(t *testing.T) *domain.Project {
	t.Helper()
	root := t.TempDir()
	source := filepath.Join(root, "src")
	require.NoError(t, os.MkdirAll(source, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(source, "main.c"), []byte("int main;"), 0o600))

	return &domain.Project{
		Root:        root,
		Source:      source,
		Build:       filepath.Join(root, "build"),
		Dist:        filepath.Join(root, "dist"),
		Fingerprint: domain.FingerprintContent,
		Steps: []domain.Step{
			{Name: "compile", Inputs: []string{"main.c"}, Outputs: []string{"main.o"}, Cmd: []string{"cc", "-c", "main.c"}},
			{Name: "package", Inputs: []string{}, Outputs: []string{"app.tar"}, Cmd: []string{"tar", "cf", "app.tar"}},
		},
	}
}

type harness struct {
	app      *app.App
	loader   *mocks.MockConfigLoader
	executor *mocks.MockExecutor
	logger   *testLogger
}

// newHarness builds an app over real cache components, as one CLI invocation would.
func newHarness(t *testing.T, project *domain.Project) *harness {
	t.Helper()
	ctrl := gomock.NewController(t)
	h := &harness{
		loader:   mocks.NewMockConfigLoader(ctrl),
		executor: mocks.NewMockExecutor(ctrl),
		logger:   &testLogger{},
	}
	h.loader.EXPECT().Load("bake.yaml").Return(project, nil).AnyTimes()

	afs := afero.NewOsFs()
	tel := telemetry.NewNoop()
	mgr := manager.New(fs.NewSnapshotter(afs), h.logger, tel, manager.WithFs(afs))
	sched := scheduler.NewScheduler(mgr, h.executor, h.logger)
	h.app = app.New(h.loader, mgr, sched, h.logger, tel)
	return h
}

func writeOutputs(_ context.Context, cmd ports.Command) error {
	name := "main.o"
	if cmd.Name == "package" {
		name = "app.tar"
	}
	return os.WriteFile(filepath.Join(cmd.Dir, name), []byte(cmd.Name), 0o600)
}

func TestApp_Run(t *testing.T) {
	project := newProject(t)
	h := newHarness(t, project)
	h.executor.EXPECT().Execute(gomock.Any(), gomock.Any()).DoAndReturn(writeOutputs).Times(2)

	err := h.app.Run(t.Context(), app.RunOptions{ConfigPath: "bake.yaml", Verbosity: 1, JSONLogs: true})
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(project.Build, "main.o"))
	assert.FileExists(t, filepath.Join(project.Build, "app.tar"))
	assert.DirExists(t, filepath.Join(project.Root, ".bake", "cache", "compile"))
	assert.True(t, h.logger.logged("build finished"))
	assert.Equal(t, domain.LogLevelDebug, h.logger.level)
	assert.True(t, h.logger.json)
}

func TestApp_Run_SecondInvocationIsCached(t *testing.T) {
	project := newProject(t)
	first := newHarness(t, project)
	first.executor.EXPECT().Execute(gomock.Any(), gomock.Any()).DoAndReturn(writeOutputs).Times(2)
	require.NoError(t, first.app.Run(t.Context(), app.RunOptions{ConfigPath: "bake.yaml"}))

	second := newHarness(t, project)
	require.NoError(t, second.app.Run(t.Context(), app.RunOptions{ConfigPath: "bake.yaml"}))
	assert.True(t, second.logger.logged("cache hit"))
}

func TestApp_Run_ForceAndNoCacheRerun(t *testing.T) {
	tests := []struct {
		name string
		opts app.RunOptions
	}{
		{"force", app.RunOptions{ConfigPath: "bake.yaml", Force: true}},
		{"no cache", app.RunOptions{ConfigPath: "bake.yaml", NoCache: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			project := newProject(t)
			first := newHarness(t, project)
			first.executor.EXPECT().Execute(gomock.Any(), gomock.Any()).DoAndReturn(writeOutputs).Times(2)
			require.NoError(t, first.app.Run(t.Context(), app.RunOptions{ConfigPath: "bake.yaml"}))

			second := newHarness(t, project)
			second.executor.EXPECT().Execute(gomock.Any(), gomock.Any()).DoAndReturn(writeOutputs).Times(2)
			require.NoError(t, second.app.Run(t.Context(), tt.opts))
			assert.False(t, second.logger.logged("cache hit"))
		})
	}
}

func TestApp_Run_SelectsStepsInDeclarationOrder(t *testing.T) {
	project := newProject(t)
	h := newHarness(t, project)

	var order []string
	h.executor.EXPECT().Execute(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, cmd ports.Command) error {
			order = append(order, cmd.Name)
			return writeOutputs(ctx, cmd)
		}).Times(2)

	err := h.app.Run(t.Context(), app.RunOptions{ConfigPath: "bake.yaml", Steps: []string{"package", "compile"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"compile", "package"}, order)
}

func TestApp_Run_UnknownStep(t *testing.T) {
	h := newHarness(t, newProject(t))

	err := h.app.Run(t.Context(), app.RunOptions{ConfigPath: "bake.yaml", Steps: []string{"deploy"}})
	require.ErrorIs(t, err, domain.ErrStepNotFound)

	var zErr *zerr.Error
	require.ErrorAs(t, err, &zErr)
	assert.Equal(t, "deploy", zErr.Metadata()["step"])
}

func TestApp_Run_ConfigError(t *testing.T) {
	ctrl := gomock.NewController(t)
	loader := mocks.NewMockConfigLoader(ctrl)
	loader.EXPECT().Load("missing.yaml").Return(nil, domain.ErrConfigNotFound)

	log := &testLogger{}
	tel := telemetry.NewNoop()
	mgr := manager.New(fs.NewSnapshotter(afero.NewOsFs()), log, tel)
	a := app.New(loader, mgr, scheduler.NewScheduler(mgr, mocks.NewMockExecutor(ctrl), log), log, tel)

	err := a.Run(t.Context(), app.RunOptions{ConfigPath: "missing.yaml"})
	require.ErrorIs(t, err, domain.ErrConfigNotFound)
}

func TestApp_Run_StepFailure(t *testing.T) {
	project := newProject(t)
	h := newHarness(t, project)

	cmdErr := zerr.Wrap(domain.ErrCommandFailed, "exit status 2")
	h.executor.EXPECT().Execute(gomock.Any(), gomock.Any()).Return(cmdErr)

	err := h.app.Run(t.Context(), app.RunOptions{ConfigPath: "bake.yaml"})
	require.ErrorIs(t, err, domain.ErrBuildExecutionFailed)
	require.ErrorIs(t, err, domain.ErrCommandFailed)
	assert.False(t, h.logger.logged("build finished"))
	assert.NoFileExists(t, filepath.Join(project.Root, ".bake", "cache", "compile", domain.RecordFileName))
}

func TestApp_Run_ProjectSettings(t *testing.T) {
	project := newProject(t)
	project.Cache = filepath.Join(project.Root, "shared-cache")
	project.Fingerprint = domain.FingerprintStat
	project.Log = domain.LogFile{Path: filepath.Join(project.Root, "logs", "bake.log"), MaxSizeMB: 5}

	h := newHarness(t, project)
	h.executor.EXPECT().Execute(gomock.Any(), gomock.Any()).DoAndReturn(writeOutputs).Times(2)

	require.NoError(t, h.app.Run(t.Context(), app.RunOptions{ConfigPath: "bake.yaml"}))

	assert.FileExists(t, filepath.Join(project.Cache, "compile", domain.RecordFileName))
	assert.Equal(t, project.Log, h.logger.file)
	assert.Equal(t, domain.LogLevelInfo, h.logger.level)
}

func TestApp_Clean(t *testing.T) {
	project := newProject(t)
	first := newHarness(t, project)
	first.executor.EXPECT().Execute(gomock.Any(), gomock.Any()).DoAndReturn(writeOutputs).Times(2)
	require.NoError(t, first.app.Run(t.Context(), app.RunOptions{ConfigPath: "bake.yaml"}))

	cleaner := newHarness(t, project)
	require.NoError(t, cleaner.app.Clean(t.Context(), app.CleanOptions{ConfigPath: "bake.yaml", Steps: []string{"compile"}}))
	assert.NoFileExists(t, filepath.Join(project.Root, ".bake", "cache", "compile", domain.RecordFileName))
	assert.FileExists(t, filepath.Join(project.Root, ".bake", "cache", "package", domain.RecordFileName))

	third := newHarness(t, project)
	third.executor.EXPECT().Execute(gomock.Any(), gomock.Any()).DoAndReturn(writeOutputs).Times(1)
	require.NoError(t, third.app.Run(t.Context(), app.RunOptions{ConfigPath: "bake.yaml"}))
}

func TestApp_Clean_UnknownStep(t *testing.T) {
	h := newHarness(t, newProject(t))
	err := h.app.Clean(t.Context(), app.CleanOptions{ConfigPath: "bake.yaml", Steps: []string{"nope"}})
	require.True(t, errors.Is(err, domain.ErrStepNotFound))
}
