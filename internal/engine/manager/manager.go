// Package manager implements the build manager and its cache decorator.
//
// A Manager owns the source, build, dist and cache roots of a build and wraps
// actions into CachedSteps. A CachedStep runs its action at most once per
// unchanged set of inputs: later invocations replay the recorded outputs into
// the build root. On a miss the action runs inside a scratch slot that holds
// only its declared inputs, and the result is promoted atomically.
package manager

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.trai.ch/bake/internal/build"
	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/bake/internal/core/ports"
	"go.trai.ch/bake/internal/engine/slot"
	"go.trai.ch/zerr"
)

// Folders are the root paths of a build.
type Folders struct {
	Source string
	Build  string
	Dist   string
	Cache  string
}

// Manager orchestrates cached build steps.
type Manager struct {
	fs        afero.Fs
	snap      ports.Snapshotter
	logger    ports.Logger
	telemetry ports.Telemetry
	now       func() time.Time
	runID     string

	mu         sync.RWMutex
	folders    Folders
	foldersSet bool
	cacheRoot  string
	mode       domain.FingerprintMode
	taint      bool
	disable    bool
	source     *sourceGuard
}

// Option configures a Manager.
type Option func(*Manager)

// WithFs sets the filesystem used for slots and folders.
func WithFs(afs afero.Fs) Option {
	return func(m *Manager) {
		m.fs = afs
	}
}

// WithNowFunc sets the clock used for record timestamps and expiry.
func WithNowFunc(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithCacheRoot overrides the default cache root.
func WithCacheRoot(path string) Option {
	return func(m *Manager) {
		m.cacheRoot = path
	}
}

// WithFingerprintMode sets the fingerprint mode of the manager.
func WithFingerprintMode(mode domain.FingerprintMode) Option {
	return func(m *Manager) {
		m.mode = mode
	}
}

// New creates a Manager. Folders must be set before any cached step runs.
func New(snap ports.Snapshotter, logger ports.Logger, telemetry ports.Telemetry, opts ...Option) *Manager {
	m := &Manager{
		fs:        afero.NewOsFs(),
		snap:      snap,
		logger:    logger,
		telemetry: telemetry,
		now:       time.Now,
		runID:     uuid.NewString(),
		mode:      domain.DefaultFingerprintMode,
		source:    &sourceGuard{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetFolders fixes the roots of the build. It can only be called once.
// The build and dist directories are created. The cache root defaults to
// <parent of build>/.bake/cache. Build, dist and cache are never snapshotted
// as inputs, even when they live inside the source tree.
func (m *Manager) SetFolders(source, buildDir, distDir string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.foldersSet {
		return domain.ErrFoldersAlreadySet
	}

	var folders Folders
	for _, p := range []struct {
		dst *string
		src string
	}{
		{&folders.Source, source},
		{&folders.Build, buildDir},
		{&folders.Dist, distDir},
	} {
		abs, err := filepath.Abs(p.src)
		if err != nil {
			return zerr.With(zerr.Wrap(err, "failed to resolve folder"), "path", p.src)
		}
		*p.dst = abs
	}

	folders.Cache = domain.DefaultCachePath(folders.Build)
	if m.cacheRoot != "" {
		abs, err := filepath.Abs(m.cacheRoot)
		if err != nil {
			return zerr.With(zerr.Wrap(err, "failed to resolve folder"), "path", m.cacheRoot)
		}
		folders.Cache = abs
	}

	for _, dir := range []string{folders.Build, folders.Dist, folders.Cache} {
		if err := m.fs.MkdirAll(dir, domain.DirPerm); err != nil {
			return zerr.With(zerr.Wrap(err, "failed to create folder"), "path", dir)
		}
	}

	m.snap.Exclude(folders.Build, folders.Dist, folders.Cache)
	m.folders = folders
	m.foldersSet = true
	m.source.set(folders.Source)
	return nil
}

// Folders returns the configured roots.
func (m *Manager) Folders() (Folders, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.foldersSet {
		return Folders{}, domain.ErrFoldersNotSet
	}
	return m.folders, nil
}

// SetFingerprintMode changes the fingerprint mode. It fails once folders are set.
func (m *Manager) SetFingerprintMode(mode domain.FingerprintMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.foldersSet {
		return zerr.Wrap(domain.ErrFoldersAlreadySet, "fingerprint mode is fixed once folders are set")
	}
	m.mode = mode
	return nil
}

// SetCacheRoot overrides the default cache root. It fails once folders are set.
func (m *Manager) SetCacheRoot(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.foldersSet {
		return zerr.Wrap(domain.ErrFoldersAlreadySet, "cache root is fixed once folders are set")
	}
	m.cacheRoot = path
	return nil
}

// Mode returns the fingerprint mode.
func (m *Manager) Mode() domain.FingerprintMode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mode
}

// DisableCache bypasses caching for every subsequent cached step.
func (m *Manager) DisableCache() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disable = true
}

// TaintCache invalidates every slot touched by a subsequent cached step.
func (m *Manager) TaintCache() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.taint = true
}

// SourceRevoked reports whether a cached step has been entered.
func (m *Manager) SourceRevoked() bool {
	return m.source.isRevoked()
}

// NewStep returns the step handed to the first action of a build.
func (m *Manager) NewStep(config map[string]any, verbosity int) (*BuildStep, error) {
	folders, err := m.Folders()
	if err != nil {
		return nil, err
	}
	return &BuildStep{
		BuildPath: folders.Build,
		DistPath:  folders.Dist,
		Config:    config,
		Verbosity: verbosity,
		Logger:    m.logger,
		source:    m.source,
	}, nil
}

// TaintSlot removes the record of the named slot so its next invocation misses.
// Slots that were never created are ignored.
func (m *Manager) TaintSlot(name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	folders, err := m.Folders()
	if err != nil {
		return err
	}

	root := filepath.Join(folders.Cache, name)
	exists, err := afero.DirExists(m.fs, root)
	if err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrSlotTaintFailed.Error()), "slot", name)
	}
	if !exists {
		return nil
	}

	run, err := slot.Open(m.fs, root)
	if err != nil {
		return zerr.With(err, "slot", name)
	}
	if err := run.Taint(); err != nil {
		return zerr.With(err, "slot", name)
	}
	m.logger.Info("cache tainted", "slot", name)
	return nil
}

type toggles struct {
	mode    domain.FingerprintMode
	taint   bool
	disable bool
}

func (m *Manager) toggles() toggles {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return toggles{mode: m.mode, taint: m.taint, disable: m.disable}
}

func (m *Manager) recordMeta(mode domain.FingerprintMode) map[string]any {
	return map[string]any{
		"fingerprint": string(mode),
		"run_id":      m.runID,
		"version":     build.Version,
	}
}

// sourceGuard holds the source root until the first cached step is entered.
type sourceGuard struct {
	mu      sync.RWMutex
	path    string
	revoked bool
}

func (g *sourceGuard) set(path string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.revoked {
		g.path = path
	}
}

func (g *sourceGuard) get() (string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.revoked {
		return "", domain.ErrSourceRevoked
	}
	if g.path == "" {
		return "", domain.ErrFoldersNotSet
	}
	return g.path, nil
}

func (g *sourceGuard) isRevoked() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.revoked
}

func (g *sourceGuard) revoke() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.revoked = true
	g.path = ""
}
