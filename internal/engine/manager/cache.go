package manager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/spf13/afero"
	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/bake/internal/engine/slot"
	"go.trai.ch/zerr"
)

// CachedStep is an action wrapped by Manager.Cache.
// Its Run method has the same shape as Action.
type CachedStep struct {
	m            *Manager
	action       ValueAction
	name         string
	inputs       []string
	outputs      []string
	timeout      *int64
	version      string
	invalidation json.RawMessage
	err          error
}

// CacheOption configures a CachedStep.
type CacheOption func(*CachedStep)

// Inputs declares the input patterns, relative to the source root.
// Without this option the whole source tree is an input.
func Inputs(patterns ...string) CacheOption {
	return func(c *CachedStep) {
		c.inputs = append([]string{}, patterns...)
	}
}

// Outputs declares the output patterns, relative to the build root of the action.
// Without this option everything the action leaves in its build root is an output.
func Outputs(patterns ...string) CacheOption {
	return func(c *CachedStep) {
		c.outputs = append([]string{}, patterns...)
	}
}

// Timeout sets how long a recorded result stays valid. Zero expires it immediately.
// Records keep whole seconds, so a partial second is rounded up.
func Timeout(d time.Duration) CacheOption {
	return func(c *CachedStep) {
		seconds := int64(d / time.Second)
		if d%time.Second > 0 {
			seconds++
		}
		c.timeout = &seconds
	}
}

// Name sets the slot name. It defaults to the name of the action function.
func Name(name string) CacheOption {
	return func(c *CachedStep) {
		c.name = name
	}
}

// Version sets the identity token of the action. Changing it invalidates the slot.
func Version(token string) CacheOption {
	return func(c *CachedStep) {
		c.version = token
	}
}

// InvalidationKey sets a caller-defined value that invalidates the slot when it changes.
func InvalidationKey(key any) CacheOption {
	return func(c *CachedStep) {
		raw, err := json.Marshal(key)
		if err != nil {
			c.err = zerr.Wrap(err, "invalidation key is not serializable")
			return
		}
		c.invalidation = raw
	}
}

// Cache wraps action into a CachedStep.
func (m *Manager) Cache(action Action, opts ...CacheOption) *CachedStep {
	wrapped := func(ctx context.Context, step *BuildStep) (any, error) {
		return nil, action(ctx, step)
	}
	return m.newCachedStep(wrapped, defaultName(action), opts)
}

// CacheFunc wraps an action that returns a value. A non-empty value fails the run
// with domain.ErrUnsupportedReturnValue.
func (m *Manager) CacheFunc(action ValueAction, opts ...CacheOption) *CachedStep {
	return m.newCachedStep(action, defaultName(action), opts)
}

func (m *Manager) newCachedStep(action ValueAction, name string, opts []CacheOption) *CachedStep {
	c := &CachedStep{m: m, action: action, name: name}
	for _, opt := range opts {
		opt(c)
	}
	if c.err == nil {
		c.err = validateName(c.name)
	}
	return c
}

// Name returns the slot name.
func (c *CachedStep) Name() string {
	return c.name
}

// Settings returns the settings recorded for the step.
func (c *CachedStep) Settings() domain.Settings {
	return domain.Settings{
		Name:              c.name,
		Inputs:            c.inputs,
		Outputs:           c.outputs,
		Timeout:           c.timeout,
		CacheInvalidation: c.invalidation,
		FunctionCodeHash:  fmt.Sprintf("%016x", xxhash.Sum64String(c.version)),
	}
}

// Run executes the step, replaying recorded outputs into step.BuildPath when possible.
func (c *CachedStep) Run(ctx context.Context, step *BuildStep) error {
	_, err := c.Execute(ctx, step)
	return err
}

// Execute is Run that also reports how the invocation was resolved.
func (c *CachedStep) Execute(ctx context.Context, step *BuildStep) (domain.Outcome, error) {
	if c.err != nil {
		return domain.OutcomeFailed, zerr.With(c.err, "slot", c.name)
	}

	ctx, vertex := c.m.telemetry.Record(ctx, c.name)
	outcome, err := c.execute(ctx, step)
	switch {
	case err != nil:
		vertex.Complete(err)
		return domain.OutcomeFailed, zerr.With(zerr.Wrap(err, "cached step failed"), "slot", c.name)
	case outcome == domain.OutcomeHit:
		vertex.Cached()
		vertex.Complete(nil)
	default:
		vertex.Complete(nil)
	}
	return outcome, nil
}

func (c *CachedStep) execute(ctx context.Context, step *BuildStep) (domain.Outcome, error) {
	folders, err := c.m.Folders()
	if err != nil {
		return domain.OutcomeFailed, err
	}
	t := c.m.toggles()
	log := c.m.logger

	run, err := slot.Open(c.m.fs, filepath.Join(folders.Cache, c.name),
		slot.WithNowFunc(c.m.now), slot.WithFingerprintMode(t.mode))
	if err != nil {
		return domain.OutcomeFailed, err
	}
	switch {
	case t.disable:
		run.Disable()
	case t.taint:
		if err := run.Taint(); err != nil {
			return domain.OutcomeFailed, err
		}
	}

	c.m.source.revoke()

	if run.State() == domain.SlotDisabled {
		log.Debug("cache disabled, running directly", "slot", c.name)
		return domain.OutcomeBypass, c.invoke(ctx, step)
	}

	current := c.Settings()
	miss := false

	switch run.State() {
	case domain.SlotNew:
		log.Info("no cache record", "slot", c.name)
		miss = true
	case domain.SlotTaint:
		log.Info("cache tainted", "slot", c.name)
		miss = true
	}

	loaded := false
	if run.State() == domain.SlotExists {
		if err := run.Load(); err != nil {
			log.Warn("cache record unusable", "slot", c.name, "error", err.Error())
			miss = true
		} else {
			loaded = true
		}
	}

	if loaded {
		run.Settings.Timeout = current.Timeout
		if field := run.Settings.Mismatch(current); field != "" {
			log.Info("cache settings changed", "slot", c.name, "field", field)
			miss = true
		}
	}

	inputs, err := c.m.snap.Snapshot(folders.Source, c.inputs, t.mode)
	if err != nil {
		return domain.OutcomeFailed, err
	}

	if loaded {
		if !run.InputsIdentical(inputs) {
			diff := run.Info.Inputs.Diff(inputs)
			log.Info("cache inputs changed", "slot", c.name,
				"added", diff.Added, "removed", diff.Removed, "changed", diff.Changed)
			miss = true
		}
		expired, err := run.IsExpired()
		switch {
		case err != nil:
			log.Warn("cache record incomplete", "slot", c.name, "error", err.Error())
			miss = true
		case expired:
			log.Info("cache expired", "slot", c.name, "created", run.Info.CreatedAt.Format(domain.TimestampLayout))
			miss = true
		}
	}

	if !miss {
		err := c.m.snap.CopyAll(run.Info.Outputs, run.DataPath(), step.BuildPath)
		if err == nil {
			log.Info("cache hit", "slot", c.name, "outputs", run.Info.Outputs.Len())
			return domain.OutcomeHit, nil
		}
		log.Warn("cached outputs unusable", "slot", c.name, "error", err.Error())
	}

	if err := c.rebuild(ctx, step, folders, t.mode, inputs, current); err != nil {
		return domain.OutcomeFailed, err
	}
	return domain.OutcomeMiss, nil
}

// rebuild runs the action in a scratch slot holding only the declared inputs and
// promotes the scratch slot over the real one.
func (c *CachedStep) rebuild(
	ctx context.Context,
	step *BuildStep,
	folders Folders,
	mode domain.FingerprintMode,
	inputs *domain.FileSet,
	settings domain.Settings,
) error {
	fs := c.m.fs
	if err := fs.MkdirAll(folders.Cache, domain.DirPerm); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrSlotOpenFailed.Error()), "path", folders.Cache)
	}
	dir, err := afero.TempDir(fs, folders.Cache, domain.ScratchPrefix+c.name+"-")
	if err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrSlotOpenFailed.Error()), "path", folders.Cache)
	}
	scratch, err := slot.Open(fs, dir, slot.WithNowFunc(c.m.now), slot.WithFingerprintMode(mode))
	if err != nil {
		_ = fs.RemoveAll(dir)
		return err
	}

	promoted := false
	defer func() {
		if !promoted {
			_ = scratch.Remove()
		}
	}()

	if err := c.m.snap.CopyAll(inputs, folders.Source, scratch.DataPath()); err != nil {
		return err
	}
	before, err := c.m.snap.Snapshot(scratch.DataPath(), c.inputs, mode)
	if err != nil {
		return err
	}

	if err := c.invoke(ctx, step.WithBuildPath(scratch.DataPath())); err != nil {
		return err
	}

	if err := c.checkInputs(scratch.DataPath(), mode, before); err != nil {
		return err
	}

	outputs, err := c.m.snap.Snapshot(scratch.DataPath(), c.outputs, mode)
	if err != nil {
		return zerr.Wrap(err, "declared outputs were not produced")
	}

	scratch.Settings = settings
	scratch.Meta = c.m.recordMeta(mode)
	scratch.SetResult(inputs, outputs)
	if err := scratch.Dump(); err != nil {
		return err
	}
	if err := scratch.Rename(filepath.Join(folders.Cache, c.name)); err != nil {
		return err
	}
	promoted = true

	if err := c.m.snap.CopyAll(outputs, scratch.DataPath(), step.BuildPath); err != nil {
		return err
	}
	c.m.logger.Info("cache updated", "slot", c.name, "inputs", inputs.Len(), "outputs", outputs.Len())
	return nil
}

// checkInputs compares the inputs in the scratch tree against the snapshot taken before the action ran.
func (c *CachedStep) checkInputs(root string, mode domain.FingerprintMode, before *domain.FileSet) error {
	after, err := c.m.snap.Snapshot(root, c.inputs, mode)
	if err != nil {
		if errors.Is(err, domain.ErrMissingInput) {
			c.m.logger.Warn("declared input removed during execution", "slot", c.name, "error", err.Error())
			return errors.Join(domain.ErrInputsMutatedDuringExecution, err)
		}
		return err
	}

	diff := before.Diff(after)
	if c.inputs == nil {
		// The whole tree is the input, so files the action created are outputs.
		diff.Added = nil
	}
	if diff.Empty() {
		return nil
	}

	c.m.logger.Warn("declared inputs changed during execution", "slot", c.name,
		"added", diff.Added, "removed", diff.Removed, "changed", diff.Changed)
	return zerr.With(zerr.With(zerr.With(
		zerr.Wrap(domain.ErrInputsMutatedDuringExecution, "action changed its inputs"),
		"added", diff.Added), "removed", diff.Removed), "changed", diff.Changed)
}

func (c *CachedStep) invoke(ctx context.Context, step *BuildStep) error {
	result, err := c.action(ctx, step)
	if err != nil {
		c.m.logger.Error(zerr.With(zerr.Wrap(err, domain.ErrActionFailed.Error()), "slot", c.name))
		return errors.Join(domain.ErrActionFailed, err)
	}
	if !isEmpty(result) {
		return zerr.With(zerr.Wrap(domain.ErrUnsupportedReturnValue, "cached actions must not return a value"),
			"type", fmt.Sprintf("%T", result))
	}
	return nil
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array, reflect.String, reflect.Chan:
		return rv.Len() == 0
	default:
		return rv.IsZero()
	}
}
