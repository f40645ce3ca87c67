// Package slot implements the on-disk cache slot of a cached build step.
//
// A slot is a directory holding a JSON record (cache.json) and a data directory with the
// files the step consumed and produced. Its lifecycle state is NEW until a record is
// dumped, EXISTS once a record is present, TAINT after the record was removed and
// DISABLED when caching is bypassed.
package slot

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/zerr"
)

// CachedRun is one cache slot rooted at <cache root>/<slot name>.
type CachedRun struct {
	// Settings is the declared configuration of the step that owns the slot.
	Settings domain.Settings
	// Info is the recorded result. It is nil until Load or Dump succeeds.
	Info *domain.RunInfo
	// Meta is persisted verbatim in the record.
	Meta map[string]any

	fs    afero.Fs
	root  string
	mode  domain.FingerprintMode
	now   func() time.Time
	state domain.SlotState
}

// Option configures a CachedRun.
type Option func(*CachedRun)

// WithNowFunc sets the clock used for record timestamps and expiry.
func WithNowFunc(now func() time.Time) Option {
	return func(c *CachedRun) {
		c.now = now
	}
}

// WithFingerprintMode sets the mode of FileSets rehydrated by Load.
func WithFingerprintMode(mode domain.FingerprintMode) Option {
	return func(c *CachedRun) {
		c.mode = mode
	}
}

// Open inspects the slot directory at root and returns a CachedRun in NEW or EXISTS state.
// A missing data directory is created and reported as NEW.
func Open(afs afero.Fs, root string, opts ...Option) (*CachedRun, error) {
	c := &CachedRun{
		fs:    afs,
		root:  root,
		mode:  domain.DefaultFingerprintMode,
		now:   time.Now,
		state: domain.SlotNew,
		Meta:  map[string]any{},
	}
	for _, opt := range opts {
		opt(c)
	}

	hasData, err := afero.DirExists(afs, c.DataPath())
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrSlotOpenFailed.Error()), "path", root)
	}
	if !hasData {
		if err := afs.MkdirAll(c.DataPath(), domain.DirPerm); err != nil {
			return nil, zerr.With(zerr.Wrap(err, domain.ErrSlotOpenFailed.Error()), "path", root)
		}
		return c, nil
	}

	hasRecord, err := afero.Exists(afs, c.MetadataPath())
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrSlotOpenFailed.Error()), "path", root)
	}
	if hasRecord {
		c.state = domain.SlotExists
	}
	return c, nil
}

// State returns the lifecycle state of the slot.
func (c *CachedRun) State() domain.SlotState {
	return c.state
}

// Root returns the slot directory.
func (c *CachedRun) Root() string {
	return c.root
}

// DataPath returns the directory holding the slot's files.
func (c *CachedRun) DataPath() string {
	return filepath.Join(c.root, domain.DataDirName)
}

// MetadataPath returns the path of the slot record.
func (c *CachedRun) MetadataPath() string {
	return filepath.Join(c.root, domain.RecordFileName)
}

// Load reads the record and populates Settings, Info and Meta.
// Unreadable or malformed records fail with domain.ErrCorruptCache.
func (c *CachedRun) Load() error {
	data, err := afero.ReadFile(c.fs, c.MetadataPath())
	if err != nil {
		return c.corrupt(err.Error())
	}

	var rec domain.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return c.corrupt(err.Error())
	}

	var keys recordKeys
	if err := json.Unmarshal(data, &keys); err != nil {
		return c.corrupt(err.Error())
	}

	if field := missingField(&rec, &keys); field != "" {
		return zerr.With(c.corrupt("missing required field"), "field", field)
	}

	created, err := time.ParseInLocation(domain.TimestampLayout, rec.Timestamp, time.Local)
	if err != nil {
		return zerr.With(c.corrupt("invalid timestamp"), "timestamp", rec.Timestamp)
	}

	c.Settings = *rec.Settings
	c.Info = &domain.RunInfo{
		Inputs:    domain.FileSetFromRecord(c.mode, rec.State.Inputs),
		Outputs:   domain.FileSetFromRecord(c.mode, rec.State.Outputs),
		CreatedAt: created,
	}
	if rec.Meta != nil {
		c.Meta = rec.Meta
	}
	return nil
}

// SetResult stores the snapshots that the next Dump persists.
func (c *CachedRun) SetResult(inputs, outputs *domain.FileSet) {
	c.Info = &domain.RunInfo{Inputs: inputs, Outputs: outputs}
}

// Dump writes settings, a fresh timestamp and the recorded snapshots to the record file
// and moves the slot to EXISTS. It must be the last write to a slot before promotion.
func (c *CachedRun) Dump() error {
	if c.Info == nil || c.Info.Inputs == nil || c.Info.Outputs == nil {
		return zerr.With(zerr.Wrap(domain.ErrIncompleteCacheRecord, "no result to persist"), "slot", c.root)
	}

	now := c.now().Local()
	stamp := now.Format(domain.TimestampLayout)
	settings := c.Settings

	rec := domain.Record{
		Settings:  &settings,
		Timestamp: stamp,
		Meta:      c.Meta,
		State: &domain.RecordState{
			Inputs:  c.Info.Inputs.Record(),
			Outputs: c.Info.Outputs.Record(),
		},
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return zerr.Wrap(err, domain.ErrSlotWriteFailed.Error())
	}
	if err := c.writeAtomic(data); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrSlotWriteFailed.Error()), "path", c.MetadataPath())
	}

	created, err := time.ParseInLocation(domain.TimestampLayout, stamp, time.Local)
	if err != nil {
		created = now
	}
	c.Info.CreatedAt = created
	c.state = domain.SlotExists
	return nil
}

// IsExpired reports whether the record is older than the configured timeout.
// A nil timeout never expires and a zero timeout always expires.
func (c *CachedRun) IsExpired() (bool, error) {
	if c.Info == nil || c.Info.CreatedAt.IsZero() {
		return false, zerr.With(zerr.Wrap(domain.ErrIncompleteCacheRecord, "no record loaded"), "slot", c.root)
	}

	timeout := c.Settings.Timeout
	switch {
	case timeout == nil:
		return false, nil
	case *timeout <= 0:
		return true, nil
	default:
		deadline := c.Info.CreatedAt.Add(time.Duration(*timeout) * time.Second)
		return c.now().After(deadline), nil
	}
}

// InputsIdentical reports whether set equals the recorded input snapshot.
func (c *CachedRun) InputsIdentical(set *domain.FileSet) bool {
	if c.Info == nil || c.Info.Inputs == nil {
		return false
	}
	return c.Info.Inputs.Equal(set)
}

// Rename promotes the slot directory to dst, replacing anything already there.
func (c *CachedRun) Rename(dst string) error {
	if err := c.fs.RemoveAll(dst); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrSlotPromotionFailed.Error()), "path", dst)
	}
	if err := c.fs.MkdirAll(filepath.Dir(dst), domain.DirPerm); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrSlotPromotionFailed.Error()), "path", dst)
	}
	if err := c.fs.Rename(c.root, dst); err != nil {
		return zerr.With(zerr.With(zerr.Wrap(err, domain.ErrSlotPromotionFailed.Error()), "src", c.root), "dst", dst)
	}
	c.root = dst
	return nil
}

// Taint removes the record, if any, and moves the slot to TAINT.
func (c *CachedRun) Taint() error {
	if err := c.fs.Remove(c.MetadataPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return zerr.With(zerr.Wrap(err, domain.ErrSlotTaintFailed.Error()), "path", c.MetadataPath())
	}
	c.state = domain.SlotTaint
	return nil
}

// Disable moves the slot to DISABLED without touching the filesystem.
func (c *CachedRun) Disable() {
	c.state = domain.SlotDisabled
}

// Remove deletes the slot directory.
func (c *CachedRun) Remove() error {
	return c.fs.RemoveAll(c.root)
}

func (c *CachedRun) writeAtomic(data []byte) error {
	tmp, err := afero.TempFile(c.fs, c.root, ".cache-*.json")
	if err != nil {
		return err
	}
	name := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = c.fs.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = c.fs.Remove(name)
		return err
	}
	if err := c.fs.Chmod(name, domain.FilePerm); err != nil {
		_ = c.fs.Remove(name)
		return err
	}
	return c.fs.Rename(name, c.MetadataPath())
}

func (c *CachedRun) corrupt(reason string) error {
	return zerr.With(zerr.Wrap(domain.ErrCorruptCache, reason), "path", c.MetadataPath())
}

// recordKeys reports which required keys are present, including ones whose zero value is valid.
type recordKeys struct {
	Settings *struct {
		FunctionCodeHash *string `json:"function_code_hash"`
	} `json:"settings"`
}

func missingField(rec *domain.Record, keys *recordKeys) string {
	switch {
	case rec.Settings == nil || keys.Settings == nil:
		return "settings"
	case rec.Settings.Name == "":
		return "settings.name"
	case keys.Settings.FunctionCodeHash == nil:
		return "settings.function_code_hash"
	case rec.Timestamp == "":
		return "timestamp"
	case rec.State == nil:
		return "state"
	case rec.State.Inputs == nil:
		return "state.inputs"
	case rec.State.Outputs == nil:
		return "state.outputs"
	default:
		return ""
	}
}
