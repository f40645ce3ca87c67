package domain

import "go.trai.ch/zerr"

var (
	// ErrMissingInput is returned when a literal input pattern names a file that does not exist.
	ErrMissingInput = zerr.New("missing input")

	// ErrExpectedFileIsDirectory is returned when a literal input pattern names a directory.
	// Directories must be declared with a trailing path separator.
	ErrExpectedFileIsDirectory = zerr.New("expected a file but found a directory, use a trailing separator to select a directory")

	// ErrInvalidPattern is returned when a glob pattern cannot be parsed.
	ErrInvalidPattern = zerr.New("invalid file pattern")

	// ErrInvalidFingerprintMode is returned for an unknown fingerprint mode name.
	ErrInvalidFingerprintMode = zerr.New("invalid fingerprint mode")

	// ErrFingerprintFailed is returned when a file cannot be fingerprinted.
	ErrFingerprintFailed = zerr.New("failed to fingerprint file")

	// ErrCopyFailed is returned when a tracked file cannot be copied.
	ErrCopyFailed = zerr.New("failed to copy file")
)

var (
	// ErrCorruptCache is returned when a persisted cache record is unreadable or malformed.
	ErrCorruptCache = zerr.New("corrupt cache record")

	// ErrIncompleteCacheRecord is returned when record data is queried before it was loaded or dumped.
	ErrIncompleteCacheRecord = zerr.New("incomplete cache record")

	// ErrSlotOpenFailed is returned when a cache slot directory cannot be prepared.
	ErrSlotOpenFailed = zerr.New("failed to open cache slot")

	// ErrSlotWriteFailed is returned when the cache record cannot be written.
	ErrSlotWriteFailed = zerr.New("failed to write cache record")

	// ErrSlotPromotionFailed is returned when a scratch slot cannot be renamed over its final location.
	ErrSlotPromotionFailed = zerr.New("failed to promote cache slot")

	// ErrSlotTaintFailed is returned when the cache record cannot be removed.
	ErrSlotTaintFailed = zerr.New("failed to taint cache slot")
)

var (
	// ErrInputsMutatedDuringExecution is returned when a cached action changed one of its declared inputs.
	ErrInputsMutatedDuringExecution = zerr.New("inputs mutated during execution")

	// ErrUnsupportedReturnValue is returned when a cached action produced a value that cannot be replayed.
	ErrUnsupportedReturnValue = zerr.New("cached action returned a value")

	// ErrActionFailed is returned when the wrapped action itself fails.
	ErrActionFailed = zerr.New("cached action failed")

	// ErrSourceRevoked is returned when the source root is read after the first cached action was entered.
	ErrSourceRevoked = zerr.New("source path access has been revoked")

	// ErrFoldersNotSet is returned when a cached action runs before the manager folders were configured.
	ErrFoldersNotSet = zerr.New("build folders are not set")

	// ErrFoldersAlreadySet is returned when folders are configured twice.
	ErrFoldersAlreadySet = zerr.New("build folders are already set")

	// ErrInvalidSlotName is returned when a slot name cannot be used as a directory name.
	ErrInvalidSlotName = zerr.New("invalid cache slot name")
)

var (
	// ErrConfigNotFound is returned when no buildfile exists at the given path.
	ErrConfigNotFound = zerr.New("buildfile not found")

	// ErrConfigReadFailed is returned when the buildfile cannot be read.
	ErrConfigReadFailed = zerr.New("failed to read buildfile")

	// ErrConfigParseFailed is returned when the buildfile is not valid YAML.
	ErrConfigParseFailed = zerr.New("failed to parse buildfile")

	// ErrUnsupportedConfigVersion is returned when the buildfile declares an unknown schema version.
	ErrUnsupportedConfigVersion = zerr.New("unsupported buildfile version")

	// ErrNoStepsDefined is returned when the buildfile declares no steps.
	ErrNoStepsDefined = zerr.New("no steps defined")

	// ErrInvalidStepName is returned when a step name is empty or contains unsupported characters.
	ErrInvalidStepName = zerr.New("invalid step name")

	// ErrDuplicateStep is returned when two steps share a name.
	ErrDuplicateStep = zerr.New("duplicate step name")

	// ErrStepNotFound is returned when a requested step is not declared in the buildfile.
	ErrStepNotFound = zerr.New("step not found")

	// ErrMissingCommand is returned when a step has no command.
	ErrMissingCommand = zerr.New("step has no command")
)

var (
	// ErrCommandFailed is returned when a step command exits unsuccessfully.
	ErrCommandFailed = zerr.New("command failed")

	// ErrBuildExecutionFailed is returned when a build run fails.
	ErrBuildExecutionFailed = zerr.New("build execution failed")
)
