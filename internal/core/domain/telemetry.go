package domain

// LogLevel represents the severity of a log message, mirroring the standard slog levels.
type LogLevel int

const (
	// LogLevelDebug represents debug-level verbosity.
	LogLevelDebug LogLevel = -4
	// LogLevelInfo represents informational verbosity.
	LogLevelInfo LogLevel = 0
	// LogLevelWarn represents warning verbosity.
	LogLevelWarn LogLevel = 4
	// LogLevelError represents error verbosity.
	LogLevelError LogLevel = 8
)

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// LogLevelForVerbosity maps a CLI verbosity count to a log level.
func LogLevelForVerbosity(verbosity int) LogLevel {
	switch {
	case verbosity > 0:
		return LogLevelDebug
	case verbosity < 0:
		return LogLevelWarn
	default:
		return LogLevelInfo
	}
}

// Outcome describes how a cached step invocation was resolved.
type Outcome string

const (
	// OutcomeHit means recorded outputs were replayed.
	OutcomeHit Outcome = "hit"
	// OutcomeMiss means the action ran and a new record was promoted.
	OutcomeMiss Outcome = "miss"
	// OutcomeBypass means caching was disabled and the action ran directly.
	OutcomeBypass Outcome = "bypass"
	// OutcomeFailed means the invocation aborted.
	OutcomeFailed Outcome = "failed"
)
