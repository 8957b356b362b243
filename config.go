package conduct

import "time"

// Config holds configuration for the orchestration core.
type Config struct {
	// GlobalHeavySlots is the maximum number of heavy jobs that may be
	// running concurrently across all users.
	GlobalHeavySlots int

	// PerUserHeavySlots is the maximum number of heavy jobs a single user
	// may have running concurrently. Zero means no per-user cap.
	PerUserHeavySlots int

	// SubmitRate is the maximum sustained job submissions per second
	// accepted from a single user. Zero disables submission throttling.
	SubmitRate float64

	// SubmitBurst is the burst size for the submission token bucket.
	// Defaults to 1 if SubmitRate is set but SubmitBurst is zero.
	SubmitBurst int

	// ShutdownTimeout is the maximum time to wait for in-flight jobs
	// during graceful shutdown before their contexts are cancelled.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		GlobalHeavySlots:  4,
		PerUserHeavySlots: 1,
		ShutdownTimeout:   30 * time.Second,
	}
}
