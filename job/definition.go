package job

import (
	"context"

	"github.com/conducthq/conduct/id"
)

// Runtime is the capability set handed to an executing handler: a log sink
// whose lines are appended in call order and fanned out to live
// subscribers, and a cooperative cancellation token the handler is
// expected to poll between I/O operations.
type Runtime interface {
	// Log appends one line to the job's log and publishes it live.
	Log(line string)
	// Logf is Log with fmt.Sprintf formatting.
	Logf(format string, args ...any)
	// Cancelled reports whether cancellation has been requested. A handler
	// that observes true should abort via its own cleanup path and return
	// ErrCancelled (or an error wrapping context.Canceled).
	Cancelled() bool
	// Done exposes the cancellation signal as a channel for handlers that
	// block in select loops.
	Done() <-chan struct{}
}

// Result carries the output references of a successful handler.
type Result struct {
	ArtefactIDs []string
	PacketID    id.PacketID
}

// HandlerFunc is a type-erased job handler that accepts the raw JSON
// payload. The typed Definition[T] is converted to a HandlerFunc at
// registration time by closing over JSON unmarshal + the typed handler.
type HandlerFunc func(ctx context.Context, rt Runtime, payload []byte) (*Result, error)

// ValidateFunc checks a raw payload against a command's schema without
// executing anything. It runs at submit time, before any job row is
// created.
type ValidateFunc func(payload []byte) error

// Definition is a typed job definition with a handler function.
// T is the parameter type (must be JSON-serializable).
type Definition[T any] struct {
	// Name is the unique command name for this job type.
	Name string

	// Class determines whether the job passes through the admission
	// queue (heavy) or runs immediately (light).
	Class Class

	// Handler executes the job. It returns output references on success,
	// ErrCancelled (or a context.Canceled wrap) when honoring the
	// cancellation token, or any other error to fail the job.
	Handler func(ctx context.Context, rt Runtime, params T) (*Result, error)

	// Validate optionally checks decoded parameters beyond what JSON
	// decoding enforces. A non-nil return rejects the submission.
	Validate func(params T) error
}

// NewDefinition creates a typed job definition.
func NewDefinition[T any](name string, class Class, handler func(ctx context.Context, rt Runtime, params T) (*Result, error)) *Definition[T] {
	return &Definition[T]{
		Name:    name,
		Class:   class,
		Handler: handler,
	}
}

// WithValidator returns the definition with a parameter validator attached.
func (d *Definition[T]) WithValidator(fn func(params T) error) *Definition[T] {
	d.Validate = fn
	return d
}
