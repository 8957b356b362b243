package job

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/conducthq/conduct"
)

// Entry is the registered form of a command: its class, a submit-time
// schema validator, and the type-erased handler.
type Entry struct {
	Name     string
	Class    Class
	Validate ValidateFunc
	Handler  HandlerFunc
}

// Registry maps command names to registered entries.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewRegistry creates an empty command registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]Entry),
	}
}

// RegisterDefinition registers a typed job definition. The generic handler
// is wrapped in a closure that JSON-unmarshals the payload into T before
// calling the typed handler; the same decode doubles as the submit-time
// schema check.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func RegisterDefinition[T any](r *Registry, def *Definition[T]) {
	decode := func(payload []byte) (T, error) {
		var t T
		if len(payload) == 0 {
			return t, nil
		}
		dec := json.NewDecoder(bytes.NewReader(payload))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&t); err != nil {
			return t, fmt.Errorf("%w: decode params for command %q: %v", conduct.ErrValidation, def.Name, err)
		}
		return t, nil
	}

	validate := func(payload []byte) error {
		t, err := decode(payload)
		if err != nil {
			return err
		}
		if def.Validate != nil {
			if err := def.Validate(t); err != nil {
				return fmt.Errorf("%w: command %q: %v", conduct.ErrValidation, def.Name, err)
			}
		}
		return nil
	}

	handler := func(ctx context.Context, rt Runtime, payload []byte) (*Result, error) {
		t, err := decode(payload)
		if err != nil {
			return nil, err
		}
		return def.Handler(ctx, rt, t)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[def.Name] = Entry{
		Name:     def.Name,
		Class:    def.Class,
		Validate: validate,
		Handler:  handler,
	}
}

// Get returns the entry for the given command name.
// Returns false if no handler is registered.
func (r *Registry) Get(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// Resolve looks up a command and validates the payload against its schema.
// It returns conduct.ErrUnknownCommand for unregistered names and a
// conduct.ErrValidation wrap for schema violations — both before any job
// row exists.
func (r *Registry) Resolve(name string, payload []byte) (Entry, error) {
	e, ok := r.Get(name)
	if !ok {
		return Entry{}, fmt.Errorf("%w: %q", conduct.ErrUnknownCommand, name)
	}
	if err := e.Validate(payload); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// Names returns all registered command names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	return names
}
