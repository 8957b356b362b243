// Package store defines the aggregate persistence interface. The job
// subsystem defines its own store interface; the composite Store adds
// lifecycle operations. Backends: Bun (SQLite and Postgres) and Memory.
package store

import (
	"context"

	"github.com/conducthq/conduct/job"
)

// Store is the aggregate persistence interface. A single backend
// implements the job persistence contract plus lifecycle operations.
type Store interface {
	job.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
