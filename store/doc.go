// Package store defines the aggregate persistence interface.
//
// The composite [Store] combines the job persistence contract with
// backend lifecycle operations:
//
//	type Store interface {
//	    job.Store
//
//	    Migrate(ctx context.Context) error
//	    Ping(ctx context.Context) error
//	    Close() error
//	}
//
// # Available Backends
//
//   - store/memory — in-memory store for development and testing
//   - store/bun — Bun ORM backend for SQLite and PostgreSQL
//
// # Usage
//
//	import storebun "github.com/conducthq/conduct/store/bun"
//
//	s, err := storebun.OpenSQLite("file:conduct.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
// # Migrations
//
// Call Migrate once at startup to create or update the schema:
//
//	if err := s.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
package store
