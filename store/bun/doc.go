// Package bunstore implements store.Store using the Bun ORM. Two
// constructors are provided: OpenSQLite for single-node deployments and
// tests (pure-Go driver via sqliteshim), and OpenPostgres for shared
// deployments.
//
// An existing *bun.DB can also be passed through New; the caller then
// owns the db lifecycle and bunstore never closes it:
//
//	import (
//	    "github.com/uptrace/bun"
//	    "github.com/uptrace/bun/dialect/pgdialect"
//	    "github.com/uptrace/bun/driver/pgdriver"
//	    bunstore "github.com/conducthq/conduct/store/bun"
//	)
//
//	sqldb := sql.OpenDB(pgdriver.NewConnector(...))
//	db := bun.NewDB(sqldb, pgdialect.New())
//	store := bunstore.New(db)
//	store.Migrate(ctx)
package bunstore
