// Package conduct provides the job orchestration core for long-running
// research computations: multi-tenant admission under global and per-user
// concurrency limits, live log streaming to any number of observers,
// crash-safe recovery after a process restart, and best-effort cooperative
// cancellation of in-flight work.
//
// Conduct is designed as a library, not a service. Import it, configure a
// store, register commands as ordinary Go functions, and drive it through
// the engine facade (or mount the bundled HTTP API).
//
// # Quick Start
//
//	eng, err := engine.Build(
//	    engine.WithStore(memory.New()),
//	    engine.WithConfig(conduct.Config{GlobalHeavySlots: 4, PerUserHeavySlots: 1}),
//	)
//
// # Architecture
//
// The durable store is the single source of truth for job records; an
// in-process cache mirrors it for fast reads and never exposes a status
// before the corresponding store write has committed. Heavy jobs pass
// through a FIFO admission queue governed by slot counters; light jobs run
// immediately. A per-job broadcast channel replays the log backlog to
// late subscribers and fans out live lines without ever blocking the
// producing runner.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
package conduct
