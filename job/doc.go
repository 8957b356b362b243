// Package job defines the job record and its finite state machine, the
// typed command registry with submit-time schema validation, the
// persistence contract, and the in-process cache that mirrors the store.
//
// # State machine
//
//	queued ──▶ running ──▶ done | failed | cancelled
//	   └──────────────────▶ cancelled
//
// done, failed, and cancelled are terminal: exactly one terminal
// transition ever occurs, and any further transition attempt is a
// conflict.
//
// # Handler contract
//
// A handler is a pure function of (params, log sink, cancellation token)
// producing output references or an error. The core never interprets the
// meaning of parameters or outputs beyond schema validation.
package job
