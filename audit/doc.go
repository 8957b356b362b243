// Package audit bridges Conduct job lifecycle events to an external
// audit trail backend.
//
// The extension converts each lifecycle hook into a structured
// [AuditEvent] and hands it to a caller-provided [Recorder]. The
// Recorder interface is defined locally so this package carries no
// dependency on any particular audit system — callers inject an adapter
// at wiring time:
//
//	trail := audit.New(audit.RecorderFunc(func(ctx context.Context, evt *audit.AuditEvent) error {
//	    return auditClient.Record(ctx, evt.Action, evt.ResourceID, evt.Metadata)
//	}))
//	eng, err := engine.Build(
//	    engine.WithStore(st),
//	    engine.WithExtension(trail),
//	)
//
// Recorder failures are logged and swallowed: the audit trail never
// blocks or fails job execution.
package audit
