// Package recovery reconciles jobs orphaned by a previous process
// instance. No runner state survives a restart, so every row still in
// running status is necessarily abandoned: the sweep transitions each
// one directly to cancelled with a forced-cancellation log line. It
// runs once at startup, before the system accepts new submissions, so
// the governor's slot counters always start from zero.
package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/conducthq/conduct/job"
)

// ForcedCancellationLine is the log line appended to every swept job.
const ForcedCancellationLine = "cancelled: process restarted while job was running"

// Sweep cancels every running row. Returns the number of jobs swept.
// No attempt is made to resume or replay handlers.
func Sweep(ctx context.Context, store job.Store, logger *slog.Logger) (int, error) {
	orphans, err := store.ListJobs(ctx, job.ListOpts{State: job.StateRunning})
	if err != nil {
		return 0, fmt.Errorf("recovery: list running jobs: %w", err)
	}

	now := time.Now().UTC()
	swept := 0
	for _, j := range orphans {
		j.AppendLog(ForcedCancellationLine)
		j.State = job.StateCancelled
		j.FinishedAt = &now

		if err := store.UpdateJob(ctx, j); err != nil {
			return swept, fmt.Errorf("recovery: cancel orphaned job %s: %w", j.ID, err)
		}
		swept++

		logger.Warn("cancelled orphaned job",
			slog.String("job_id", j.ID.String()),
			slog.String("command", j.Command),
			slog.String("owner", j.OwnerID),
		)
	}

	if swept > 0 {
		logger.Info("recovery sweep complete", slog.Int("swept", swept))
	}
	return swept, nil
}
