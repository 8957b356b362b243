package middleware

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/conducthq/conduct/job"
)

// Logging returns middleware that logs job start and completion.
// Cancellation is logged at info level rather than error: a user
// cancelling their own job is not a fault.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		logger.Info("job started",
			slog.String("command", j.Command),
			slog.String("job_id", j.ID.String()),
			slog.String("owner", j.OwnerID),
			slog.String("class", string(j.Class)),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		switch {
		case err == nil:
			logger.Info("job completed",
				slog.String("command", j.Command),
				slog.String("job_id", j.ID.String()),
				slog.Duration("elapsed", elapsed),
			)
		case errors.Is(err, context.Canceled):
			logger.Info("job cancelled",
				slog.String("command", j.Command),
				slog.String("job_id", j.ID.String()),
				slog.Duration("elapsed", elapsed),
			)
		default:
			logger.Error("job failed",
				slog.String("command", j.Command),
				slog.String("job_id", j.ID.String()),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		}

		return err
	}
}
