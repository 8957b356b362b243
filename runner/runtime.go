package runner

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/conducthq/conduct/ext"
	"github.com/conducthq/conduct/job"
)

// runtime is the job.Runtime handed to an executing handler. Each Log
// call follows the write ordering the rest of the system relies on:
// store append first, cache snapshot second, live fan-out last. A
// subscriber can therefore never observe a line the store might lose.
type runtime struct {
	ctx context.Context // cancellation signal for the handler

	j          *job.Job
	store      job.Store
	cache      *job.Cache
	extensions *ext.Registry
	logger     *slog.Logger

	seq int
}

var _ job.Runtime = (*runtime)(nil)

func newRuntime(
	ctx context.Context,
	j *job.Job,
	store job.Store,
	cache *job.Cache,
	extensions *ext.Registry,
	logger *slog.Logger,
) *runtime {
	return &runtime{
		ctx:        ctx,
		j:          j,
		store:      store,
		cache:      cache,
		extensions: extensions,
		logger:     logger,
	}
}

// Log appends one line to the job's log and publishes it live.
// Persistence uses a context detached from the cancellation signal so a
// cancel request never drops lines already emitted by the handler.
func (rt *runtime) Log(line string) {
	rt.seq++
	rt.j.AppendLog(line)

	persistCtx := context.WithoutCancel(rt.ctx)
	if err := rt.store.AppendJobLog(persistCtx, rt.j.ID, line); err != nil {
		rt.logger.Error("failed to persist log line",
			slog.String("job_id", rt.j.ID.String()),
			slog.Int("seq", rt.seq),
			slog.String("error", err.Error()),
		)
	}
	rt.cache.Put(rt.j)
	rt.extensions.EmitJobLogged(persistCtx, rt.j, rt.seq, line)
}

// Logf is Log with fmt.Sprintf formatting.
func (rt *runtime) Logf(format string, args ...any) {
	rt.Log(fmt.Sprintf(format, args...))
}

// Cancelled reports whether cancellation has been requested.
func (rt *runtime) Cancelled() bool {
	select {
	case <-rt.ctx.Done():
		return true
	default:
		return false
	}
}

// Done exposes the cancellation signal as a channel.
func (rt *runtime) Done() <-chan struct{} {
	return rt.ctx.Done()
}
