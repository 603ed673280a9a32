package workers

import (
	"context"
	"log/slog"
	"time"

	"chat-relay/repositories"
)

// RetentionWorker prunes rooms whose record has been idle longer than
// maxIdle. It runs once at startup and then on a fixed period,
// independent of connection lifecycles: an idle room has had no
// writers for the whole window, so the prune needs no coordination
// with live appends.
type RetentionWorker struct {
	repository repositories.IRoomRepository
	log        *slog.Logger
	maxIdle    time.Duration
	period     time.Duration
}

func NewRetentionWorker(repository repositories.IRoomRepository, log *slog.Logger,
	maxIdle, period time.Duration) RetentionWorker {
	return RetentionWorker{repository: repository, log: log, maxIdle: maxIdle, period: period}
}

func (w RetentionWorker) Name() string {
	return "retention"
}

func (w RetentionWorker) Run(ctx context.Context) error {
	w.prune()

	ticker := time.NewTicker(w.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.prune()
		}
	}
}

func (w RetentionWorker) prune() {
	deleted, err := w.repository.PruneIdleRooms(w.maxIdle)
	if err != nil {
		w.log.Error("room prune failed", "error", err)
		return
	}
	if deleted > 0 {
		w.log.Info("room prune completed", "deleted", deleted)
	}
}
