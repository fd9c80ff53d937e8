package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSessionsPurge removes session rows whose expiry has passed.
	TaskSessionsPurge = "sessions:purge"
	// TaskNavigationRefresh clears the cached navigation blobs so the next
	// read per user type recomputes against fresh permissions.
	TaskNavigationRefresh = "nav:refresh"
)

// NewSessionsPurgeTask constructs the purge task for the scheduler.
func NewSessionsPurgeTask() *asynq.Task {
	return asynq.NewTask(TaskSessionsPurge, nil)
}

// NewNavigationRefreshTask constructs the cache-clear task.
func NewNavigationRefreshTask() *asynq.Task {
	return asynq.NewTask(TaskNavigationRefresh, nil)
}

// SessionPurger deletes expired session rows.
type SessionPurger interface {
	DeleteExpiredSessions(ctx context.Context) (int64, error)
}

// NavigationCache clears cached navigation blobs.
type NavigationCache interface {
	RefreshAll(ctx context.Context) (int64, error)
}

// HandleSessionsPurge returns the handler for TaskSessionsPurge.
func HandleSessionsPurge(purger SessionPurger, logger *slog.Logger) asynq.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, t *asynq.Task) error {
		removed, err := purger.DeleteExpiredSessions(ctx)
		if err != nil {
			return err
		}
		logger.Info("expired sessions purged", slog.Int64("count", removed))
		return nil
	}
}

// HandleNavigationRefresh returns the handler for TaskNavigationRefresh.
func HandleNavigationRefresh(cache NavigationCache, logger *slog.Logger) asynq.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, t *asynq.Task) error {
		cleared, err := cache.RefreshAll(ctx)
		if err != nil {
			return err
		}
		logger.Info("navigation caches cleared", slog.Int64("user_types", cleared))
		return nil
	}
}
