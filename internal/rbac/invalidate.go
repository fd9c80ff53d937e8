package rbac

import (
	"context"
	"log/slog"
)

// SessionSweepStore exposes the membership lookup and session deletion the
// cascade needs.
type SessionSweepStore interface {
	ListUserIDsForRoles(ctx context.Context, roleIDs []int64) ([]int64, error)
	DeleteSessionsForUsers(ctx context.Context, userIDs []int64) (int64, error)
}

// Cascade removes issued sessions after a permission-affecting change so
// stale tokens stop being honored. Both expired and live sessions go; the
// next login mints a fresh permission snapshot.
type Cascade struct {
	store  SessionSweepStore
	logger *slog.Logger
}

// NewCascade constructs a Cascade.
func NewCascade(store SessionSweepStore, logger *slog.Logger) *Cascade {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cascade{store: store, logger: logger}
}

// InvalidateByRole deletes every session belonging to a member of the role
// and returns the count removed. An empty membership is a no-op returning 0.
func (c *Cascade) InvalidateByRole(ctx context.Context, roleID int64) (int64, error) {
	return c.InvalidateByRoles(ctx, []int64{roleID})
}

// InvalidateByRoles unions the member sets of all given roles before
// deleting, so overlapping memberships are swept once.
func (c *Cascade) InvalidateByRoles(ctx context.Context, roleIDs []int64) (int64, error) {
	if len(roleIDs) == 0 {
		return 0, nil
	}
	userIDs, err := c.store.ListUserIDsForRoles(ctx, roleIDs)
	if err != nil {
		return 0, err
	}
	userIDs = uniqueIDs(userIDs)
	if len(userIDs) == 0 {
		return 0, nil
	}
	removed, err := c.store.DeleteSessionsForUsers(ctx, userIDs)
	if err != nil {
		return 0, err
	}
	c.logger.Info("sessions invalidated",
		slog.Int("users", len(userIDs)),
		slog.Int64("sessions", removed))
	return removed, nil
}

// InvalidateByUser deletes every session of a single user. Used when the
// user's own role set changes.
func (c *Cascade) InvalidateByUser(ctx context.Context, userID int64) (int64, error) {
	return c.store.DeleteSessionsForUsers(ctx, []int64{userID})
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
