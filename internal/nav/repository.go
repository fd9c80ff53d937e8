package nav

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aegis-admin/aegis/internal/shared"
)

// Repository provides PostgreSQL backed persistence for menus and the
// per-user-type configuration blob.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetUserTypeID returns the user's type id.
func (r *Repository) GetUserTypeID(ctx context.Context, userID int64) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(user_type_id, 0) FROM users WHERE id = $1`, userID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, shared.ErrNotFound
	}
	return id, err
}

// ListMenusForPermissions returns the distinct menus reachable through any
// of the permission ids, active or not. The resolver applies the status
// filter and ordering.
func (r *Repository) ListMenusForPermissions(ctx context.Context, permissionIDs []int64) ([]Menu, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT m.id, m.label, m.icon, m.route, m.display_order, m.is_group, m.parent_id, m.is_active
		 FROM menu_permissions mp JOIN menus m ON m.id = mp.menu_id
		 WHERE mp.permission_id = ANY($1)`, permissionIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var menus []Menu
	for rows.Next() {
		var menu Menu
		if err := rows.Scan(&menu.ID, &menu.Label, &menu.Icon, &menu.Route, &menu.DisplayOrder,
			&menu.IsGroup, &menu.ParentID, &menu.IsActive); err != nil {
			return nil, err
		}
		menus = append(menus, menu)
	}
	return menus, rows.Err()
}

// GetUserTypeConfig returns the raw configuration blob, which may be null.
func (r *Repository) GetUserTypeConfig(ctx context.Context, userTypeID int64) (json.RawMessage, error) {
	var blob json.RawMessage
	err := r.pool.QueryRow(ctx,
		`SELECT additional_config FROM user_types WHERE id = $1`, userTypeID).Scan(&blob)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	return blob, err
}

// SaveUserTypeConfig persists the configuration blob for the whole type.
func (r *Repository) SaveUserTypeConfig(ctx context.Context, userTypeID int64, blob json.RawMessage) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE user_types SET additional_config = $2, updated_at = NOW() WHERE id = $1`, userTypeID, blob)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ClearAllUserTypeConfigs drops every cached blob so the next read per type
// recomputes it.
func (r *Repository) ClearAllUserTypeConfigs(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE user_types SET additional_config = NULL, updated_at = NOW()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
