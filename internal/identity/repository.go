package identity

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aegis-admin/aegis/internal/shared"
)

// Repository provides PostgreSQL backed persistence for users, user types
// and sessions.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindByEmail looks a user up by exact email. Lookup is case-sensitive.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*User, error) {
	return r.scanUser(r.pool.QueryRow(ctx,
		`SELECT id, email, name, COALESCE(password_hash, ''), is_active, COALESCE(user_type_id, 0), extra, created_at, updated_at
		 FROM users WHERE email = $1`, email))
}

// GetUser fetches a user by id.
func (r *Repository) GetUser(ctx context.Context, id int64) (*User, error) {
	return r.scanUser(r.pool.QueryRow(ctx,
		`SELECT id, email, name, COALESCE(password_hash, ''), is_active, COALESCE(user_type_id, 0), extra, created_at, updated_at
		 FROM users WHERE id = $1`, id))
}

func (r *Repository) scanUser(row pgx.Row) (*User, error) {
	var user User
	err := row.Scan(&user.ID, &user.Email, &user.Name, &user.PasswordHash, &user.IsActive,
		&user.UserTypeID, &user.Extra, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserType fetches a user type by id.
func (r *Repository) GetUserType(ctx context.Context, id int64) (UserType, error) {
	var ut UserType
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, additional_config, created_at, updated_at FROM user_types WHERE id = $1`, id).
		Scan(&ut.ID, &ut.Name, &ut.AdditionalConfig, &ut.CreatedAt, &ut.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return UserType{}, shared.ErrNotFound
	}
	if err != nil {
		return UserType{}, err
	}
	return ut, nil
}

// LatestSession returns the user's most recently created unexpired session,
// or ErrNotFound when none remains.
func (r *Repository) LatestSession(ctx context.Context, userID int64) (Session, error) {
	var sess Session
	err := r.pool.QueryRow(ctx,
		`SELECT id, token, user_id, expires_at, created_at FROM sessions
		 WHERE user_id = $1 AND expires_at > NOW()
		 ORDER BY created_at DESC LIMIT 1`, userID).
		Scan(&sess.ID, &sess.Token, &sess.UserID, &sess.ExpiresAt, &sess.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, shared.ErrNotFound
	}
	if err != nil {
		return Session{}, err
	}
	return sess, nil
}

// CreateSession persists an issued token. Older rows, expired or not, stay
// untouched.
func (r *Repository) CreateSession(ctx context.Context, sess Session) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO sessions (id, token, user_id, expires_at) VALUES ($1, $2, $3, $4)`,
		sess.ID, sess.Token, sess.UserID, sess.ExpiresAt)
	return err
}

// DeleteSession removes one session row by id.
func (r *Repository) DeleteSession(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

// DeleteExpiredSessions removes rows whose expiry has passed and returns the
// count. Issued tokens never resurrect a deleted row.
func (r *Repository) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
