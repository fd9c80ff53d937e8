package identity

import (
	"encoding/json"
	"time"
)

// User is an identity record. The RBAC core only reads it. PasswordHash is
// empty for external accounts, which can never pass password login.
type User struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	IsActive     bool
	UserTypeID   int64
	Extra        json.RawMessage
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserType groups users under a shared portal configuration blob. The blob
// doubles as the cache target for the generated navigation tree.
type UserType struct {
	ID               int64
	Name             string
	AdditionalConfig json.RawMessage
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Session represents one issued token. Multiple sessions may coexist per
// user; nothing here enforces single-session.
type Session struct {
	ID        string
	Token     string
	UserID    int64
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the session's token lifetime has passed.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
