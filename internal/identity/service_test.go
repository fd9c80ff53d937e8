package identity

import (
	"context"
	"sort"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/stretchr/testify/require"

	"github.com/aegis-admin/aegis/internal/shared"
)

type memoryRepo struct {
	users     map[int64]*User
	byEmail   map[string]*User
	userTypes map[int64]UserType
	sessions  map[string]Session
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		users:     make(map[int64]*User),
		byEmail:   make(map[string]*User),
		userTypes: make(map[int64]UserType),
		sessions:  make(map[string]Session),
	}
}

func (r *memoryRepo) addUser(user *User) {
	r.users[user.ID] = user
	r.byEmail[user.Email] = user
}

func (r *memoryRepo) FindByEmail(ctx context.Context, email string) (*User, error) {
	user, ok := r.byEmail[email]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return user, nil
}

func (r *memoryRepo) GetUser(ctx context.Context, id int64) (*User, error) {
	user, ok := r.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return user, nil
}

func (r *memoryRepo) GetUserType(ctx context.Context, id int64) (UserType, error) {
	ut, ok := r.userTypes[id]
	if !ok {
		return UserType{}, shared.ErrNotFound
	}
	return ut, nil
}

func (r *memoryRepo) LatestSession(ctx context.Context, userID int64) (Session, error) {
	var live []Session
	now := time.Now()
	for _, sess := range r.sessions {
		if sess.UserID == userID && !sess.Expired(now) {
			live = append(live, sess)
		}
	}
	if len(live) == 0 {
		return Session{}, shared.ErrNotFound
	}
	sort.Slice(live, func(i, j int) bool { return live[i].CreatedAt.After(live[j].CreatedAt) })
	return live[0], nil
}

func (r *memoryRepo) CreateSession(ctx context.Context, sess Session) error {
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now()
	}
	r.sessions[sess.ID] = sess
	return nil
}

func (r *memoryRepo) DeleteSession(ctx context.Context, id string) error {
	delete(r.sessions, id)
	return nil
}

type staticPerms struct {
	perms []string
	calls int
}

func (p *staticPerms) Resolve(ctx context.Context, userID int64) ([]string, error) {
	p.calls++
	return p.perms, nil
}

type tokenMetrics struct {
	reused []bool
}

func (m *tokenMetrics) ObserveTokenIssued(reused bool) {
	m.reused = append(m.reused, reused)
}

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func newTestService(repo *memoryRepo, perms *staticPerms, metrics *tokenMetrics) *Service {
	issuer := NewTokenIssuer("secret", "aegis", time.Hour)
	// Avoid wrapping a typed-nil *tokenMetrics in the Metrics interface,
	// which would defeat the service's nil check.
	var m Metrics
	if metrics != nil {
		m = metrics
	}
	return NewService(repo, perms, issuer, nil, m, nil)
}

func TestLoginIssuesToken(t *testing.T) {
	repo := newMemoryRepo()
	repo.addUser(&User{
		ID: 1, Email: "jane@example.com", Name: "Jane", IsActive: true,
		PasswordHash: hashPassword(t, "correct horse"), UserTypeID: 2,
	})
	repo.userTypes[2] = UserType{ID: 2, Name: "staff"}
	perms := &staticPerms{perms: []string{"dashboard.view"}}
	metrics := &tokenMetrics{}
	svc := newTestService(repo, perms, metrics)

	token, err := svc.Login(context.Background(), "jane@example.com", "correct horse", "10.0.0.1")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.Len(t, repo.sessions, 1)
	require.Equal(t, []bool{false}, metrics.reused)

	claims, err := svc.issuer.Parse(token)
	require.NoError(t, err)
	require.Equal(t, []string{"dashboard.view"}, claims.Permissions)
	require.Equal(t, "staff", claims.UserTypeName)
}

func TestLoginReusesLiveSessionVerbatim(t *testing.T) {
	repo := newMemoryRepo()
	repo.addUser(&User{
		ID: 1, Email: "jane@example.com", Name: "Jane", IsActive: true,
		PasswordHash: hashPassword(t, "correct horse"),
	})
	perms := &staticPerms{perms: []string{"dashboard.view"}}
	metrics := &tokenMetrics{}
	svc := newTestService(repo, perms, metrics)

	first, err := svc.Login(context.Background(), "jane@example.com", "correct horse", "10.0.0.1")
	require.NoError(t, err)

	// Permission set changes between logins; the live session wins anyway.
	perms.perms = []string{"dashboard.view", "reports.view"}
	second, err := svc.Login(context.Background(), "jane@example.com", "correct horse", "10.0.0.1")
	require.NoError(t, err)

	require.Equal(t, first, second, "live session token must be returned verbatim")
	require.Len(t, repo.sessions, 1, "no second session row")
	require.Equal(t, 1, perms.calls, "reuse must not re-resolve permissions")
	require.Equal(t, []bool{false, true}, metrics.reused)
}

func TestLoginExpiredSessionMintsFreshSnapshot(t *testing.T) {
	repo := newMemoryRepo()
	repo.addUser(&User{
		ID: 1, Email: "jane@example.com", Name: "Jane", IsActive: true,
		PasswordHash: hashPassword(t, "correct horse"),
	})
	repo.sessions["old"] = Session{
		ID: "old", Token: "stale", UserID: 1,
		ExpiresAt: time.Now().Add(-time.Minute),
		CreatedAt: time.Now().Add(-2 * time.Hour),
	}
	perms := &staticPerms{perms: []string{"reports.view"}}
	svc := newTestService(repo, perms, &tokenMetrics{})

	token, err := svc.Login(context.Background(), "jane@example.com", "correct horse", "10.0.0.1")
	require.NoError(t, err)
	require.NotEqual(t, "stale", token)
	require.Equal(t, 1, perms.calls)

	claims, err := svc.issuer.Parse(token)
	require.NoError(t, err)
	require.Equal(t, []string{"reports.view"}, claims.Permissions)
}

func TestLoginFailuresCollapseToInvalidCredentials(t *testing.T) {
	repo := newMemoryRepo()
	repo.addUser(&User{
		ID: 1, Email: "active@example.com", Name: "A", IsActive: true,
		PasswordHash: hashPassword(t, "right-password"),
	})
	repo.addUser(&User{
		ID: 2, Email: "inactive@example.com", Name: "B", IsActive: false,
		PasswordHash: hashPassword(t, "right-password"),
	})
	repo.addUser(&User{
		ID: 3, Email: "external@example.com", Name: "C", IsActive: true,
	})
	svc := newTestService(repo, &staticPerms{}, nil)

	cases := []struct {
		name     string
		email    string
		password string
	}{
		{"unknown email", "ghost@example.com", "whatever-pass"},
		{"wrong password", "active@example.com", "wrong-password"},
		{"inactive account", "inactive@example.com", "right-password"},
		{"no local password", "external@example.com", "right-password"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Login(context.Background(), tc.email, tc.password, "10.0.0.1")
			require.ErrorIs(t, err, shared.ErrInvalidCredentials)
		})
	}
}

func TestLogoutDeletesSession(t *testing.T) {
	repo := newMemoryRepo()
	repo.sessions["sess-1"] = Session{ID: "sess-1", UserID: 1, ExpiresAt: time.Now().Add(time.Hour)}
	svc := newTestService(repo, &staticPerms{}, nil)

	require.NoError(t, svc.Logout(context.Background(), "sess-1"))
	require.Empty(t, repo.sessions)

	// Missing session is not an error.
	require.NoError(t, svc.Logout(context.Background(), "sess-1"))
	require.NoError(t, svc.Logout(context.Background(), ""))
}

func TestGetOrIssueTokenToleratesMissingUserType(t *testing.T) {
	repo := newMemoryRepo()
	user := &User{ID: 1, Email: "jane@example.com", Name: "Jane", IsActive: true, UserTypeID: 99}
	repo.addUser(user)
	svc := newTestService(repo, &staticPerms{}, nil)

	token, err := svc.GetOrIssueToken(context.Background(), user)
	require.NoError(t, err)

	claims, err := svc.issuer.Parse(token)
	require.NoError(t, err)
	require.Zero(t, claims.UserTypeID)
}
