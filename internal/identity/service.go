package identity

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/aegis-admin/aegis/internal/shared"
)

// RepositoryPort defines the persistence capabilities the service needs.
type RepositoryPort interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	GetUser(ctx context.Context, id int64) (*User, error)
	GetUserType(ctx context.Context, id int64) (UserType, error)
	LatestSession(ctx context.Context, userID int64) (Session, error)
	CreateSession(ctx context.Context, sess Session) error
	DeleteSession(ctx context.Context, id string) error
}

// PermissionSource resolves the effective permission names for a user.
type PermissionSource interface {
	Resolve(ctx context.Context, userID int64) ([]string, error)
}

// Metrics is the counter surface for token issuance.
type Metrics interface {
	ObserveTokenIssued(reused bool)
}

// Service wraps authentication and token issuance rules.
type Service struct {
	repo     RepositoryPort
	perms    PermissionSource
	issuer   *TokenIssuer
	throttle *LoginThrottle
	metrics  Metrics
	logger   *slog.Logger
}

// NewService constructs a Service. throttle and metrics may be nil.
func NewService(repo RepositoryPort, perms PermissionSource, issuer *TokenIssuer, throttle *LoginThrottle, metrics Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		perms:    perms,
		issuer:   issuer,
		throttle: throttle,
		metrics:  metrics,
		logger:   logger,
	}
}

// Login validates credentials and returns a bearer token. Unknown email,
// wrong password, missing hash and inactive account all collapse to
// ErrInvalidCredentials so callers cannot enumerate identities.
func (s *Service) Login(ctx context.Context, email, password, addr string) (string, error) {
	if err := s.throttle.Allow(ctx, email, addr); err != nil {
		return "", err
	}

	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) {
			if rerr := s.throttle.RecordFailure(ctx, email, addr); rerr != nil {
				s.logger.Warn("record login failure", slog.Any("error", rerr))
			}
		}
		return "", err
	}

	if err := s.throttle.Reset(ctx, email, addr); err != nil {
		s.logger.Warn("reset login throttle", slog.Any("error", err))
	}
	return s.GetOrIssueToken(ctx, user)
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if user.PasswordHash == "" {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// GetOrIssueToken returns the user's newest unexpired session token
// verbatim, without re-resolving permissions. Only when no live session
// remains is a fresh permission snapshot resolved, signed and persisted as a
// new session row; expired rows are left for the purge job.
func (s *Service) GetOrIssueToken(ctx context.Context, user *User) (string, error) {
	sess, err := s.repo.LatestSession(ctx, user.ID)
	if err == nil {
		if s.metrics != nil {
			s.metrics.ObserveTokenIssued(true)
		}
		return sess.Token, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return "", err
	}

	permissions, err := s.perms.Resolve(ctx, user.ID)
	if err != nil {
		return "", err
	}
	userType, err := s.repo.GetUserType(ctx, user.UserTypeID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return "", err
	}

	sessionID := uuid.NewString()
	token, expiresAt, err := s.issuer.Issue(user, userType, sessionID, permissions)
	if err != nil {
		return "", err
	}
	if err := s.repo.CreateSession(ctx, Session{
		ID:        sessionID,
		Token:     token,
		UserID:    user.ID,
		ExpiresAt: expiresAt,
	}); err != nil {
		return "", err
	}
	if s.metrics != nil {
		s.metrics.ObserveTokenIssued(false)
	}
	s.logger.Info("token issued",
		slog.Int64("user", user.ID),
		slog.Int("permissions", len(permissions)))
	return token, nil
}

// Logout deletes the presented session row. Missing rows are fine.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	return s.repo.DeleteSession(ctx, sessionID)
}
