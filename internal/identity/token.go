package identity

import (
	"fmt"
	"strconv"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/aegis-admin/aegis/internal/shared"
)

// TokenIssuer signs and verifies bearer tokens with a shared-secret HMAC.
// Claims carry the identity attributes plus one entry per granted permission;
// the permission list is a point-in-time snapshot that is never refreshed
// within a token's lifetime.
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer constructs a TokenIssuer. ttl defaults to 60 minutes when
// non-positive.
func NewTokenIssuer(secret, issuer string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = 60 * time.Minute
	}
	return &TokenIssuer{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

// TTL returns the configured token lifetime.
func (i *TokenIssuer) TTL() time.Duration {
	return i.ttl
}

// Issue signs a token for the user with the resolved permission snapshot and
// returns it together with its expiry.
func (i *TokenIssuer) Issue(user *User, userType UserType, sessionID string, permissions []string) (string, time.Time, error) {
	now := i.now().UTC()
	exp := now.Add(i.ttl)

	claims := jwtv5.MapClaims{
		"iss":            i.issuer,
		"sub":            strconv.FormatInt(user.ID, 10),
		"iat":            now.Unix(),
		"nbf":            now.Unix(),
		"exp":            exp.Unix(),
		"sid":            sessionID,
		"name":           user.Name,
		"email":          user.Email,
		"user_type_id":   userType.ID,
		"user_type_name": userType.Name,
		"perms":          permissions,
	}
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims)
	signed, err := tk.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Parse verifies the signature and lifetime of a token and decodes the
// claims snapshot. Any verification failure collapses to ErrUnauthorized.
func (i *TokenIssuer) Parse(token string) (*shared.Claims, error) {
	parsed, err := jwtv5.Parse(token, func(t *jwtv5.Token) (any, error) {
		if _, ok := t.Method.(*jwtv5.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return i.secret, nil
	}, jwtv5.WithIssuer(i.issuer), jwtv5.WithTimeFunc(i.now))
	if err != nil || !parsed.Valid {
		return nil, shared.ErrUnauthorized
	}
	mc, ok := parsed.Claims.(jwtv5.MapClaims)
	if !ok {
		return nil, shared.ErrUnauthorized
	}

	claims := &shared.Claims{}
	if sub, err := mc.GetSubject(); err == nil {
		claims.UserID, _ = strconv.ParseInt(sub, 10, 64)
	}
	claims.Name, _ = mc["name"].(string)
	claims.Email, _ = mc["email"].(string)
	claims.SessionID, _ = mc["sid"].(string)
	claims.UserTypeID = intClaim(mc["user_type_id"])
	claims.UserTypeName, _ = mc["user_type_name"].(string)
	if raw, ok := mc["perms"].([]any); ok {
		claims.Permissions = make([]string, 0, len(raw))
		for _, entry := range raw {
			if name, ok := entry.(string); ok {
				claims.Permissions = append(claims.Permissions, name)
			}
		}
	}
	if claims.UserID == 0 {
		return nil, shared.ErrUnauthorized
	}
	return claims, nil
}

// intClaim folds the float64 that encoding/json produces for numbers back
// into an int64.
func intClaim(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	default:
		return 0
	}
}
