package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultTokenTTL = 12 * time.Hour

	// RoleAdmin marks ceremony operators and curators.
	RoleAdmin = "admin"
)

var (
	ErrMissingSigningSecret = errors.New("auth: signing secret must be provided")
	ErrMissingSubject       = errors.New("auth: subject claim must be provided")
	ErrInvalidSessionToken  = errors.New("auth: invalid session token")
)

// SessionClaims is the payload carried by awards session tokens.
type SessionClaims struct {
	Username  string   `json:"username,omitempty"`
	AvatarURL string   `json:"avatar_url,omitempty"`
	Roles     []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// HasRole reports whether the token carries the given role.
func (c SessionClaims) HasRole(role string) bool {
	for _, candidate := range c.Roles {
		if candidate == role {
			return true
		}
	}
	return false
}

// SessionManagerConfig configures the HS256 session token manager.
type SessionManagerConfig struct {
	SigningSecret []byte
	Issuer        string
	Audience      string
	TokenTTL      time.Duration
	Clock         func() time.Time
}

// SessionManager issues and validates the session tokens that authenticate
// voters and ceremony operators against the API.
type SessionManager struct {
	config SessionManagerConfig
	clock  func() time.Time
}

// NewSessionManager constructs a SessionManager with sane defaults.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	cfg.TokenTTL = ttl
	cfg.Clock = clock
	return &SessionManager{config: cfg, clock: clock}
}

// IssueSessionToken produces a signed JWT and its expiry in seconds for the
// supplied identity.
func (m *SessionManager) IssueSessionToken(_ context.Context, subject, username, avatarURL string, roles []string) (string, int64, error) {
	if len(m.config.SigningSecret) == 0 {
		return "", 0, ErrMissingSigningSecret
	}
	if subject == "" {
		return "", 0, ErrMissingSubject
	}

	now := m.clock().UTC()
	expiresAt := now.Add(m.config.TokenTTL).UTC()

	claims := SessionClaims{
		Username:  username,
		AvatarURL: avatarURL,
		Roles:     roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    m.config.Issuer,
			Audience:  []string{m.config.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.config.SigningSecret)
	if err != nil {
		return "", 0, err
	}
	return signed, int64(expiresAt.Sub(now).Seconds()), nil
}

// ValidateToken ensures the session JWT is well formed and returns its claims.
func (m *SessionManager) ValidateToken(tokenString string) (SessionClaims, error) {
	if len(m.config.SigningSecret) == 0 {
		return SessionClaims{}, ErrMissingSigningSecret
	}

	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("unexpected signing algorithm: %s", token.Method.Alg())
			}
			return m.config.SigningSecret, nil
		},
		jwt.WithAudience(m.config.Audience),
		jwt.WithIssuer(m.config.Issuer),
		jwt.WithTimeFunc(m.clock),
	)
	if err != nil {
		return SessionClaims{}, fmt.Errorf("%w: %v", ErrInvalidSessionToken, err)
	}
	if claims.Subject == "" {
		return SessionClaims{}, ErrMissingSubject
	}
	return *claims, nil
}
