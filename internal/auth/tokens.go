package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"backend/internal/model"
)

// TokenType tags a claim set as access or refresh.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Named token failures. Each maps to its own unauthorized message at the
// boundary; the token manager itself never talks HTTP.
var (
	ErrTokenMissing = errors.New("authorization token required")
	ErrTokenInvalid = errors.New("invalid token")
	ErrTokenExpired = errors.New("token has expired")
	ErrTokenRevoked = errors.New("token has been revoked")
)

// Claims is the signed claim set carried by both token types. Username
// and email ride along on access tokens only.
type Claims struct {
	jwt.RegisteredClaims
	TokenType TokenType `json:"typ"`
	Username  string    `json:"username,omitempty"`
	Email     string    `json:"email,omitempty"`
}

// TokenPair is the result of issuing tokens for a user.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// ManagerConfig configures a Manager. Now defaults to time.Now and
// exists so tests can pin the clock.
type ManagerConfig struct {
	Secret        []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	RotateRefresh bool
	Blacklist     Blacklist
	Now           func() time.Time
}

// Manager issues, validates, and revokes signed tokens. Tokens are never
// persisted; revocation adds the jti to the blacklist until the token
// would have expired anyway.
type Manager struct {
	secret        []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	rotateRefresh bool
	blacklist     Blacklist
	now           func() time.Time
}

// NewManager constructs a Manager from config, applying defaults for
// zero TTLs (15m access, 30d refresh).
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 30 * 24 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Blacklist == nil {
		cfg.Blacklist = NewMemoryBlacklist()
	}
	return &Manager{
		secret:        cfg.Secret,
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		rotateRefresh: cfg.RotateRefresh,
		blacklist:     cfg.Blacklist,
		now:           cfg.Now,
	}
}

// RotateRefresh reports whether refresh tokens are revoked after use.
func (m *Manager) RotateRefresh() bool {
	return m.rotateRefresh
}

// Issue mints a fresh access/refresh pair bound to the user. Each token
// gets its own jti.
func (m *Manager) Issue(user *model.User) (*TokenPair, error) {
	now := m.now()

	access, err := m.sign(Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessTTL)),
		},
		TokenType: TokenTypeAccess,
		Username:  user.Username,
		Email:     user.Email,
	})
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refresh, err := m.sign(Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.refreshTTL)),
		},
		TokenType: TokenTypeRefresh,
	})
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
	}, nil
}

// Validate verifies signature, expiry, token type, and revocation state,
// returning the claims on success. Failures are one of the named token
// errors (blacklist I/O problems excepted).
func (m *Manager) Validate(ctx context.Context, raw string, want TokenType) (*Claims, error) {
	if raw == "" {
		return nil, ErrTokenMissing
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !token.Valid || claims.TokenType != want || claims.ID == "" || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}

	revoked, err := m.blacklist.Contains(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("blacklist lookup: %w", err)
	}
	if revoked {
		return nil, ErrTokenRevoked
	}

	return claims, nil
}

// Revoke renders the token unacceptable by blacklisting its jti for the
// token's remaining lifetime.
func (m *Manager) Revoke(ctx context.Context, claims *Claims) error {
	ttl := time.Duration(0)
	if claims.ExpiresAt != nil {
		ttl = claims.ExpiresAt.Sub(m.now())
	}
	if err := m.blacklist.Add(ctx, claims.ID, ttl); err != nil {
		return fmt.Errorf("blacklist add: %w", err)
	}
	return nil
}

func (m *Manager) sign(claims Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}
