// Package auth issues and verifies the bearer tokens that carry the acting
// user's identity into the workflow.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ovaphlow/pitchfork/service-civic-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-civic-go/pkg/utilities"
)

// Actor is the authenticated caller of an operation.
type Actor struct {
	SubjectID string      `json:"sub"`
	Role      entity.Role `json:"role"`
	City      string      `json:"city,omitempty"`
}

// IsAdmin reports whether the actor passes admin guards. Superadmins do.
func (a Actor) IsAdmin() bool {
	return a.Role == entity.RoleAdmin || a.Role == entity.RoleSuperadmin
}

// Claims is the JWT payload.
type Claims struct {
	Role entity.Role `json:"role"`
	City string      `json:"city,omitempty"`
	jwt.RegisteredClaims
}

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrMissingSecret = errors.New("JWT_SECRET must be set")
)

type Config struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		Secret: utilities.GetEnv("JWT_SECRET", ""),
		Issuer: utilities.GetEnv("JWT_ISSUER", "civic-api"),
		TTL:    utilities.GetEnvDuration("JWT_TTL", 24*time.Hour),
	}
}

// Validate rejects a config without a signing secret.
func (c Config) Validate() error {
	if c.Secret == "" {
		return ErrMissingSecret
	}
	return nil
}

// TokenIssuer signs and verifies HS256 access tokens.
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(cfg Config) *TokenIssuer {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenIssuer{secret: []byte(cfg.Secret), issuer: cfg.Issuer, ttl: ttl, now: time.Now}
}

// Issue creates an access token for u and returns it with its lifetime.
func (t *TokenIssuer) Issue(u *entity.User) (string, time.Duration, error) {
	if len(t.secret) == 0 {
		return "", 0, ErrMissingSecret
	}
	now := t.now()
	claims := Claims{
		Role: u.Role,
		City: u.City,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", 0, err
	}
	return signed, t.ttl, nil
}

// Parse verifies token and returns the actor it names.
// An issuer without a secret accepts nothing.
func (t *TokenIssuer) Parse(token string) (Actor, error) {
	if len(t.secret) == 0 {
		return Actor{}, fmt.Errorf("%w: %w", ErrInvalidToken, ErrMissingSecret)
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(tok *jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" || !claims.Role.Valid() {
		return Actor{}, fmt.Errorf("%w: missing subject or role", ErrInvalidToken)
	}
	return Actor{SubjectID: claims.Subject, Role: claims.Role, City: claims.City}, nil
}

type ctxKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

// ActorFrom returns the actor stored by Authenticate.
func ActorFrom(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(ctxKey{}).(Actor)
	return a, ok
}
