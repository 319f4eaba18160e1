// Package auth validates collaborator tokens and carries the caller's
// identity through request contexts.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrUnauthorized indicates invalid or missing credentials.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrPermissionDenied indicates the caller may not act on the target.
	ErrPermissionDenied = errors.New("permission denied")
)

// Role is what a token holder may do.
type Role string

const (
	RoleTeam  Role = "team"
	RoleAdmin Role = "admin"
)

// Identity is the authenticated caller. For team tokens Subject is the team id.
type Identity struct {
	Subject string `json:"sub"`
	Role    Role   `json:"role"`
}

// IsAdmin reports whether the identity holds the admin role.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// CanActAs reports whether the identity may act for teamID.
func (i Identity) CanActAs(teamID string) bool {
	return i.IsAdmin() || (i.Subject != "" && i.Subject == teamID)
}

// Verifier turns a bearer token into an Identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// Claims are the JWT claims issued by the auth collaborator.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// JWT verifies HS256 tokens signed with a shared secret.
type JWT struct {
	secret []byte
	issuer string
}

// NewJWT creates a JWT verifier. An empty issuer accepts any issuer.
func NewJWT(secret, issuer string) *JWT {
	return &JWT{secret: []byte(secret), issuer: issuer}
}

// Verify validates signature, expiry and issuer.
func (a *JWT) Verify(_ context.Context, tokenStr string) (Identity, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return Identity{}, fmt.Errorf("%w: invalid token", ErrUnauthorized)
	}

	role := RoleTeam
	if Role(claims.Role) == RoleAdmin {
		role = RoleAdmin
	}
	return Identity{Subject: claims.Subject, Role: role}, nil
}

// Issue signs a token for id valid for ttl. The auth collaborator normally
// issues tokens; this is used by local tooling and tests.
func (a *JWT) Issue(id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: string(id.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.Subject,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

type identityKey struct{}

// WithIdentity returns ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity stored in ctx, if present.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// RequireTeam checks that the caller may act for teamID.
func RequireTeam(ctx context.Context, teamID string) error {
	id, ok := FromContext(ctx)
	if !ok {
		return ErrUnauthorized
	}
	if !id.CanActAs(teamID) {
		return fmt.Errorf("%w: %s may not act for team %s", ErrPermissionDenied, id.Subject, teamID)
	}
	return nil
}

// RequireAdmin checks that the caller holds the admin role.
func RequireAdmin(ctx context.Context) error {
	id, ok := FromContext(ctx)
	if !ok {
		return ErrUnauthorized
	}
	if !id.IsAdmin() {
		return fmt.Errorf("%w: admin role required", ErrPermissionDenied)
	}
	return nil
}

// Anonymous is the identity injected when authentication is disabled.
var Anonymous = Identity{Subject: "local", Role: RoleAdmin}
