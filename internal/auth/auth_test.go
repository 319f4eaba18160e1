package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rpggio/geoquest/internal/auth"
	"github.com/stretchr/testify/require"
)

func TestJWT_RoundTrip(t *testing.T) {
	ctx := context.Background()
	a := auth.NewJWT("secret", "geoquest-auth")

	token, err := a.Issue(auth.Identity{Subject: "T1", Role: auth.RoleTeam}, time.Hour)
	require.NoError(t, err)
	id, err := a.Verify(ctx, token)
	require.NoError(t, err)
	require.Equal(t, "T1", id.Subject)
	require.False(t, id.IsAdmin())

	admin, err := a.Issue(auth.Identity{Subject: "ops", Role: auth.RoleAdmin}, time.Hour)
	require.NoError(t, err)
	id, err = a.Verify(ctx, admin)
	require.NoError(t, err)
	require.True(t, id.IsAdmin())
}

func TestJWT_Rejects(t *testing.T) {
	ctx := context.Background()
	a := auth.NewJWT("secret", "geoquest-auth")

	expired, err := a.Issue(auth.Identity{Subject: "T1"}, -time.Minute)
	require.NoError(t, err)
	_, err = a.Verify(ctx, expired)
	require.ErrorIs(t, err, auth.ErrUnauthorized)

	other, err := auth.NewJWT("other-secret", "geoquest-auth").Issue(auth.Identity{Subject: "T1"}, time.Hour)
	require.NoError(t, err)
	_, err = a.Verify(ctx, other)
	require.ErrorIs(t, err, auth.ErrUnauthorized)

	wrongIssuer, err := auth.NewJWT("secret", "someone-else").Issue(auth.Identity{Subject: "T1"}, time.Hour)
	require.NoError(t, err)
	_, err = a.Verify(ctx, wrongIssuer)
	require.ErrorIs(t, err, auth.ErrUnauthorized)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "T1"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = a.Verify(ctx, unsigned)
	require.ErrorIs(t, err, auth.ErrUnauthorized)

	_, err = a.Verify(ctx, "not-a-token")
	require.ErrorIs(t, err, auth.ErrUnauthorized)
}

func TestBearerToken(t *testing.T) {
	require.Equal(t, "abc", auth.BearerToken("Bearer abc"))
	require.Equal(t, "abc", auth.BearerToken("bearer  abc "))
	require.Empty(t, auth.BearerToken("Basic abc"))
	require.Empty(t, auth.BearerToken(""))
}

func TestRequire(t *testing.T) {
	ctx := context.Background()
	require.ErrorIs(t, auth.RequireTeam(ctx, "T1"), auth.ErrUnauthorized)
	require.ErrorIs(t, auth.RequireAdmin(ctx), auth.ErrUnauthorized)

	teamCtx := auth.WithIdentity(ctx, auth.Identity{Subject: "T1", Role: auth.RoleTeam})
	require.NoError(t, auth.RequireTeam(teamCtx, "T1"))
	require.ErrorIs(t, auth.RequireTeam(teamCtx, "T2"), auth.ErrPermissionDenied)
	require.ErrorIs(t, auth.RequireAdmin(teamCtx), auth.ErrPermissionDenied)

	adminCtx := auth.WithIdentity(ctx, auth.Anonymous)
	require.NoError(t, auth.RequireTeam(adminCtx, "T2"))
	require.NoError(t, auth.RequireAdmin(adminCtx))
}
