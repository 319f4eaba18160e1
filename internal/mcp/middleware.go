package mcp

import (
	"context"
	"fmt"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/geoquest/internal/auth"
)

// authMiddleware resolves the caller's identity from the Authorization
// header of the HTTP request carrying the call.
func authMiddleware(verifier auth.Verifier) sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			// Protocol handshake carries no identity.
			if method == "initialize" || method == "ping" || method == "notifications/initialized" {
				return next(ctx, method, req)
			}

			extra := req.GetExtra()
			if extra == nil || extra.Header == nil {
				return nil, fmt.Errorf("%w: missing headers", auth.ErrUnauthorized)
			}

			token := auth.BearerToken(extra.Header.Get("Authorization"))
			if token == "" {
				return nil, fmt.Errorf("%w: missing bearer token", auth.ErrUnauthorized)
			}

			id, err := verifier.Verify(ctx, token)
			if err != nil {
				return nil, err
			}

			return next(auth.WithIdentity(ctx, id), method, req)
		}
	}
}

// noAuthMiddleware runs every call as the anonymous operator.
func noAuthMiddleware() sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			return next(auth.WithIdentity(ctx, auth.Anonymous), method, req)
		}
	}
}

// subject returns the caller's identity subject for logging.
func subject(ctx context.Context) string {
	id, _ := auth.FromContext(ctx)
	return id.Subject
}
