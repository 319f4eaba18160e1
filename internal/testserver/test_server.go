// Package testserver runs the full HTTP stack over a temporary SQLite
// store for end-to-end tests.
package testserver

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rpggio/geoquest/internal/app"
	"github.com/rpggio/geoquest/internal/auth"
	"github.com/rpggio/geoquest/internal/config"
	"github.com/rpggio/geoquest/internal/sqlstore"
	"github.com/stretchr/testify/require"
)

// Secret signs test tokens when authentication is enabled.
const Secret = "test-secret"

type TestServer struct {
	Server *httptest.Server
	Stack  *app.Stack
	Config config.Config
}

// Option adjusts the configuration before the stack is built.
type Option func(*config.Config)

// WithAuth enables JWT authentication.
func WithAuth() Option {
	return func(cfg *config.Config) {
		cfg.Auth.Enabled = true
		cfg.Auth.JWTSecret = Secret
		cfg.Auth.Issuer = "geoquest-test"
	}
}

// WithConfig applies fn to the configuration.
func WithConfig(fn func(*config.Config)) Option {
	return Option(fn)
}

func New(t *testing.T, opts ...Option) *TestServer {
	t.Helper()

	cfg := config.Default()
	cfg.DB.Path = filepath.Join(t.TempDir(), "geoquest.db")
	cfg.Ledger.MaxRetries = 50
	cfg.Ledger.BaseBackoffMs = 1
	cfg.Ledger.MaxBackoffMs = 5
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := sqlstore.New(cfg.DB.Path)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(context.Background()))

	stack, err := app.New(cfg, db, nil)
	require.NoError(t, err)

	server := httptest.NewServer(stack.Router())

	t.Cleanup(func() {
		server.Close()
		_ = db.Close()
	})

	return &TestServer{Server: server, Stack: stack, Config: cfg}
}

// Token signs a token for id. It fails the test when auth is disabled.
func (ts *TestServer) Token(t *testing.T, id auth.Identity) string {
	t.Helper()
	token, err := ts.Stack.IssueToken(id, time.Hour)
	require.NoError(t, err)
	return token
}
