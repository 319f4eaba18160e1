package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rpggio/geoquest/internal/app"
	"github.com/rpggio/geoquest/internal/config"
	"github.com/rpggio/geoquest/internal/notify"
	"github.com/rpggio/geoquest/internal/sqlstore"
	"github.com/rpggio/geoquest/internal/transport"
	"golang.org/x/sync/errgroup"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "log setup error: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		closeLog()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	dsn := cfg.DB.DSN
	if cfg.DB.Driver == "sqlite" && dsn == "" {
		dsn = cfg.DB.Path
		if err := ensureDBDir(dsn); err != nil {
			return fmt.Errorf("preparing database path: %w", err)
		}
	}

	db, err := sqlstore.Open(ctx, cfg.DB.Driver, dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	stack, err := app.New(cfg, db, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	if cfg.Notify.RedisURL != "" {
		rdb, err := notify.OpenRedis(ctx, cfg.Notify.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		bridge := notify.NewRedisBridge(rdb, cfg.Notify.Channel, stack.Hub, logger.With("component", "redis"))
		g.Go(func() error { return bridge.Run(ctx) })
	}

	if cfg.Transport.Mode == "stdio" {
		// Stdin closing ends the process along with the bridge.
		g.Go(func() error {
			defer cancel()
			return stack.MCPServer("stdio").RunStdio(ctx)
		})
		return g.Wait()
	}

	server := transport.NewServer(cfg.Server.Addr(), stack.Router(), logger)
	logger.Info("starting http transport",
		"db", cfg.DB.Driver,
		"auth", cfg.Auth.Enabled,
		"mcp", cfg.MCP.Enabled,
	)
	g.Go(func() error { return server.Run(ctx) })
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// newLogger builds the process logger. Stdio mode logs to stderr so stdout
// carries only protocol frames.
func newLogger(cfg config.Config) (*slog.Logger, func(), error) {
	w := io.Writer(os.Stdout)
	if cfg.Transport.Mode == "stdio" {
		w = os.Stderr
	}
	closeFn := func() {}
	if cfg.Log.Path != "" {
		fw, err := newLogFileWriter(cfg.Log.Path)
		if err != nil {
			return nil, nil, err
		}
		w = fw
		closeFn = func() { _ = fw.Close() }
	}

	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Log.Level)}
	var handler slog.Handler = slog.NewTextHandler(w, opts)
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler), closeFn, nil
}

func ensureDBDir(path string) error {
	if path == ":memory:" || path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
