// Package app wires the geoquest services over a store and change hub.
package app

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/rpggio/geoquest/internal/auth"
	"github.com/rpggio/geoquest/internal/config"
	"github.com/rpggio/geoquest/internal/domain/activity"
	"github.com/rpggio/geoquest/internal/domain/assignment"
	"github.com/rpggio/geoquest/internal/domain/leaderboard"
	"github.com/rpggio/geoquest/internal/domain/ledger"
	"github.com/rpggio/geoquest/internal/domain/proximity"
	"github.com/rpggio/geoquest/internal/domain/quest"
	"github.com/rpggio/geoquest/internal/domain/team"
	"github.com/rpggio/geoquest/internal/geo"
	"github.com/rpggio/geoquest/internal/mcp"
	"github.com/rpggio/geoquest/internal/notify"
	"github.com/rpggio/geoquest/internal/sqlstore"
	"github.com/rpggio/geoquest/internal/transport"
)

// Stack is the full set of services behind one store.
type Stack struct {
	DB          *sqlstore.DB
	Hub         *notify.Hub
	Index       *geo.Index
	Quests      *quest.Service
	Teams       *team.Service
	Ledger      *ledger.Service
	Activity    *activity.Service
	Selector    *assignment.Selector
	Watcher     *proximity.Watcher
	Leaderboard *leaderboard.View
	Verifier    auth.Verifier

	cfg    config.Config
	logger *slog.Logger
}

// New builds the services described by cfg over db.
func New(cfg config.Config, db *sqlstore.DB, logger *slog.Logger) (*Stack, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	ix, err := geo.NewIndex(cfg.Geo.Precision)
	if err != nil {
		return nil, fmt.Errorf("creating geo index: %w", err)
	}

	hub := notify.NewHub(cfg.Proximity.HubBuffer)
	retry := cfg.Ledger.RetryPolicy()

	questRepo := sqlstore.NewQuestRepository(db)
	teamRepo := sqlstore.NewTeamRepository(db)
	activityRepo := sqlstore.NewActivityRepository(db)

	selector := assignment.NewSelector(questRepo, teamRepo, assignment.Options{
		Window:    cfg.Assignment.Window,
		Retry:     retry,
		Publisher: hub,
		Logger:    logger.With("component", "assignment"),
	})
	teamTx := sqlstore.NewTransactor(db, func(tx *sqlstore.Tx) team.Tx { return tx })
	ledgerTx := sqlstore.NewTransactor(db, func(tx *sqlstore.Tx) ledger.Tx { return tx })

	s := &Stack{
		DB:       db,
		Hub:      hub,
		Index:    ix,
		Quests:   quest.NewService(questRepo, ix, hub, retry, logger.With("component", "quest")),
		Teams:    team.NewService(teamRepo, teamTx, selector, hub, retry, logger.With("component", "team")),
		Ledger:   ledger.NewService(ledgerTx, questRepo, selector, hub, retry, logger.With("component", "ledger")),
		Activity: activity.NewService(activityRepo, teamRepo, logger.With("component", "activity")),
		Selector: selector,
		Watcher: proximity.NewWatcher(
			notify.NewRangeFeed(hub, questRepo), questRepo, ix, logger.With("component", "proximity"),
		),
		Leaderboard: leaderboard.NewView(teamRepo, hub, logger.With("component", "leaderboard")),
		cfg:         cfg,
		logger:      logger,
	}
	if cfg.Auth.Enabled {
		s.Verifier = auth.NewJWT(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	}
	return s, nil
}

// MCPServer builds the MCP tool surface.
func (s *Stack) MCPServer(transportMode string) *mcp.Server {
	return mcp.NewServer(mcp.Config{
		Services: mcp.Services{
			Teams:       s.Teams,
			Quests:      s.Quests,
			Answers:     s.Ledger,
			Assigner:    s.Selector,
			Proximity:   s.Watcher,
			Leaderboard: s.Leaderboard,
			Audit:       s.Activity,
		},
		Verifier:            s.Verifier,
		TransportMode:       transportMode,
		DefaultRadiusMeters: s.cfg.Proximity.DefaultRadiusMeters,
		MaxRadiusMeters:     s.cfg.Proximity.MaxRadiusMeters,
		Logger:              s.logger.With("component", "mcp"),
	})
}

// Router builds the HTTP API, with the MCP surface mounted at /mcp when enabled.
func (s *Stack) Router() http.Handler {
	opts := transport.Options{
		Verifier:            s.Verifier,
		DefaultRadiusMeters: s.cfg.Proximity.DefaultRadiusMeters,
		MaxRadiusMeters:     s.cfg.Proximity.MaxRadiusMeters,
		TriggerMeters:       s.cfg.Proximity.TriggerMeters,
	}
	if s.cfg.MCP.Enabled {
		opts.MCP = s.MCPServer("http").HTTPHandler(s.cfg.MCP.SessionTimeout())
	}

	return transport.NewRouter(transport.Services{
		Teams:       s.Teams,
		Quests:      s.Quests,
		Answers:     s.Ledger,
		Assigner:    s.Selector,
		Proximity:   s.Watcher,
		Leaderboard: s.Leaderboard,
		Audit:       s.Activity,
	}, opts, s.logger.With("component", "http"))
}

// IssueToken signs a token for id when authentication is enabled.
func (s *Stack) IssueToken(id auth.Identity, ttl time.Duration) (string, error) {
	jwt, ok := s.Verifier.(*auth.JWT)
	if !ok {
		return "", fmt.Errorf("authentication is disabled")
	}
	return jwt.Issue(id, ttl)
}
