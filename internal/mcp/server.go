package mcp

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/geoquest/internal/auth"
	"github.com/rpggio/geoquest/internal/domain/activity"
	"github.com/rpggio/geoquest/internal/domain/leaderboard"
	"github.com/rpggio/geoquest/internal/domain/ledger"
	"github.com/rpggio/geoquest/internal/domain/proximity"
	"github.com/rpggio/geoquest/internal/domain/quest"
	"github.com/rpggio/geoquest/internal/domain/team"
	"github.com/rpggio/geoquest/internal/geo"
)

// TeamService defines team operations needed by MCP.
type TeamService interface {
	Register(ctx context.Context, req team.RegisterRequest) (*team.Team, error)
	Get(ctx context.Context, id string) (*team.Team, error)
	UpdateLocation(ctx context.Context, id string, p geo.Point) (*team.Team, error)
	AdjustScore(ctx context.Context, req team.AdjustRequest) (*team.Team, error)
}

// QuestService defines quest operations needed by MCP.
type QuestService interface {
	Create(ctx context.Context, req quest.CreateRequest) (*quest.Quest, error)
	SetActive(ctx context.Context, id string, active bool) (*quest.Quest, error)
}

// AnswerService defines ledger operations needed by MCP.
type AnswerService interface {
	SubmitAnswer(ctx context.Context, req ledger.SubmitRequest) (*ledger.Outcome, error)
	RecordWrongAnswer(ctx context.Context, teamID string) (*team.Team, error)
}

// Assigner hands a team its next quest.
type Assigner interface {
	AssignNext(ctx context.Context, teamID string) (*team.Assignment, error)
}

// ProximityService answers one-shot nearby queries.
type ProximityService interface {
	Nearby(ctx context.Context, center geo.Point, radius float64) ([]proximity.Candidate, error)
}

// LeaderboardService reads team standings.
type LeaderboardService interface {
	TopTeams(ctx context.Context, n int) ([]leaderboard.Standing, error)
}

// AuditService reports a team's score history.
type AuditService interface {
	Audit(ctx context.Context, teamID string) (*activity.AuditReport, error)
}

// Services contains all domain services needed by MCP.
type Services struct {
	Teams       TeamService
	Quests      QuestService
	Answers     AnswerService
	Assigner    Assigner
	Proximity   ProximityService
	Leaderboard LeaderboardService
	Audit       AuditService
}

// Config contains server configuration.
type Config struct {
	Services Services
	// Verifier validates bearer tokens on HTTP. Nil disables authentication.
	Verifier      auth.Verifier
	TransportMode string // "stdio" or "http"
	// DefaultRadiusMeters is used when nearby_quests names no radius.
	DefaultRadiusMeters float64
	MaxRadiusMeters     float64
	Logger              *slog.Logger
}

// Server is the geoquest MCP server.
type Server struct {
	sdk    *sdkmcp.Server
	logger *slog.Logger
}

// NewServer creates and configures an MCP server with all tools and middleware.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	server := sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    "geoquest",
		Version: "0.1.0",
	}, &sdkmcp.ServerOptions{
		Instructions: serverInstructions,
		Logger:       logger,
	})

	registerDocResources(server)

	// Middleware added later runs first, so identity is resolved before
	// traffic is logged.
	server.AddReceivingMiddleware(trafficLoggingMiddleware(logger, "inbound"))
	server.AddSendingMiddleware(trafficLoggingMiddleware(logger, "outbound"))
	// Stdio is a local operator channel; it never authenticates.
	if cfg.TransportMode == "stdio" || cfg.Verifier == nil {
		server.AddReceivingMiddleware(noAuthMiddleware())
	} else {
		server.AddReceivingMiddleware(authMiddleware(cfg.Verifier))
	}

	t := &tools{
		svc:           cfg.Services,
		defaultRadius: cfg.DefaultRadiusMeters,
		maxRadius:     cfg.MaxRadiusMeters,
		logger:        logger,
	}
	t.register(server)

	return &Server{sdk: server, logger: logger}
}

// SDK returns the underlying protocol server.
func (s *Server) SDK() *sdkmcp.Server {
	return s.sdk
}

// HTTPHandler serves the streamable HTTP transport.
func (s *Server) HTTPHandler(sessionTimeout time.Duration) http.Handler {
	return sdkmcp.NewStreamableHTTPHandler(
		func(*http.Request) *sdkmcp.Server { return s.sdk },
		&sdkmcp.StreamableHTTPOptions{
			Stateless:      false,
			SessionTimeout: sessionTimeout,
		},
	)
}

// RunStdio serves MCP over stdin/stdout until ctx ends or stdin closes.
func (s *Server) RunStdio(ctx context.Context) error {
	s.logger.Info("starting stdio transport", "auth", "disabled")
	return s.sdk.Run(ctx, &sdkmcp.StdioTransport{})
}
