package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rpggio/geoquest/internal/auth"
	"github.com/rpggio/geoquest/internal/domain/activity"
	"github.com/rpggio/geoquest/internal/domain/leaderboard"
	"github.com/rpggio/geoquest/internal/domain/ledger"
	"github.com/rpggio/geoquest/internal/domain/proximity"
	"github.com/rpggio/geoquest/internal/domain/quest"
	"github.com/rpggio/geoquest/internal/domain/team"
	"github.com/rpggio/geoquest/internal/geo"
	"github.com/rpggio/geoquest/internal/metrics"
)

// TeamService is the team surface used by the HTTP API.
type TeamService interface {
	Register(ctx context.Context, req team.RegisterRequest) (*team.Team, error)
	Get(ctx context.Context, id string) (*team.Team, error)
	UpdateLocation(ctx context.Context, id string, p geo.Point) (*team.Team, error)
	Deactivate(ctx context.Context, id string) (*team.Team, error)
	AdjustScore(ctx context.Context, req team.AdjustRequest) (*team.Team, error)
}

// QuestService is the quest administration surface.
type QuestService interface {
	Create(ctx context.Context, req quest.CreateRequest) (*quest.Quest, error)
	Get(ctx context.Context, id string) (*quest.Quest, error)
	Update(ctx context.Context, req quest.UpdateRequest) (*quest.Quest, error)
	SetActive(ctx context.Context, id string, active bool) (*quest.Quest, error)
}

// AnswerService routes answer attempts to the ledger.
type AnswerService interface {
	SubmitAnswer(ctx context.Context, req ledger.SubmitRequest) (*ledger.Outcome, error)
}

// Assigner hands a team its next quest.
type Assigner interface {
	AssignNext(ctx context.Context, teamID string) (*team.Assignment, error)
}

// ProximityService finds quests near a position.
type ProximityService interface {
	Watch(ctx context.Context, locations <-chan geo.Point, radius float64) (*proximity.Watch, error)
	Nearby(ctx context.Context, center geo.Point, radius float64) ([]proximity.Candidate, error)
}

// LeaderboardService reads team standings.
type LeaderboardService interface {
	TopTeams(ctx context.Context, n int) ([]leaderboard.Standing, error)
	Subscribe(ctx context.Context, n int) (*leaderboard.Feed, error)
}

// Auditor reports a team's score history.
type Auditor interface {
	Audit(ctx context.Context, teamID string) (*activity.AuditReport, error)
}

// Services are the domain collaborators behind the HTTP API.
type Services struct {
	Teams       TeamService
	Quests      QuestService
	Answers     AnswerService
	Assigner    Assigner
	Proximity   ProximityService
	Leaderboard LeaderboardService
	Audit       Auditor
}

// Options tune the HTTP API.
type Options struct {
	// Verifier validates bearer tokens. Nil disables authentication.
	Verifier auth.Verifier
	// MCP is mounted at /mcp when set.
	MCP http.Handler
	// DefaultRadiusMeters is used when a proximity request names no radius.
	DefaultRadiusMeters float64
	// MaxRadiusMeters bounds requested radii.
	MaxRadiusMeters float64
	// TriggerMeters is the answer trigger distance reported on live snapshots.
	TriggerMeters float64
}

// api holds the handler dependencies.
type api struct {
	svc    Services
	opts   Options
	logger *slog.Logger
}

// NewRouter builds the HTTP handler with middleware and routes.
func NewRouter(svc Services, opts Options, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	a := &api{svc: svc, opts: opts, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(newStructuredLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", handleHealth)
	r.Handle("/metrics", metrics.Handler())

	if opts.MCP != nil {
		r.Handle("/mcp", opts.MCP)
		r.Handle("/mcp/*", opts.MCP)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(AuthMiddleware(opts.Verifier))

		r.Post("/teams", a.handleRegisterTeam)
		r.Route("/teams/{id}", func(r chi.Router) {
			r.Get("/", a.handleGetTeam)
			r.Post("/location", a.handleUpdateLocation)
			r.Post("/answers", a.handleSubmitAnswer)
			r.Post("/assignment", a.handleAssignNext)
		})
		r.Get("/quests/nearby", a.handleNearby)
		r.Get("/leaderboard", a.handleLeaderboard)
		r.Get("/ws/proximity", a.handleProximityWS)
		r.Get("/ws/leaderboard", a.handleLeaderboardWS)

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireAdmin)

			r.Post("/quests", a.handleCreateQuest)
			r.Get("/quests/{id}", a.handleGetQuest)
			r.Put("/quests/{id}", a.handleUpdateQuest)
			r.Post("/quests/{id}/active", a.handleSetQuestActive)
			r.Post("/teams/{id}/adjust", a.handleAdjustScore)
			r.Post("/teams/{id}/deactivate", a.handleDeactivateTeam)
			r.Get("/teams/{id}/audit", a.handleAudit)
		})
	})

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func newStructuredLogger(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				elapsed := time.Since(start)
				metrics.HTTPRequestDurationMs.
					WithLabelValues(r.Method, strconv.Itoa(ww.Status())).
					Observe(float64(elapsed.Microseconds()) / 1000)
				logger.Info("http request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration_ms", elapsed.Milliseconds(),
					"request_id", middleware.GetReqID(r.Context()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// Server runs the HTTP API.
type Server struct {
	srv    *http.Server
	cancel context.CancelFunc
	logger *slog.Logger
}

// NewServer wraps handler in an http.Server listening on addr.
func NewServer(addr string, handler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	// Hijacked websocket connections are not tracked by http.Server;
	// cancelling base ends their feeds after Shutdown drains the rest.
	base, cancel := context.WithCancel(context.Background())
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       120 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return base },
		},
		cancel: cancel,
		logger: logger,
	}
}

// Run serves until Shutdown is called.
func (s *Server) Run(_ context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.srv.Addr, err)
	}
	s.logger.Info("http server listening", "addr", ln.Addr().String())

	err = s.srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections, waits for in-flight requests and
// then ends live websocket feeds.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)
	s.cancel()
	return err
}
