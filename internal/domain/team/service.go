package team

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rpggio/geoquest/internal/domain/activity"
	"github.com/rpggio/geoquest/internal/domain/quest"
	"github.com/rpggio/geoquest/internal/geo"
	"github.com/rpggio/geoquest/internal/repository"
)

// Service handles team registration and administration.
type Service struct {
	repo      Repository
	store     repository.Transactor[Tx]
	assigner  Assigner
	publisher Publisher
	retry     repository.RetryPolicy
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a new team service. assigner and publisher may be nil.
func NewService(
	repo Repository,
	store repository.Transactor[Tx],
	assigner Assigner,
	publisher Publisher,
	retry repository.RetryPolicy,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		repo:      repo,
		store:     store,
		assigner:  assigner,
		publisher: publisher,
		retry:     retry,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RegisterRequest defines team registration inputs.
type RegisterRequest struct {
	ID      string
	Name    string
	Members []string
}

// AdjustRequest describes a manual score correction.
type AdjustRequest struct {
	TeamID string
	Delta  int
	Reason string
	Actor  string
}

// Register creates a team and hands it its first quest. An empty quest
// pool leaves the assignment empty without failing the registration.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Team, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.NewString()
	}
	members := req.Members
	if members == nil {
		members = []string{}
	}

	now := s.now()
	t := &Team{
		ID:        id,
		Name:      name,
		Members:   members,
		IsActive:  true,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, t); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("%w: team %s already exists", ErrInvalidInput, id)
		}
		return nil, fmt.Errorf("creating team: %w", err)
	}
	s.logger.Info("team registered", "team_id", t.ID, "name", t.Name)
	s.publish(t)

	if s.assigner == nil {
		return t, nil
	}
	if _, err := s.assigner.AssignNext(ctx, t.ID); err != nil {
		if errors.Is(err, quest.ErrNoAssignableQuest) {
			s.logger.Info("no quest to assign at registration", "team_id", t.ID)
		} else {
			s.logger.Warn("initial assignment failed", "team_id", t.ID, "error", err)
		}
		return t, nil
	}
	return s.Get(ctx, t.ID)
}

// Get fetches a team by ID.
func (s *Service) Get(ctx context.Context, id string) (*Team, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting team: %w", err)
	}
	return t, nil
}

// List returns teams without solved records.
func (s *Service) List(ctx context.Context, opts ListOptions) ([]Team, error) {
	teams, err := s.repo.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("listing teams: %w", err)
	}
	return teams, nil
}

// UpdateLocation records the team's last reported position. Location
// writes are not published.
func (s *Service) UpdateLocation(ctx context.Context, id string, p geo.Point) (*Team, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return s.modify(ctx, id, func(t *Team) error {
		t.LastLocation = &Location{Lat: p.Lat, Lng: p.Lng, ReportedAt: s.now()}
		return nil
	})
}

// Deactivate removes the team from the leaderboard and further play.
func (s *Service) Deactivate(ctx context.Context, id string) (*Team, error) {
	t, err := s.modify(ctx, id, func(t *Team) error {
		t.IsActive = false
		t.CurrentAssignment = nil
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("team deactivated", "team_id", id)
	s.publish(t)
	return t, nil
}

// AdjustScore applies a manual score correction and records it in the
// audit log under the manual adjustment kind.
func (s *Service) AdjustScore(ctx context.Context, req AdjustRequest) (*Team, error) {
	if req.TeamID == "" || req.Delta == 0 {
		return nil, fmt.Errorf("%w: team and non-zero delta are required", ErrInvalidInput)
	}
	if strings.TrimSpace(req.Reason) == "" {
		return nil, fmt.Errorf("%w: reason is required", ErrInvalidInput)
	}

	var updated *Team
	err := repository.Atomically(ctx, s.store, s.retry, func(ctx context.Context, tx Tx) error {
		t, err := tx.GetTeam(ctx, req.TeamID)
		if err != nil {
			return err
		}
		now := s.now()
		expected := t.Version
		t.TotalScore += req.Delta
		t.Version++
		t.UpdatedAt = now
		if err := tx.UpdateTeam(ctx, t, expected); err != nil {
			return err
		}
		if err := tx.LogScore(ctx, &activity.ScoreEntry{
			TeamID:    t.ID,
			Delta:     req.Delta,
			Kind:      activity.KindManualAdjustment,
			Reason:    req.Reason,
			Actor:     req.Actor,
			CreatedAt: now,
		}); err != nil {
			return err
		}
		updated = t
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("adjusting score: %w", err)
	}

	s.logger.Warn("manual score adjustment",
		"team_id", req.TeamID, "delta", req.Delta, "reason", req.Reason,
		"actor", req.Actor, "total_score", updated.TotalScore)
	s.publish(updated)
	return updated, nil
}

func (s *Service) modify(ctx context.Context, id string, apply func(t *Team) error) (*Team, error) {
	var updated *Team
	direct := repository.TransactorFunc[Repository](func(ctx context.Context, fn func(context.Context, Repository) error) error {
		return fn(ctx, s.repo)
	})

	err := repository.Atomically(ctx, direct, s.retry, func(ctx context.Context, repo Repository) error {
		t, err := repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := apply(t); err != nil {
			return err
		}
		expected := t.Version
		t.Version++
		t.UpdatedAt = s.now()
		if err := repo.Update(ctx, t, expected); err != nil {
			return err
		}
		updated = t
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("updating team: %w", err)
	}
	return updated, nil
}

func (s *Service) publish(t *Team) {
	if s.publisher != nil {
		s.publisher.PublishTeam(*t)
	}
}
