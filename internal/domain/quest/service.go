package quest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rpggio/geoquest/internal/geo"
	"github.com/rpggio/geoquest/internal/repository"
)

// Service handles quest administration.
type Service struct {
	repo      Repository
	index     *geo.Index
	publisher Publisher
	retry     repository.RetryPolicy
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a new quest service. publisher may be nil.
func NewService(repo Repository, index *geo.Index, publisher Publisher, retry repository.RetryPolicy, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		repo:      repo,
		index:     index,
		publisher: publisher,
		retry:     retry,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateRequest defines quest creation inputs.
type CreateRequest struct {
	Lat           float64
	Lng           float64
	Hint          string
	Question      string
	CorrectAnswer string
	Inactive      bool
}

// UpdateRequest describes an admin edit. Nil fields are left unchanged.
type UpdateRequest struct {
	ID            string
	Lat           *float64
	Lng           *float64
	Hint          *string
	Question      *string
	CorrectAnswer *string
}

// Create validates and stores a new quest.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Quest, error) {
	loc := geo.Point{Lat: req.Lat, Lng: req.Lng}
	if err := loc.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if strings.TrimSpace(req.Question) == "" || strings.TrimSpace(req.CorrectAnswer) == "" {
		return nil, fmt.Errorf("%w: question and answer are required", ErrInvalidInput)
	}

	now := s.now()
	q := &Quest{
		ID:            uuid.NewString(),
		Lat:           req.Lat,
		Lng:           req.Lng,
		CellKey:       s.index.CellKey(loc),
		Hint:          req.Hint,
		Question:      req.Question,
		CorrectAnswer: req.CorrectAnswer,
		IsActive:      !req.Inactive,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Create(ctx, q); err != nil {
		return nil, fmt.Errorf("creating quest: %w", err)
	}

	s.logger.Info("quest created", "quest_id", q.ID, "cell_key", q.CellKey)
	s.publish(q)
	return q, nil
}

// Get fetches a quest by ID.
func (s *Service) Get(ctx context.Context, id string) (*Quest, error) {
	q, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting quest: %w", err)
	}
	return q, nil
}

// List returns quests without discovery records.
func (s *Service) List(ctx context.Context, opts ListOptions) ([]Quest, error) {
	quests, err := s.repo.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("listing quests: %w", err)
	}
	return quests, nil
}

// InRange returns quests whose cell key falls in r.
func (s *Service) InRange(ctx context.Context, r geo.Range) ([]Quest, error) {
	quests, err := s.repo.InRange(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("querying quest range %s: %w", r, err)
	}
	return quests, nil
}

// Update applies an admin edit. The cell key is recomputed whenever the
// coordinates change.
func (s *Service) Update(ctx context.Context, req UpdateRequest) (*Quest, error) {
	if req.ID == "" {
		return nil, ErrInvalidInput
	}
	if req.Question != nil && strings.TrimSpace(*req.Question) == "" {
		return nil, fmt.Errorf("%w: question is required", ErrInvalidInput)
	}
	if req.CorrectAnswer != nil && strings.TrimSpace(*req.CorrectAnswer) == "" {
		return nil, fmt.Errorf("%w: answer is required", ErrInvalidInput)
	}

	return s.modify(ctx, req.ID, func(q *Quest) error {
		loc := q.Location()
		if req.Lat != nil {
			loc.Lat = *req.Lat
		}
		if req.Lng != nil {
			loc.Lng = *req.Lng
		}
		if err := loc.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		q.Lat, q.Lng = loc.Lat, loc.Lng
		q.CellKey = s.index.CellKey(loc)

		if req.Hint != nil {
			q.Hint = *req.Hint
		}
		if req.Question != nil {
			q.Question = *req.Question
		}
		if req.CorrectAnswer != nil {
			q.CorrectAnswer = *req.CorrectAnswer
		}
		return nil
	})
}

// SetActive toggles whether the quest takes part in the hunt.
func (s *Service) SetActive(ctx context.Context, id string, active bool) (*Quest, error) {
	q, err := s.modify(ctx, id, func(q *Quest) error {
		q.IsActive = active
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("quest active toggled", "quest_id", id, "active", active)
	return q, nil
}

// modify re-reads and rewrites the quest until the version check passes.
func (s *Service) modify(ctx context.Context, id string, apply func(q *Quest) error) (*Quest, error) {
	var updated *Quest
	direct := repository.TransactorFunc[Repository](func(ctx context.Context, fn func(context.Context, Repository) error) error {
		return fn(ctx, s.repo)
	})

	err := repository.Atomically(ctx, direct, s.retry, func(ctx context.Context, repo Repository) error {
		q, err := repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := apply(q); err != nil {
			return err
		}
		expected := q.Version
		q.Version++
		q.UpdatedAt = s.now()
		if err := repo.Update(ctx, q, expected); err != nil {
			return err
		}
		updated = q
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("updating quest: %w", err)
	}

	s.publish(updated)
	return updated, nil
}

func (s *Service) publish(q *Quest) {
	if s.publisher != nil {
		s.publisher.PublishQuest(*q)
	}
}
