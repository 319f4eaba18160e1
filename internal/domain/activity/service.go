package activity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/rpggio/geoquest/internal/repository"
)

// Service handles the score audit log.
type Service struct {
	repo   Repository
	scores ScoreReader
	logger *slog.Logger
}

// NewService creates a new activity service.
func NewService(repo Repository, scores ScoreReader, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{repo: repo, scores: scores, logger: logger}
}

// LogScore appends a score entry, filling in its id and timestamp if missing.
func (s *Service) LogScore(ctx context.Context, entry *ScoreEntry) error {
	if entry == nil || entry.TeamID == "" {
		return ErrInvalidInput
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if err := s.repo.LogScore(ctx, entry); err != nil {
		return fmt.Errorf("logging score entry: %w", err)
	}
	return nil
}

// List lists score entries with filtering.
func (s *Service) List(ctx context.Context, opts ListOptions) ([]ScoreEntry, error) {
	return s.repo.List(ctx, opts)
}

// Audit recomputes the team's score from its logged deltas and compares
// it with the stored total.
func (s *Service) Audit(ctx context.Context, teamID string) (*AuditReport, error) {
	if teamID == "" {
		return nil, ErrInvalidInput
	}

	total, err := s.scores.TotalScore(ctx, teamID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTeamNotFound
		}
		return nil, fmt.Errorf("reading team score: %w", err)
	}

	entries, err := s.repo.List(ctx, ListOptions{TeamID: teamID})
	if err != nil {
		return nil, fmt.Errorf("listing score entries: %w", err)
	}

	report := &AuditReport{TeamID: teamID, TotalScore: total, Entries: entries}
	for _, e := range entries {
		report.SumOfDeltas += e.Delta
		switch e.Kind {
		case KindSolve:
			report.SolveDelta += e.Delta
		case KindWrongAnswer:
			report.WrongDelta += e.Delta
		case KindManualAdjustment:
			report.ManualDelta += e.Delta
		}
	}
	report.Consistent = report.SumOfDeltas == total
	if !report.Consistent {
		s.logger.Warn("score audit mismatch",
			"team_id", teamID, "total_score", total, "sum_of_deltas", report.SumOfDeltas)
	}
	return report, nil
}
