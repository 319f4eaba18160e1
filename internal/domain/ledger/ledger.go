package ledger

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
	"github.com/rpggio/geoquest/internal/domain/team"
	"github.com/rpggio/geoquest/internal/metrics"
	"github.com/rpggio/geoquest/internal/repository"
)

// Service is the transactional scoring ledger.
type Service struct {
	store     repository.Transactor[Tx]
	quests    QuestReader
	assigner  team.Assigner
	publisher Publisher
	retry     repository.RetryPolicy
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a ledger. assigner and publisher may be nil.
func NewService(
	store repository.Transactor[Tx],
	quests QuestReader,
	assigner team.Assigner,
	publisher Publisher,
	retry repository.RetryPolicy,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		store:     store,
		quests:    quests,
		assigner:  assigner,
		publisher: publisher,
		retry:     retry,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RecordCorrectAnswer credits the team with the next discovery rank of
// the quest. Deactivated teams are rejected with team.ErrInactive. Quest and team are read and written in one transaction; a
// concurrent solve makes the version check fail and the whole closure
// runs again, so ranks follow commit order.
func (s *Service) RecordCorrectAnswer(ctx context.Context, teamID, questID string) (*Result, error) {
	if teamID == "" || questID == "" {
		return nil, ErrInvalidInput
	}

	var res *Result
	err := repository.Atomically(ctx, s.store, s.retry, func(ctx context.Context, tx Tx) error {
		res = nil

		q, err := tx.GetQuest(ctx, questID)
		if err != nil {
			return notFound(err, quest.ErrNotFound)
		}
		t, err := tx.GetTeam(ctx, teamID)
		if err != nil {
			return notFound(err, team.ErrNotFound)
		}
		if !t.IsActive {
			return team.ErrInactive
		}
		if t.HasSolved(questID) {
			return ErrAlreadySolved
		}

		now := s.now()
		rank := q.DiscoveryCount + 1
		points := Bonus(rank)

		questVersion := q.Version
		q.DiscoveryCount = rank
		q.DiscoveryTeams = append(q.DiscoveryTeams, quest.DiscoveryRecord{TeamID: teamID, Rank: rank, Timestamp: now})
		q.Version++
		q.UpdatedAt = now
		if err := tx.UpdateQuest(ctx, q, questVersion); err != nil {
			return err
		}
		if err := tx.AddDiscovery(ctx, questID, q.DiscoveryTeams[len(q.DiscoveryTeams)-1]); err != nil {
			return err
		}

		solved := team.SolvedRecord{QuestID: questID, Rank: rank, PointsEarned: points, Timestamp: now}
		teamVersion := t.Version
		t.TotalScore += points
		t.SolvedQuests = append(t.SolvedQuests, solved)
		t.CurrentAssignment = nil
		t.Version++
		t.UpdatedAt = now
		if err := tx.UpdateTeam(ctx, t, teamVersion); err != nil {
			return err
		}
		if err := tx.AddSolve(ctx, teamID, solved); err != nil {
			return err
		}

		if err := tx.LogScore(ctx, &activity.ScoreEntry{
			ID:        uuid.NewString(),
			TeamID:    teamID,
			QuestID:   &questID,
			Delta:     points,
			Kind:      activity.KindSolve,
			Reason:    fmt.Sprintf("rank %d discovery", rank),
			CreatedAt: now,
		}); err != nil {
			return err
		}

		res = &Result{QuestID: questID, Rank: rank, PointsEarned: points, Timestamp: now, quest: q, team: t}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAlreadySolved) {
			metrics.AlreadySolvedTotal.Inc()
			return nil, ErrAlreadySolved
		}
		if errors.Is(err, quest.ErrNotFound) || errors.Is(err, team.ErrNotFound) || errors.Is(err, team.ErrInactive) {
			return nil, err
		}
		return nil, fmt.Errorf("recording correct answer: %w", err)
	}

	metrics.SolvesTotal.WithLabelValues(metrics.RankLabel(res.Rank)).Inc()
	s.logger.Info("quest solved",
		"team_id", teamID, "quest_id", questID, "rank", res.Rank, "points", res.PointsEarned)
	s.publishQuest(res.quest)
	s.publishTeam(res.team)
	return res, nil
}

// RecordWrongAnswer applies the wrong answer penalty. It touches no quest
// state and is not idempotent: every call is a separate penalty.
func (s *Service) RecordWrongAnswer(ctx context.Context, teamID string) (*team.Team, error) {
	if teamID == "" {
		return nil, ErrInvalidInput
	}

	var updated *team.Team
	err := repository.Atomically(ctx, s.store, s.retry, func(ctx context.Context, tx Tx) error {
		updated = nil

		t, err := tx.GetTeam(ctx, teamID)
		if err != nil {
			return notFound(err, team.ErrNotFound)
		}
		if !t.IsActive {
			return team.ErrInactive
		}

		now := s.now()
		expected := t.Version
		t.TotalScore -= WrongAnswerPenalty
		t.WrongAnswerCount++
		t.Version++
		t.UpdatedAt = now
		if err := tx.UpdateTeam(ctx, t, expected); err != nil {
			return err
		}
		if err := tx.LogScore(ctx, &activity.ScoreEntry{
			ID:        uuid.NewString(),
			TeamID:    teamID,
			Delta:     -WrongAnswerPenalty,
			Kind:      activity.KindWrongAnswer,
			CreatedAt: now,
		}); err != nil {
			return err
		}
		updated = t
		return nil
	})
	if err != nil {
		if errors.Is(err, team.ErrNotFound) || errors.Is(err, team.ErrInactive) {
			return nil, err
		}
		return nil, fmt.Errorf("recording wrong answer: %w", err)
	}

	metrics.WrongAnswersTotal.Inc()
	s.logger.Info("wrong answer", "team_id", teamID, "total_score", updated.TotalScore)
	s.publishTeam(updated)
	return updated, nil
}

// SubmitRequest is an answer attempt from a team.
type SubmitRequest struct {
	TeamID  string
	QuestID string
	Answer  string
}

// SubmitAnswer checks the answer and routes it to the ledger. A correct
// answer is followed by the team's next assignment. Answering a quest the
// team already solved is reported in the outcome rather than as an error.
func (s *Service) SubmitAnswer(ctx context.Context, req SubmitRequest) (*Outcome, error) {
	answer := strings.TrimSpace(req.Answer)
	if req.TeamID == "" || req.QuestID == "" || answer == "" {
		return nil, fmt.Errorf("%w: team, quest and answer are required", ErrInvalidInput)
	}

	q, err := s.quests.Get(ctx, req.QuestID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, quest.ErrNotFound) {
			return nil, quest.ErrNotFound
		}
		return nil, fmt.Errorf("loading quest: %w", err)
	}

	if !AnswerMatches(q.CorrectAnswer, answer) {
		t, err := s.RecordWrongAnswer(ctx, req.TeamID)
		if err != nil {
			return nil, err
		}
		return &Outcome{Correct: false, Team: t}, nil
	}

	res, err := s.RecordCorrectAnswer(ctx, req.TeamID, req.QuestID)
	if errors.Is(err, ErrAlreadySolved) {
		return &Outcome{Correct: true, AlreadySolved: true}, nil
	}
	if err != nil {
		return nil, err
	}

	out := &Outcome{Correct: true, Result: res, Team: res.team}
	if s.assigner == nil {
		return out, nil
	}
	next, err := s.assigner.AssignNext(ctx, req.TeamID)
	switch {
	case err == nil:
		out.NextAssignment = next
		out.Team.CurrentAssignment = next
	case errors.Is(err, quest.ErrNoAssignableQuest):
		s.logger.Info("team has no quest left to assign", "team_id", req.TeamID)
	default:
		// The solve is committed; a failed follow-up assignment can be retried on its own.
		s.logger.Warn("assignment after solve failed", "team_id", req.TeamID, "error", err)
	}
	return out, nil
}

// AnswerMatches compares answers case-insensitively, ignoring surrounding
// whitespace.
func AnswerMatches(canonical, given string) bool {
	return strings.EqualFold(strings.TrimSpace(canonical), strings.TrimSpace(given))
}

func notFound(err error, sentinel error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return sentinel
	}
	return err
}

func (s *Service) publishQuest(q *quest.Quest) {
	if s.publisher != nil && q != nil {
		s.publisher.PublishQuest(*q)
	}
}

func (s *Service) publishTeam(t *team.Team) {
	if s.publisher != nil && t != nil {
		s.publisher.PublishTeam(*t)
	}
}
