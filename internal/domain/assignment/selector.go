package assignment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rpggio/geoquest/internal/domain/quest"
	"github.com/rpggio/geoquest/internal/domain/team"
	"github.com/rpggio/geoquest/internal/metrics"
	"github.com/rpggio/geoquest/internal/repository"
)

// Selector hands out the least discovered quest a team has not solved.
type Selector struct {
	quests    QuestSource
	teams     TeamStore
	window    int
	retry     repository.RetryPolicy
	publisher team.Publisher
	logger    *slog.Logger
	now       func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSelector creates a Selector.
func NewSelector(quests QuestSource, teams TeamStore, opts Options) *Selector {
	s := &Selector{
		quests:    quests,
		teams:     teams,
		window:    opts.Window,
		retry:     opts.Retry,
		publisher: opts.Publisher,
		logger:    opts.Logger,
		rng:       opts.Rand,
		now:       func() time.Time { return time.Now().UTC() },
	}
	if s.window <= 0 {
		s.window = DefaultWindow
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return s
}

// SelectNext picks uniformly at random among the active quests with the
// lowest discovery count, ignoring excluded ids. Pages of Window quests
// are read until a candidate is found and the whole tie set at the
// minimum count has been seen.
func (s *Selector) SelectNext(ctx context.Context, exclude map[string]struct{}) (*quest.Quest, error) {
	var ties []quest.Quest
	lowest := -1

	var cursor quest.DiscoveryCursor
	for {
		page, err := s.quests.ListLeastDiscovered(ctx, s.window, cursor)
		if err != nil {
			return nil, fmt.Errorf("listing least discovered quests: %w", err)
		}

		for _, q := range page {
			if _, skip := exclude[q.ID]; skip {
				continue
			}
			if lowest == -1 {
				lowest = q.DiscoveryCount
			}
			if q.DiscoveryCount == lowest {
				ties = append(ties, q)
			}
		}

		if len(page) < s.window {
			break
		}
		last := page[len(page)-1]
		if lowest != -1 && last.DiscoveryCount > lowest {
			break
		}
		cursor = quest.CursorAfter(last)
	}

	if len(ties) == 0 {
		return nil, quest.ErrNoAssignableQuest
	}

	s.mu.Lock()
	pick := ties[s.rng.IntN(len(ties))]
	s.mu.Unlock()
	return &pick, nil
}

// AssignNext selects the team's next quest and stores it as the current
// assignment. The read, selection and write are retried together when
// the team changes concurrently. ErrNoAssignableQuest leaves the team as is.
func (s *Selector) AssignNext(ctx context.Context, teamID string) (*team.Assignment, error) {
	var updated *team.Team
	direct := repository.TransactorFunc[TeamStore](func(ctx context.Context, fn func(context.Context, TeamStore) error) error {
		return fn(ctx, s.teams)
	})

	err := repository.Atomically(ctx, direct, s.retry, func(ctx context.Context, teams TeamStore) error {
		t, err := teams.Get(ctx, teamID)
		if err != nil {
			return err
		}
		if !t.IsActive {
			return team.ErrInactive
		}

		next, err := s.SelectNext(ctx, t.SolvedSet())
		if err != nil {
			return err
		}

		now := s.now()
		expected := t.Version
		t.CurrentAssignment = &team.Assignment{
			QuestID:    next.ID,
			Hint:       next.Hint,
			Lat:        next.Lat,
			Lng:        next.Lng,
			AssignedAt: now,
		}
		t.Version++
		t.UpdatedAt = now
		if err := teams.Update(ctx, t, expected); err != nil {
			return err
		}
		updated = t
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, quest.ErrNoAssignableQuest):
			metrics.AssignmentsTotal.WithLabelValues("exhausted").Inc()
			return nil, err
		case errors.Is(err, repository.ErrNotFound):
			return nil, team.ErrNotFound
		case errors.Is(err, team.ErrInactive):
			return nil, err
		}
		metrics.AssignmentsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("assigning next quest: %w", err)
	}

	metrics.AssignmentsTotal.WithLabelValues("assigned").Inc()
	s.logger.Info("quest assigned", "team_id", teamID, "quest_id", updated.CurrentAssignment.QuestID)
	if s.publisher != nil {
		s.publisher.PublishTeam(*updated)
	}
	return updated.CurrentAssignment, nil
}
