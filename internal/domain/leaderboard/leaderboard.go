package leaderboard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rpggio/geoquest/internal/domain/team"
	"github.com/rpggio/geoquest/internal/notify"
)

// DefaultSize is used when a non-positive n is requested.
const DefaultSize = 10

// MaxSize bounds n.
const MaxSize = 500

// Source reads active teams ordered by score descending, ties broken by
// registration time and then id.
type Source interface {
	TopByScore(ctx context.Context, n int) ([]team.Team, error)
}

// Changes provides the team write feed.
type Changes interface {
	SubscribeTeams() *notify.Subscription[team.Team]
}

// Standing is one leaderboard row.
type Standing struct {
	Position         int       `json:"position"`
	TeamID           string    `json:"team_id"`
	Name             string    `json:"name"`
	TotalScore       int       `json:"total_score"`
	SolvedCount      int       `json:"solved_count"`
	WrongAnswerCount int       `json:"wrong_answer_count"`
	RegisteredAt     time.Time `json:"registered_at"`
}

// View is the read-only leaderboard.
type View struct {
	source  Source
	changes Changes
	logger  *slog.Logger
}

// NewView creates a View.
func NewView(source Source, changes Changes, logger *slog.Logger) *View {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &View{source: source, changes: changes, logger: logger}
}

// TopTeams returns the top n active teams.
func (v *View) TopTeams(ctx context.Context, n int) ([]Standing, error) {
	n = clampSize(n)
	teams, err := v.source.TopByScore(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("reading leaderboard: %w", err)
	}
	standings := make([]Standing, len(teams))
	for i, t := range teams {
		standings[i] = Standing{
			Position:         i + 1,
			TeamID:           t.ID,
			Name:             t.Name,
			TotalScore:       t.TotalScore,
			SolvedCount:      len(t.SolvedQuests),
			WrongAnswerCount: t.WrongAnswerCount,
			RegisteredAt:     t.CreatedAt,
		}
	}
	return standings, nil
}

// Feed streams leaderboard updates.
type Feed struct {
	updates chan []Standing
	errs    chan error
	cancel  context.CancelFunc
	done    chan struct{}
}

// Updates delivers the latest top-n. Stale boards are replaced when the
// reader falls behind. Closed when the feed stops.
func (f *Feed) Updates() <-chan []Standing {
	return f.updates
}

// Err delivers at most one read failure before the feed closes.
func (f *Feed) Err() <-chan error {
	return f.errs
}

// Stop cancels the feed and waits for it to finish.
func (f *Feed) Stop() {
	f.cancel()
	<-f.done
}

// Subscribe emits the current top n immediately and again after every
// committed team write.
func (v *View) Subscribe(ctx context.Context, n int) (*Feed, error) {
	n = clampSize(n)
	sub := v.changes.SubscribeTeams()

	initial, err := v.TopTeams(ctx, n)
	if err != nil {
		sub.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	f := &Feed{
		updates: make(chan []Standing, 1),
		errs:    make(chan error, 1),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	f.updates <- initial
	go v.run(ctx, f, sub, n)
	return f, nil
}

func (v *View) run(ctx context.Context, f *Feed, sub *notify.Subscription[team.Team], n int) {
	defer close(f.done)
	defer close(f.updates)
	defer func() { sub.Close() }()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-sub.Events():
			if !ok {
				return
			}
		case <-sub.Lagged():
			// The next read covers whatever was dropped; resubscribe so the
			// feed keeps getting change signals.
			sub.Close()
			sub = v.changes.SubscribeTeams()
		}

		// Coalesce a burst of writes into one read.
		drain(sub)

		standings, err := v.TopTeams(ctx, n)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			v.logger.Warn("leaderboard feed read failed", "error", err)
			f.errs <- err
			return
		}
		f.publish(standings)
	}
}

func (f *Feed) publish(s []Standing) {
	for {
		select {
		case f.updates <- s:
			return
		default:
		}
		select {
		case <-f.updates:
		default:
		}
	}
}

func drain(sub *notify.Subscription[team.Team]) {
	for {
		select {
		case _, ok := <-sub.Events():
			if !ok {
				return
			}
		default:
			return
		}
	}
}

func clampSize(n int) int {
	if n <= 0 {
		return DefaultSize
	}
	if n > MaxSize {
		return MaxSize
	}
	return n
}
