package leaderboard_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rpggio/geoquest/internal/domain/leaderboard"
	"github.com/rpggio/geoquest/internal/domain/team"
	"github.com/rpggio/geoquest/internal/notify"
	"github.com/rpggio/geoquest/internal/repository/mocks"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func teams(scores ...int) []team.Team {
	out := make([]team.Team, len(scores))
	for i, s := range scores {
		out[i] = team.Team{ID: string(rune('a' + i)), Name: "team", TotalScore: s, SolvedQuests: make([]team.SolvedRecord, i)}
	}
	return out
}

func next(t *testing.T, f *leaderboard.Feed) []leaderboard.Standing {
	t.Helper()
	select {
	case s, ok := <-f.Updates():
		require.True(t, ok)
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for leaderboard")
		return nil
	}
}

func TestTopTeams(t *testing.T) {
	ctx := context.Background()
	repo := &mocks.TeamRepository{}
	repo.On("TopByScore", ctx, 3).Return(teams(175, 100, 100), nil)

	view := leaderboard.NewView(repo, notify.NewHub(4), nil)
	got, err := view.TopTeams(ctx, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, 1, got[0].Position)
	require.Equal(t, 175, got[0].TotalScore)
	require.Equal(t, 3, got[2].Position)
	require.Equal(t, 2, got[2].SolvedCount)
}

func TestTopTeamsClampsSize(t *testing.T) {
	ctx := context.Background()
	repo := &mocks.TeamRepository{}
	repo.On("TopByScore", ctx, leaderboard.DefaultSize).Return([]team.Team{}, nil)
	repo.On("TopByScore", ctx, leaderboard.MaxSize).Return([]team.Team{}, nil)

	view := leaderboard.NewView(repo, notify.NewHub(4), nil)
	_, err := view.TopTeams(ctx, 0)
	require.NoError(t, err)
	_, err = view.TopTeams(ctx, 100000)
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestSubscribeEmitsAfterTeamWrites(t *testing.T) {
	ctx := context.Background()
	repo := &mocks.TeamRepository{}
	hub := notify.NewHub(4)
	repo.On("TopByScore", mock.Anything, 2).Return(teams(100, 50), nil).Once()
	repo.On("TopByScore", mock.Anything, 2).Return(teams(150, 100), nil)

	view := leaderboard.NewView(repo, hub, nil)
	feed, err := view.Subscribe(ctx, 2)
	require.NoError(t, err)
	defer feed.Stop()

	require.Equal(t, 100, next(t, feed)[0].TotalScore)

	hub.PublishTeam(team.Team{ID: "b", TotalScore: 150})
	require.Equal(t, 150, next(t, feed)[0].TotalScore)
}

func TestSubscribeReportsReadFailure(t *testing.T) {
	ctx := context.Background()
	repo := &mocks.TeamRepository{}
	hub := notify.NewHub(4)
	boom := errors.New("db gone")
	repo.On("TopByScore", mock.Anything, 10).Return(teams(1), nil).Once()
	repo.On("TopByScore", mock.Anything, 10).Return(nil, boom)

	view := leaderboard.NewView(repo, hub, nil)
	feed, err := view.Subscribe(ctx, 0)
	require.NoError(t, err)
	defer feed.Stop()
	next(t, feed)

	hub.PublishTeam(team.Team{ID: "a"})
	select {
	case err := <-feed.Err():
		require.ErrorIs(t, err, boom)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a read error")
	}
}

func TestSubscribeInitialReadFailure(t *testing.T) {
	ctx := context.Background()
	repo := &mocks.TeamRepository{}
	repo.On("TopByScore", ctx, 10).Return(nil, errors.New("down"))

	_, err := leaderboard.NewView(repo, notify.NewHub(4), nil).Subscribe(ctx, 10)
	require.Error(t, err)
}
