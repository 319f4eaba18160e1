package assignment_test

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/rpggio/geoquest/internal/domain/assignment"
	"github.com/rpggio/geoquest/internal/domain/quest"
	"github.com/rpggio/geoquest/internal/domain/team"
	"github.com/rpggio/geoquest/internal/repository"
	"github.com/rpggio/geoquest/internal/repository/mocks"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var fastRetry = repository.RetryPolicy{MaxRetries: 3, BaseBackoff: time.Microsecond, MaxBackoff: time.Microsecond}

func q(id string, count int) quest.Quest {
	return quest.Quest{ID: id, DiscoveryCount: count, IsActive: true, Hint: "hint " + id, Lat: 1, Lng: 2}
}

var start = quest.DiscoveryCursor{}

func after(count int, id string) quest.DiscoveryCursor {
	return quest.DiscoveryCursor{Count: count, ID: id}
}

func newSelector(quests *mocks.QuestRepository, teams *mocks.TeamRepository, window int) *assignment.Selector {
	return assignment.NewSelector(quests, teams, assignment.Options{
		Window: window,
		Retry:  fastRetry,
		Rand:   rand.New(rand.NewPCG(1, 2)),
	})
}

func TestSelectNext_SkipsExcluded(t *testing.T) {
	ctx := context.Background()
	quests := &mocks.QuestRepository{}
	quests.On("ListLeastDiscovered", ctx, 10, start).Return([]quest.Quest{q("a", 0), q("b", 1), q("c", 1)}, nil)

	s := newSelector(quests, nil, 10)
	for i := 0; i < 50; i++ {
		got, err := s.SelectNext(ctx, map[string]struct{}{"a": {}})
		require.NoError(t, err)
		require.NotEqual(t, "a", got.ID)
		require.Equal(t, 1, got.DiscoveryCount)
	}
}

func TestSelectNext_TiesAreRoughlyUniform(t *testing.T) {
	ctx := context.Background()
	quests := &mocks.QuestRepository{}
	quests.On("ListLeastDiscovered", ctx, 10, start).Return([]quest.Quest{q("a", 0), q("b", 0), q("c", 0), q("d", 3)}, nil)

	s := newSelector(quests, nil, 10)
	counts := map[string]int{}
	const draws = 3000
	for i := 0; i < draws; i++ {
		got, err := s.SelectNext(ctx, nil)
		require.NoError(t, err)
		counts[got.ID]++
	}
	require.Zero(t, counts["d"])
	for _, id := range []string{"a", "b", "c"} {
		require.InDelta(t, draws/3, counts[id], 150, "quest %s picked %d times", id, counts[id])
	}
}

func TestSelectNext_PagesPastExcludedAndTies(t *testing.T) {
	ctx := context.Background()
	quests := &mocks.QuestRepository{}
	quests.On("ListLeastDiscovered", ctx, 2, start).Return([]quest.Quest{q("a", 0), q("b", 0)}, nil)
	quests.On("ListLeastDiscovered", ctx, 2, after(0, "b")).Return([]quest.Quest{q("c", 0), q("d", 0)}, nil)
	quests.On("ListLeastDiscovered", ctx, 2, after(0, "d")).Return([]quest.Quest{q("e", 1), q("f", 2)}, nil)

	s := newSelector(quests, nil, 2)
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		got, err := s.SelectNext(ctx, map[string]struct{}{"a": {}})
		require.NoError(t, err)
		seen[got.ID] = true
	}
	require.Equal(t, map[string]bool{"b": true, "c": true, "d": true}, seen)
	quests.AssertNotCalled(t, "ListLeastDiscovered", ctx, 2, after(2, "f"))
}

func TestSelectNext_AllExcludedInFirstPage(t *testing.T) {
	ctx := context.Background()
	quests := &mocks.QuestRepository{}
	quests.On("ListLeastDiscovered", ctx, 2, start).Return([]quest.Quest{q("a", 0), q("b", 0)}, nil)
	quests.On("ListLeastDiscovered", ctx, 2, after(0, "b")).Return([]quest.Quest{q("c", 1), q("d", 2)}, nil)

	got, err := newSelector(quests, nil, 2).SelectNext(ctx, map[string]struct{}{"a": {}, "b": {}})
	require.NoError(t, err)
	require.Equal(t, "c", got.ID)
}

func TestSelectNext_NothingAssignable(t *testing.T) {
	ctx := context.Background()
	quests := &mocks.QuestRepository{}
	quests.On("ListLeastDiscovered", ctx, 10, start).Return([]quest.Quest{q("a", 0)}, nil)

	s := newSelector(quests, nil, 10)
	_, err := s.SelectNext(ctx, map[string]struct{}{"a": {}})
	require.ErrorIs(t, err, quest.ErrNoAssignableQuest)

	empty := &mocks.QuestRepository{}
	empty.On("ListLeastDiscovered", ctx, 10, start).Return([]quest.Quest{}, nil)
	_, err = newSelector(empty, nil, 10).SelectNext(ctx, nil)
	require.ErrorIs(t, err, quest.ErrNoAssignableQuest)
}

func TestAssignNext_StoresAssignment(t *testing.T) {
	ctx := context.Background()
	quests := &mocks.QuestRepository{}
	teams := &mocks.TeamRepository{}
	quests.On("ListLeastDiscovered", ctx, 10, start).Return([]quest.Quest{q("solved", 0), q("next", 1)}, nil)

	tm := &team.Team{ID: "t1", IsActive: true, Version: 7, SolvedQuests: []team.SolvedRecord{{QuestID: "solved"}}}
	teams.On("Get", ctx, "t1").Return(tm, nil)
	teams.On("Update", ctx, tm, int64(7)).Return(nil)

	a, err := newSelector(quests, teams, 10).AssignNext(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, "next", a.QuestID)
	require.Equal(t, "hint next", a.Hint)
	require.Equal(t, 1.0, a.Lat)
	require.Equal(t, int64(8), tm.Version)
	require.Same(t, a, tm.CurrentAssignment)
}

func TestAssignNext_RetriesOnConflict(t *testing.T) {
	ctx := context.Background()
	quests := &mocks.QuestRepository{}
	teams := &mocks.TeamRepository{}
	quests.On("ListLeastDiscovered", ctx, 10, start).Return([]quest.Quest{q("a", 0)}, nil)

	teams.On("Get", ctx, "t1").Return(&team.Team{ID: "t1", IsActive: true, Version: 1}, nil).Once()
	teams.On("Get", ctx, "t1").Return(&team.Team{ID: "t1", IsActive: true, Version: 2}, nil).Once()
	teams.On("Update", ctx, mock.Anything, int64(1)).Return(repository.ErrConflict).Once()
	teams.On("Update", ctx, mock.Anything, int64(2)).Return(nil).Once()

	a, err := newSelector(quests, teams, 10).AssignNext(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, "a", a.QuestID)
	teams.AssertExpectations(t)
}

func TestAssignNext_Errors(t *testing.T) {
	ctx := context.Background()
	quests := &mocks.QuestRepository{}
	teams := &mocks.TeamRepository{}
	quests.On("ListLeastDiscovered", ctx, 10, start).Return([]quest.Quest{q("a", 0)}, nil)
	teams.On("Get", ctx, "ghost").Return(nil, repository.ErrNotFound)
	teams.On("Get", ctx, "gone").Return(&team.Team{ID: "gone", IsActive: false}, nil)
	teams.On("Get", ctx, "done").Return(&team.Team{ID: "done", IsActive: true, SolvedQuests: []team.SolvedRecord{{QuestID: "a"}}}, nil)

	s := newSelector(quests, teams, 10)
	_, err := s.AssignNext(ctx, "ghost")
	require.ErrorIs(t, err, team.ErrNotFound)
	_, err = s.AssignNext(ctx, "gone")
	require.ErrorIs(t, err, team.ErrInactive)
	_, err = s.AssignNext(ctx, "done")
	require.ErrorIs(t, err, quest.ErrNoAssignableQuest)
	teams.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}
