package team_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rpggio/geoquest/internal/domain/activity"
	"github.com/rpggio/geoquest/internal/domain/quest"
	"github.com/rpggio/geoquest/internal/domain/team"
	"github.com/rpggio/geoquest/internal/geo"
	"github.com/rpggio/geoquest/internal/repository"
	"github.com/rpggio/geoquest/internal/repository/mocks"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var fastRetry = repository.RetryPolicy{MaxRetries: 3, BaseBackoff: time.Microsecond, MaxBackoff: time.Microsecond}

// fakeTx keeps teams and score entries in memory.
type fakeTx struct {
	teams   map[string]*team.Team
	entries []activity.ScoreEntry
}

func (f *fakeTx) GetTeam(_ context.Context, id string) (*team.Team, error) {
	t, ok := f.teams[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTx) UpdateTeam(_ context.Context, t *team.Team, expectedVersion int64) error {
	if f.teams[t.ID].Version != expectedVersion {
		return repository.ErrConflict
	}
	cp := *t
	f.teams[t.ID] = &cp
	return nil
}

func (f *fakeTx) LogScore(_ context.Context, e *activity.ScoreEntry) error {
	f.entries = append(f.entries, *e)
	return nil
}

func (f *fakeTx) InTx(ctx context.Context, fn func(context.Context, team.Tx) error) error {
	return fn(ctx, f)
}

func TestTeamService_RegisterAssignsFirstQuest(t *testing.T) {
	ctx := context.Background()
	repo := &mocks.TeamRepository{}
	assigner := &mocks.Assigner{}

	assignment := &team.Assignment{QuestID: "q1", Hint: "h"}
	repo.On("Create", ctx, mock.MatchedBy(func(tm *team.Team) bool {
		return tm.ID == "t1" && tm.Name == "Rovers" && tm.IsActive && tm.Version == 1
	})).Return(nil)
	assigner.On("AssignNext", ctx, "t1").Return(assignment, nil)
	repo.On("Get", ctx, "t1").Return(&team.Team{ID: "t1", Name: "Rovers", CurrentAssignment: assignment}, nil)

	svc := team.NewService(repo, &fakeTx{}, assigner, nil, fastRetry, nil)
	tm, err := svc.Register(ctx, team.RegisterRequest{ID: "t1", Name: " Rovers ", Members: []string{"ana"}})
	require.NoError(t, err)
	require.Equal(t, "q1", tm.CurrentAssignment.QuestID)
	assigner.AssertExpectations(t)
}

func TestTeamService_RegisterWithEmptyPool(t *testing.T) {
	ctx := context.Background()
	repo := &mocks.TeamRepository{}
	assigner := &mocks.Assigner{}
	repo.On("Create", ctx, mock.Anything).Return(nil)
	assigner.On("AssignNext", ctx, mock.Anything).Return(nil, quest.ErrNoAssignableQuest)

	svc := team.NewService(repo, &fakeTx{}, assigner, nil, fastRetry, nil)
	tm, err := svc.Register(ctx, team.RegisterRequest{Name: "Solo"})
	require.NoError(t, err)
	require.NotEmpty(t, tm.ID)
	require.Nil(t, tm.CurrentAssignment)
	require.Equal(t, []string{}, tm.Members)
	repo.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

func TestTeamService_RegisterValidation(t *testing.T) {
	ctx := context.Background()
	repo := &mocks.TeamRepository{}
	repo.On("Create", ctx, mock.Anything).Return(repository.ErrDuplicate)
	svc := team.NewService(repo, &fakeTx{}, nil, nil, fastRetry, nil)

	_, err := svc.Register(ctx, team.RegisterRequest{Name: ""})
	require.ErrorIs(t, err, team.ErrInvalidInput)

	_, err = svc.Register(ctx, team.RegisterRequest{ID: "t1", Name: "Dup"})
	require.ErrorIs(t, err, team.ErrInvalidInput)
}

func TestTeamService_UpdateLocation(t *testing.T) {
	ctx := context.Background()
	repo := &mocks.TeamRepository{}
	pub := &mocks.Publisher{}
	existing := &team.Team{ID: "t1", Version: 3, IsActive: true}
	repo.On("Get", ctx, "t1").Return(existing, nil)
	repo.On("Update", ctx, existing, int64(3)).Return(nil)

	svc := team.NewService(repo, &fakeTx{}, nil, pub, fastRetry, nil)
	tm, err := svc.UpdateLocation(ctx, "t1", geo.Point{Lat: 30.3517, Lng: 76.3598})
	require.NoError(t, err)
	require.Equal(t, 30.3517, tm.LastLocation.Lat)
	require.Equal(t, int64(4), tm.Version)
	// Location reports do not wake leaderboard feeds.
	pub.AssertNotCalled(t, "PublishTeam", mock.Anything)

	_, err = svc.UpdateLocation(ctx, "t1", geo.Point{Lat: 0, Lng: 181})
	require.ErrorIs(t, err, team.ErrInvalidInput)
}

func TestTeamService_DeactivateClearsAssignment(t *testing.T) {
	ctx := context.Background()
	repo := &mocks.TeamRepository{}
	existing := &team.Team{ID: "t1", Version: 1, IsActive: true, CurrentAssignment: &team.Assignment{QuestID: "q1"}}
	repo.On("Get", ctx, "t1").Return(existing, nil)
	repo.On("Update", ctx, existing, int64(1)).Return(nil)
	repo.On("Get", ctx, "ghost").Return(nil, repository.ErrNotFound)
	pub := &mocks.Publisher{}
	pub.On("PublishTeam", mock.AnythingOfType("team.Team")).Return()

	svc := team.NewService(repo, &fakeTx{}, nil, pub, fastRetry, nil)
	tm, err := svc.Deactivate(ctx, "t1")
	require.NoError(t, err)
	require.False(t, tm.IsActive)
	require.Nil(t, tm.CurrentAssignment)
	pub.AssertNumberOfCalls(t, "PublishTeam", 1)

	_, err = svc.Deactivate(ctx, "ghost")
	require.ErrorIs(t, err, team.ErrNotFound)
}

func TestTeamService_AdjustScoreLogsEntry(t *testing.T) {
	ctx := context.Background()
	tx := &fakeTx{teams: map[string]*team.Team{"t1": {ID: "t1", TotalScore: 40, Version: 2}}}
	svc := team.NewService(&mocks.TeamRepository{}, tx, nil, nil, fastRetry, nil)

	tm, err := svc.AdjustScore(ctx, team.AdjustRequest{TeamID: "t1", Delta: -15, Reason: "unsportsmanlike", Actor: "admin"})
	require.NoError(t, err)
	require.Equal(t, 25, tm.TotalScore)
	require.Equal(t, int64(3), tx.teams["t1"].Version)

	require.Len(t, tx.entries, 1)
	require.Equal(t, activity.KindManualAdjustment, tx.entries[0].Kind)
	require.Equal(t, -15, tx.entries[0].Delta)
	require.Equal(t, "admin", tx.entries[0].Actor)

	_, err = svc.AdjustScore(ctx, team.AdjustRequest{TeamID: "ghost", Delta: 1, Reason: "x"})
	require.ErrorIs(t, err, team.ErrNotFound)
	_, err = svc.AdjustScore(ctx, team.AdjustRequest{TeamID: "t1", Delta: 0, Reason: "x"})
	require.ErrorIs(t, err, team.ErrInvalidInput)
	_, err = svc.AdjustScore(ctx, team.AdjustRequest{TeamID: "t1", Delta: 5})
	require.ErrorIs(t, err, team.ErrInvalidInput)
}

func TestTeamService_RegisterAssignmentFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	repo := &mocks.TeamRepository{}
	assigner := &mocks.Assigner{}
	repo.On("Create", ctx, mock.Anything).Return(nil)
	assigner.On("AssignNext", ctx, "t1").Return(nil, errors.New("db down"))

	svc := team.NewService(repo, &fakeTx{}, assigner, nil, fastRetry, nil)
	tm, err := svc.Register(ctx, team.RegisterRequest{ID: "t1", Name: "Rovers"})
	require.NoError(t, err)
	require.Nil(t, tm.CurrentAssignment)
}
