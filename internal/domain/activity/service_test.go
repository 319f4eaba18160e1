package activity_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rpggio/geoquest/internal/domain/activity"
	"github.com/rpggio/geoquest/internal/repository"
	"github.com/rpggio/geoquest/internal/repository/mocks"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestActivityService_LogFillsIDAndTimestamp(t *testing.T) {
	ctx := context.Background()
	repo := &mocks.ActivityRepository{}
	repo.On("LogScore", ctx, mock.MatchedBy(func(e *activity.ScoreEntry) bool {
		return e.ID != "" && !e.CreatedAt.IsZero()
	})).Return(nil)

	svc := activity.NewService(repo, &mocks.TeamRepository{}, nil)
	require.NoError(t, svc.LogScore(ctx, &activity.ScoreEntry{TeamID: "t1", Delta: 5, Kind: activity.KindManualAdjustment}))
	require.ErrorIs(t, svc.LogScore(ctx, &activity.ScoreEntry{}), activity.ErrInvalidInput)
	repo.AssertExpectations(t)
}

func TestActivityService_Audit(t *testing.T) {
	ctx := context.Background()
	repo := &mocks.ActivityRepository{}
	scores := &mocks.TeamRepository{}

	entries := []activity.ScoreEntry{
		{TeamID: "t1", Delta: 100, Kind: activity.KindSolve},
		{TeamID: "t1", Delta: -10, Kind: activity.KindWrongAnswer},
		{TeamID: "t1", Delta: 75, Kind: activity.KindSolve},
		{TeamID: "t1", Delta: -20, Kind: activity.KindManualAdjustment},
	}
	scores.On("TotalScore", ctx, "t1").Return(145, nil)
	repo.On("List", ctx, activity.ListOptions{TeamID: "t1"}).Return(entries, nil)

	svc := activity.NewService(repo, scores, nil)
	report, err := svc.Audit(ctx, "t1")
	require.NoError(t, err)
	require.True(t, report.Consistent)
	require.Equal(t, 145, report.SumOfDeltas)
	require.Equal(t, 175, report.SolveDelta)
	require.Equal(t, -10, report.WrongDelta)
	require.Equal(t, -20, report.ManualDelta)
	require.Len(t, report.Entries, 4)
}

func TestActivityService_AuditMismatch(t *testing.T) {
	ctx := context.Background()
	repo := &mocks.ActivityRepository{}
	scores := &mocks.TeamRepository{}
	scores.On("TotalScore", ctx, "t1").Return(90, nil)
	repo.On("List", ctx, activity.ListOptions{TeamID: "t1"}).Return([]activity.ScoreEntry{{Delta: 100, Kind: activity.KindSolve}}, nil)

	report, err := activity.NewService(repo, scores, nil).Audit(ctx, "t1")
	require.NoError(t, err)
	require.False(t, report.Consistent)
}

func TestActivityService_AuditErrors(t *testing.T) {
	ctx := context.Background()
	repo := &mocks.ActivityRepository{}
	scores := &mocks.TeamRepository{}
	scores.On("TotalScore", ctx, "ghost").Return(0, repository.ErrNotFound)
	scores.On("TotalScore", ctx, "broken").Return(0, errors.New("disk on fire"))

	svc := activity.NewService(repo, scores, nil)
	_, err := svc.Audit(ctx, "ghost")
	require.ErrorIs(t, err, activity.ErrTeamNotFound)
	_, err = svc.Audit(ctx, "broken")
	require.Error(t, err)
	_, err = svc.Audit(ctx, "")
	require.ErrorIs(t, err, activity.ErrInvalidInput)
}
