package mocks

import (
	"context"

	"github.com/rpggio/geoquest/internal/domain/activity"
	"github.com/rpggio/geoquest/internal/domain/quest"
	"github.com/rpggio/geoquest/internal/domain/team"
	"github.com/rpggio/geoquest/internal/geo"
	"github.com/stretchr/testify/mock"
)

// QuestRepository is a mock for quest.Repository and assignment.QuestSource.
type QuestRepository struct {
	mock.Mock
}

func (m *QuestRepository) Create(ctx context.Context, q *quest.Quest) error {
	args := m.Called(ctx, q)
	return args.Error(0)
}

func (m *QuestRepository) Get(ctx context.Context, id string) (*quest.Quest, error) {
	args := m.Called(ctx, id)
	if q, ok := args.Get(0).(*quest.Quest); ok {
		return q, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *QuestRepository) Update(ctx context.Context, q *quest.Quest, expectedVersion int64) error {
	args := m.Called(ctx, q, expectedVersion)
	return args.Error(0)
}

func (m *QuestRepository) List(ctx context.Context, opts quest.ListOptions) ([]quest.Quest, error) {
	args := m.Called(ctx, opts)
	if list, ok := args.Get(0).([]quest.Quest); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *QuestRepository) InRange(ctx context.Context, r geo.Range) ([]quest.Quest, error) {
	args := m.Called(ctx, r)
	if list, ok := args.Get(0).([]quest.Quest); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *QuestRepository) ListLeastDiscovered(ctx context.Context, limit int, after quest.DiscoveryCursor) ([]quest.Quest, error) {
	args := m.Called(ctx, limit, after)
	if list, ok := args.Get(0).([]quest.Quest); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

// TeamRepository is a mock for team.Repository and assignment.TeamStore.
type TeamRepository struct {
	mock.Mock
}

func (m *TeamRepository) Create(ctx context.Context, t *team.Team) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *TeamRepository) Get(ctx context.Context, id string) (*team.Team, error) {
	args := m.Called(ctx, id)
	if t, ok := args.Get(0).(*team.Team); ok {
		return t, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *TeamRepository) Update(ctx context.Context, t *team.Team, expectedVersion int64) error {
	args := m.Called(ctx, t, expectedVersion)
	return args.Error(0)
}

func (m *TeamRepository) List(ctx context.Context, opts team.ListOptions) ([]team.Team, error) {
	args := m.Called(ctx, opts)
	if list, ok := args.Get(0).([]team.Team); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *TeamRepository) TopByScore(ctx context.Context, n int) ([]team.Team, error) {
	args := m.Called(ctx, n)
	if list, ok := args.Get(0).([]team.Team); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *TeamRepository) TotalScore(ctx context.Context, teamID string) (int, error) {
	args := m.Called(ctx, teamID)
	return args.Int(0), args.Error(1)
}

// ActivityRepository is a mock for activity.Repository.
type ActivityRepository struct {
	mock.Mock
}

func (m *ActivityRepository) LogScore(ctx context.Context, entry *activity.ScoreEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *ActivityRepository) List(ctx context.Context, opts activity.ListOptions) ([]activity.ScoreEntry, error) {
	args := m.Called(ctx, opts)
	if list, ok := args.Get(0).([]activity.ScoreEntry); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

// Assigner is a mock for team.Assigner.
type Assigner struct {
	mock.Mock
}

func (m *Assigner) AssignNext(ctx context.Context, teamID string) (*team.Assignment, error) {
	args := m.Called(ctx, teamID)
	if a, ok := args.Get(0).(*team.Assignment); ok {
		return a, args.Error(1)
	}
	return nil, args.Error(1)
}

// Publisher records published quests and teams.
type Publisher struct {
	mock.Mock
}

func (m *Publisher) PublishQuest(q quest.Quest) {
	m.Called(q)
}

func (m *Publisher) PublishTeam(t team.Team) {
	m.Called(t)
}
