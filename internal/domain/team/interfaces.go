package team

import (
	"context"

	"github.com/rpggio/geoquest/internal/domain/activity"
)

// Repository provides persistence for teams. List-style reads return
// teams without their solved records.
type Repository interface {
	Create(ctx context.Context, t *Team) error
	Get(ctx context.Context, id string) (*Team, error)
	Update(ctx context.Context, t *Team, expectedVersion int64) error
	List(ctx context.Context, opts ListOptions) ([]Team, error)
}

// Tx is the transactional view used for score adjustments.
type Tx interface {
	GetTeam(ctx context.Context, id string) (*Team, error)
	UpdateTeam(ctx context.Context, t *Team, expectedVersion int64) error
	LogScore(ctx context.Context, entry *activity.ScoreEntry) error
}

// Assigner hands a team its next quest.
type Assigner interface {
	AssignNext(ctx context.Context, teamID string) (*Assignment, error)
}

// Publisher receives every committed team write.
type Publisher interface {
	PublishTeam(t Team)
}
