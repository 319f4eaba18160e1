package quest

import (
	"context"

	"github.com/rpggio/geoquest/internal/geo"
)

// Repository provides persistence for quests. List-style reads return
// quests without their discovery records.
type Repository interface {
	Create(ctx context.Context, q *Quest) error
	Get(ctx context.Context, id string) (*Quest, error)
	Update(ctx context.Context, q *Quest, expectedVersion int64) error
	List(ctx context.Context, opts ListOptions) ([]Quest, error)
	InRange(ctx context.Context, r geo.Range) ([]Quest, error)
}

// Publisher receives every committed quest write.
type Publisher interface {
	PublishQuest(q Quest)
}
