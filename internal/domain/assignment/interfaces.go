package assignment

import (
	"context"

	"github.com/rpggio/geoquest/internal/domain/quest"
	"github.com/rpggio/geoquest/internal/domain/team"
)

// QuestSource pages through active quests ordered by discovery count
// ascending, ties by id, starting strictly after the cursor.
type QuestSource interface {
	ListLeastDiscovered(ctx context.Context, limit int, after quest.DiscoveryCursor) ([]quest.Quest, error)
}

// TeamStore reads and version-checks team writes.
type TeamStore interface {
	Get(ctx context.Context, id string) (*team.Team, error)
	Update(ctx context.Context, t *team.Team, expectedVersion int64) error
}
