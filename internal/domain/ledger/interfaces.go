package ledger

import (
	"context"

	"github.com/rpggio/geoquest/internal/domain/activity"
	"github.com/rpggio/geoquest/internal/domain/quest"
	"github.com/rpggio/geoquest/internal/domain/team"
)

// Tx is the transactional view the ledger reads and writes through.
// Update methods are version-checked and report repository.ErrConflict
// when the stored version moved.
type Tx interface {
	GetQuest(ctx context.Context, id string) (*quest.Quest, error)
	GetTeam(ctx context.Context, id string) (*team.Team, error)
	UpdateQuest(ctx context.Context, q *quest.Quest, expectedVersion int64) error
	UpdateTeam(ctx context.Context, t *team.Team, expectedVersion int64) error
	AddDiscovery(ctx context.Context, questID string, rec quest.DiscoveryRecord) error
	AddSolve(ctx context.Context, teamID string, rec team.SolvedRecord) error
	LogScore(ctx context.Context, entry *activity.ScoreEntry) error
}

// QuestReader loads the canonical answer for a submission.
type QuestReader interface {
	Get(ctx context.Context, id string) (*quest.Quest, error)
}

// Publisher receives committed quest and team writes.
type Publisher interface {
	PublishQuest(q quest.Quest)
	PublishTeam(t team.Team)
}
