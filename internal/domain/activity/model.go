package activity

import "time"

// Kind classifies a score delta.
type Kind string

const (
	KindSolve            Kind = "solve"
	KindWrongAnswer      Kind = "wrong_answer"
	KindManualAdjustment Kind = "manual_adjustment"
)

// ScoreEntry is one score delta applied to a team.
type ScoreEntry struct {
	ID        string    `json:"id"`
	TeamID    string    `json:"team_id"`
	QuestID   *string   `json:"quest_id,omitempty"`
	Delta     int       `json:"delta"`
	Kind      Kind      `json:"kind"`
	Reason    string    `json:"reason,omitempty"`
	Actor     string    `json:"actor,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AuditReport compares a team's stored score with its logged deltas.
type AuditReport struct {
	TeamID      string       `json:"team_id"`
	TotalScore  int          `json:"total_score"`
	SumOfDeltas int          `json:"sum_of_deltas"`
	SolveDelta  int          `json:"solve_delta"`
	WrongDelta  int          `json:"wrong_delta"`
	ManualDelta int          `json:"manual_delta"`
	Consistent  bool         `json:"consistent"`
	Entries     []ScoreEntry `json:"entries"`
}
