package ledger

import (
	"time"

	"github.com/rpggio/geoquest/internal/domain/quest"
	"github.com/rpggio/geoquest/internal/domain/team"
)

// Result is the outcome of a committed correct answer.
type Result struct {
	QuestID      string    `json:"quest_id"`
	Rank         int       `json:"rank"`
	PointsEarned int       `json:"points_earned"`
	Timestamp    time.Time `json:"timestamp"`

	quest *quest.Quest
	team  *team.Team
}

// Outcome describes what happened to a submitted answer.
type Outcome struct {
	Correct        bool             `json:"correct"`
	AlreadySolved  bool             `json:"already_solved"`
	Result         *Result          `json:"result,omitempty"`
	Team           *team.Team       `json:"team,omitempty"`
	NextAssignment *team.Assignment `json:"next_assignment,omitempty"`
}
