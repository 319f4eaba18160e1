package team

import (
	"time"

	"github.com/rpggio/geoquest/internal/geo"
)

// Team is a group of players competing in the hunt.
type Team struct {
	ID                string         `json:"id"`
	Name              string         `json:"name"`
	Members           []string       `json:"members"`
	TotalScore        int            `json:"total_score"`
	WrongAnswerCount  int            `json:"wrong_answer_count"`
	SolvedQuests      []SolvedRecord `json:"solved_quests,omitempty"`
	CurrentAssignment *Assignment    `json:"current_assignment,omitempty"`
	LastLocation      *Location      `json:"last_location,omitempty"`
	IsActive          bool           `json:"is_active"`
	Version           int64          `json:"version"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// SolvedRecord is a quest the team solved and what it earned.
type SolvedRecord struct {
	QuestID      string    `json:"quest_id"`
	Rank         int       `json:"rank"`
	PointsEarned int       `json:"points_earned"`
	Timestamp    time.Time `json:"timestamp"`
}

// Assignment is the quest a team is currently hunting, with a snapshot of
// its hint and location taken at assignment time.
type Assignment struct {
	QuestID    string    `json:"quest_id"`
	Hint       string    `json:"hint"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	AssignedAt time.Time `json:"assigned_at"`
}

// Location is the last reported team position.
type Location struct {
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	ReportedAt time.Time `json:"reported_at"`
}

// Point returns the assignment target.
func (a *Assignment) Point() geo.Point {
	return geo.Point{Lat: a.Lat, Lng: a.Lng}
}

// HasSolved reports whether questID is in the team's solved list.
func (t *Team) HasSolved(questID string) bool {
	for _, s := range t.SolvedQuests {
		if s.QuestID == questID {
			return true
		}
	}
	return false
}

// SolvedSet returns the solved quest ids.
func (t *Team) SolvedSet() map[string]struct{} {
	set := make(map[string]struct{}, len(t.SolvedQuests))
	for _, s := range t.SolvedQuests {
		set[s.QuestID] = struct{}{}
	}
	return set
}
