package quest

import (
	"time"

	"github.com/rpggio/geoquest/internal/geo"
)

// Quest is a geotagged puzzle that teams race to solve.
type Quest struct {
	ID             string            `json:"id"`
	Lat            float64           `json:"lat"`
	Lng            float64           `json:"lng"`
	CellKey        string            `json:"cell_key"`
	Hint           string            `json:"hint"`
	Question       string            `json:"question"`
	CorrectAnswer  string            `json:"correct_answer,omitempty"`
	DiscoveryCount int               `json:"discovery_count"`
	DiscoveryTeams []DiscoveryRecord `json:"discovery_teams,omitempty"`
	IsActive       bool              `json:"is_active"`
	Version        int64             `json:"version"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// DiscoveryRecord is one successful solve of a quest. Ranks are 1-based
// and contiguous in commit order.
type DiscoveryRecord struct {
	TeamID    string    `json:"team_id"`
	Rank      int       `json:"rank"`
	Timestamp time.Time `json:"timestamp"`
}

// Location returns the quest coordinates.
func (q *Quest) Location() geo.Point {
	return geo.Point{Lat: q.Lat, Lng: q.Lng}
}

// Public returns a copy safe to show to players.
func (q Quest) Public() Quest {
	q.CorrectAnswer = ""
	return q
}
