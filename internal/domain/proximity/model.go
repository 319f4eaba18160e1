package proximity

import (
	"time"

	"github.com/rpggio/geoquest/internal/domain/quest"
)

// Candidate is an active quest within the watch radius.
type Candidate struct {
	Quest          quest.Quest `json:"quest"`
	DistanceMeters float64     `json:"distance_meters"`
}

// Snapshot is the full candidate set at one moment, nearest first.
// A non-nil Err means the watch failed and this is its last snapshot.
type Snapshot struct {
	Candidates []Candidate `json:"candidates"`
	Err        error       `json:"-"`
	At         time.Time   `json:"at"`
}

// Contains reports whether questID is among the candidates.
func (s Snapshot) Contains(questID string) bool {
	for _, c := range s.Candidates {
		if c.Quest.ID == questID {
			return true
		}
	}
	return false
}

// Find returns the candidate for questID.
func (s Snapshot) Find(questID string) (Candidate, bool) {
	for _, c := range s.Candidates {
		if c.Quest.ID == questID {
			return c, true
		}
	}
	return Candidate{}, false
}

// InTriggerRange reports whether the candidate is close enough to answer.
func InTriggerRange(c Candidate, triggerMeters float64) bool {
	return c.DistanceMeters <= triggerMeters
}
