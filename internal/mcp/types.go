package mcp

import (
	"github.com/rpggio/geoquest/internal/domain/leaderboard"
	"github.com/rpggio/geoquest/internal/domain/proximity"
)

type RegisterTeamParams struct {
	ID      string   `json:"id,omitempty" jsonschema:"team identifier, generated when omitted"`
	Name    string   `json:"name" jsonschema:"team display name"`
	Members []string `json:"members,omitempty" jsonschema:"member names"`
}

type TeamParams struct {
	TeamID string `json:"team_id" jsonschema:"team identifier"`
}

type SubmitAnswerParams struct {
	TeamID  string `json:"team_id" jsonschema:"team answering"`
	QuestID string `json:"quest_id" jsonschema:"quest being answered"`
	Answer  string `json:"answer" jsonschema:"answer text, compared case-insensitively"`
}

type UpdateLocationParams struct {
	TeamID string  `json:"team_id" jsonschema:"team reporting its position"`
	Lat    float64 `json:"lat" jsonschema:"latitude in degrees"`
	Lng    float64 `json:"lng" jsonschema:"longitude in degrees"`
}

type NearbyQuestsParams struct {
	Lat          float64 `json:"lat" jsonschema:"latitude in degrees"`
	Lng          float64 `json:"lng" jsonschema:"longitude in degrees"`
	RadiusMeters float64 `json:"radius_meters,omitempty" jsonschema:"search radius in meters"`
}

type TopTeamsParams struct {
	N int `json:"n,omitempty" jsonschema:"number of teams to return"`
}

type CreateQuestParams struct {
	Lat           float64 `json:"lat" jsonschema:"latitude in degrees"`
	Lng           float64 `json:"lng" jsonschema:"longitude in degrees"`
	Hint          string  `json:"hint,omitempty" jsonschema:"hint shown with the assignment"`
	Question      string  `json:"question" jsonschema:"question asked at the location"`
	CorrectAnswer string  `json:"correct_answer" jsonschema:"canonical answer"`
	Inactive      bool    `json:"inactive,omitempty" jsonschema:"create the quest hidden from play"`
}

type SetQuestActiveParams struct {
	QuestID string `json:"quest_id" jsonschema:"quest identifier"`
	Active  bool   `json:"active" jsonschema:"whether the quest is in play"`
}

type AdjustScoreParams struct {
	TeamID string `json:"team_id" jsonschema:"team to correct"`
	Delta  int    `json:"delta" jsonschema:"points to add, negative to deduct"`
	Reason string `json:"reason" jsonschema:"why the correction is made"`
}

type NearbyQuestsResult struct {
	Candidates []proximity.Candidate `json:"candidates"`
}

type TopTeamsResult struct {
	Teams []leaderboard.Standing `json:"teams"`
}
