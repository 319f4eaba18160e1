package mcp

import (
	"context"
	"fmt"
	"log/slog"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/geoquest/internal/auth"
	"github.com/rpggio/geoquest/internal/domain/ledger"
	"github.com/rpggio/geoquest/internal/domain/proximity"
	"github.com/rpggio/geoquest/internal/domain/quest"
	"github.com/rpggio/geoquest/internal/domain/team"
	"github.com/rpggio/geoquest/internal/geo"
)

type tools struct {
	svc           Services
	defaultRadius float64
	maxRadius     float64
	logger        *slog.Logger
}

// addTool registers a typed tool whose domain errors are reported as
// APIError tool results.
func addTool[In any](server *sdkmcp.Server, name, description string, fn func(ctx context.Context, in In) (any, error)) {
	sdkmcp.AddTool(server, &sdkmcp.Tool{Name: name, Description: description},
		func(ctx context.Context, _ *sdkmcp.CallToolRequest, in In) (*sdkmcp.CallToolResult, any, error) {
			out, err := fn(ctx, in)
			if err != nil {
				return nil, nil, MapError(err)
			}
			return nil, out, nil
		})
}

func (t *tools) register(server *sdkmcp.Server) {
	// Teams
	addTool(server, "register_team", "Register a team and hand it its first quest", t.registerTeam)
	addTool(server, "get_team", "Get a team with its score, solved quests and current assignment", t.getTeam)
	addTool(server, "update_location", "Record a team's last reported position", t.updateLocation)

	// Play
	addTool(server, "submit_answer", "Submit an answer for a quest; a correct answer scores by discovery rank and assigns the next quest", t.submitAnswer)
	addTool(server, "record_wrong_answer", "Apply the wrong answer penalty to a team", t.recordWrongAnswer)
	addTool(server, "assign_next", "Assign the team the least discovered quest it has not solved", t.assignNext)
	addTool(server, "nearby_quests", "List active quests within a radius of a position, nearest first", t.nearbyQuests)
	addTool(server, "top_teams", "Get the leaderboard", t.topTeams)

	// Administration
	addTool(server, "create_quest", "Create a quest (admin)", t.createQuest)
	addTool(server, "set_quest_active", "Put a quest in or out of play (admin)", t.setQuestActive)
	addTool(server, "adjust_score", "Apply a manual score correction with a reason (admin)", t.adjustScore)
	addTool(server, "audit_team", "Compare a team's score with its logged score changes (admin)", t.auditTeam)
}

func (t *tools) registerTeam(ctx context.Context, in RegisterTeamParams) (any, error) {
	id, ok := auth.FromContext(ctx)
	if !ok {
		return nil, auth.ErrUnauthorized
	}
	if !id.IsAdmin() {
		if in.ID == "" {
			in.ID = id.Subject
		}
		if err := auth.RequireTeam(ctx, in.ID); err != nil {
			return nil, err
		}
	}
	return t.svc.Teams.Register(ctx, team.RegisterRequest{ID: in.ID, Name: in.Name, Members: in.Members})
}

func (t *tools) getTeam(ctx context.Context, in TeamParams) (any, error) {
	if err := auth.RequireTeam(ctx, in.TeamID); err != nil {
		return nil, err
	}
	return t.svc.Teams.Get(ctx, in.TeamID)
}

func (t *tools) updateLocation(ctx context.Context, in UpdateLocationParams) (any, error) {
	if err := auth.RequireTeam(ctx, in.TeamID); err != nil {
		return nil, err
	}
	return t.svc.Teams.UpdateLocation(ctx, in.TeamID, geo.Point{Lat: in.Lat, Lng: in.Lng})
}

func (t *tools) submitAnswer(ctx context.Context, in SubmitAnswerParams) (any, error) {
	if err := auth.RequireTeam(ctx, in.TeamID); err != nil {
		return nil, err
	}
	out, err := t.svc.Answers.SubmitAnswer(ctx, ledger.SubmitRequest{
		TeamID:  in.TeamID,
		QuestID: in.QuestID,
		Answer:  in.Answer,
	})
	if err != nil {
		return nil, err
	}
	t.logger.Info("answer submitted", "team_id", in.TeamID, "quest_id", in.QuestID, "correct", out.Correct, "subject", subject(ctx))
	return out, nil
}

func (t *tools) recordWrongAnswer(ctx context.Context, in TeamParams) (any, error) {
	if err := auth.RequireTeam(ctx, in.TeamID); err != nil {
		return nil, err
	}
	return t.svc.Answers.RecordWrongAnswer(ctx, in.TeamID)
}

func (t *tools) assignNext(ctx context.Context, in TeamParams) (any, error) {
	if err := auth.RequireTeam(ctx, in.TeamID); err != nil {
		return nil, err
	}
	return t.svc.Assigner.AssignNext(ctx, in.TeamID)
}

func (t *tools) nearbyQuests(ctx context.Context, in NearbyQuestsParams) (any, error) {
	if _, ok := auth.FromContext(ctx); !ok {
		return nil, auth.ErrUnauthorized
	}
	radius := in.RadiusMeters
	if radius == 0 {
		radius = t.defaultRadius
	}
	if t.maxRadius > 0 && radius > t.maxRadius {
		return nil, fmt.Errorf("%w: at most %.0f meters", proximity.ErrInvalidRadius, t.maxRadius)
	}

	candidates, err := t.svc.Proximity.Nearby(ctx, geo.Point{Lat: in.Lat, Lng: in.Lng}, radius)
	if err != nil {
		return nil, err
	}
	if candidates == nil {
		candidates = []proximity.Candidate{}
	}
	return NearbyQuestsResult{Candidates: candidates}, nil
}

func (t *tools) topTeams(ctx context.Context, in TopTeamsParams) (any, error) {
	if _, ok := auth.FromContext(ctx); !ok {
		return nil, auth.ErrUnauthorized
	}
	standings, err := t.svc.Leaderboard.TopTeams(ctx, in.N)
	if err != nil {
		return nil, err
	}
	return TopTeamsResult{Teams: standings}, nil
}

func (t *tools) createQuest(ctx context.Context, in CreateQuestParams) (any, error) {
	if err := auth.RequireAdmin(ctx); err != nil {
		return nil, err
	}
	return t.svc.Quests.Create(ctx, quest.CreateRequest{
		Lat:           in.Lat,
		Lng:           in.Lng,
		Hint:          in.Hint,
		Question:      in.Question,
		CorrectAnswer: in.CorrectAnswer,
		Inactive:      in.Inactive,
	})
}

func (t *tools) setQuestActive(ctx context.Context, in SetQuestActiveParams) (any, error) {
	if err := auth.RequireAdmin(ctx); err != nil {
		return nil, err
	}
	return t.svc.Quests.SetActive(ctx, in.QuestID, in.Active)
}

func (t *tools) adjustScore(ctx context.Context, in AdjustScoreParams) (any, error) {
	if err := auth.RequireAdmin(ctx); err != nil {
		return nil, err
	}
	return t.svc.Teams.AdjustScore(ctx, team.AdjustRequest{
		TeamID: in.TeamID,
		Delta:  in.Delta,
		Reason: in.Reason,
		Actor:  subject(ctx),
	})
}

func (t *tools) auditTeam(ctx context.Context, in TeamParams) (any, error) {
	if err := auth.RequireAdmin(ctx); err != nil {
		return nil, err
	}
	return t.svc.Audit.Audit(ctx, in.TeamID)
}
