package mcp

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

const serverInstructions = `geoquest coordinates a location-based scavenger hunt: Quests are geotagged puzzles, Teams race to solve them.

Core concepts:
- Quest: a location, hint, question and canonical answer. discovery_count says how many teams solved it.
- Team: members, total_score, wrong_answer_count, solved quests and a current_assignment.
- Discovery rank: 1-based order in which teams solved a quest. Rank 1 earns 100, rank 2 75, rank 3 50, rank 4 25, later ranks nothing.
- Wrong answer: -10 points, and the team's wrong_answer_count grows. Score may go negative.

Typical flow for a team:
1) register_team, which also assigns the first quest.
2) nearby_quests around the team's position to find candidates; update_location keeps the last position on record.
3) submit_answer for the assigned quest. A correct answer credits the rank bonus and assigns the next quest.
   already_solved=true means the team solved this quest before and nothing changed.
4) top_teams for the leaderboard.

Errors carry a code and a recovery hint. RETRY_EXHAUSTED means nothing was written; retry shortly.

Docs:
- geoquest://docs/scoring
- geoquest://docs/administration
`

type docResource struct {
	URI         string
	Name        string
	Title       string
	Description string
	Content     string
}

var docResources = []docResource{
	{
		URI:         "geoquest://docs/scoring",
		Name:        "docs_scoring",
		Title:       "Scoring and discovery ranks",
		Description: "How answers are scored, how ranks are assigned under concurrency, and how quests are assigned.",
		Content: `# Scoring and discovery ranks

## Correct answers

Answers are compared case-insensitively after trimming whitespace.
The first correct answer of a team for a quest earns a bonus by discovery rank:

| Rank | Points |
|------|--------|
| 1    | 100    |
| 2    | 75     |
| 3    | 50     |
| 4    | 25     |
| 5+   | 0      |

Ranks are contiguous and follow commit order. When two teams answer at the same moment,
exactly one gets rank 1 and the other rank 2; neither is lost or duplicated.
A team can solve each quest once; a repeated correct answer reports already_solved and changes nothing.

## Wrong answers

Each wrong answer deducts 10 points and increments wrong_answer_count in one step.

## Assignment

After a solve the team is assigned an active quest it has not solved, preferring the quest with
the fewest discoveries. Ties are broken at random. When nothing is left, NO_ASSIGNABLE_QUEST is returned
and the team keeps its previous state.
`,
	},
	{
		URI:         "geoquest://docs/administration",
		Name:        "docs_administration",
		Title:       "Administration",
		Description: "Admin tools: creating quests, taking them out of play, score corrections and audits.",
		Content: `# Administration

Admin tools require a token with the admin role (or a server running without authentication).

- create_quest: lat/lng, question and correct_answer are required.
- set_quest_active: inactive quests are not assigned and not reported as nearby. Past solves remain.
- adjust_score: applies a signed delta with a reason. It is recorded in the score log with the caller as actor.
- audit_team: compares total_score with the sum of logged score changes. consistent=false needs investigation.
`,
	},
}

func registerDocResources(server *sdkmcp.Server) {
	for _, doc := range docResources {
		server.AddResource(&sdkmcp.Resource{
			URI:         doc.URI,
			Name:        doc.Name,
			Title:       doc.Title,
			Description: doc.Description,
			MIMEType:    "text/markdown",
			Size:        int64(len(doc.Content)),
		}, func(_ context.Context, req *sdkmcp.ReadResourceRequest) (*sdkmcp.ReadResourceResult, error) {
			uri := doc.URI
			if req != nil && req.Params != nil && req.Params.URI != "" {
				uri = req.Params.URI
			}
			return &sdkmcp.ReadResourceResult{
				Contents: []*sdkmcp.ResourceContents{{
					URI:      uri,
					MIMEType: "text/markdown",
					Text:     doc.Content,
				}},
			}, nil
		})
	}
}
