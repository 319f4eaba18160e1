package functional_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/geoquest/internal/auth"
	"github.com/rpggio/geoquest/internal/testserver"
	"github.com/stretchr/testify/require"
)

// bearerTransport adds a bearer token to every request.
type bearerTransport struct {
	token string
	next  http.RoundTripper
}

func (b *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}
	return b.next.RoundTrip(req)
}

func connectHTTP(t *testing.T, ts *testserver.TestServer, token string) *sdkmcp.ClientSession {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, &sdkmcp.StreamableClientTransport{
		Endpoint:   ts.Server.URL + "/mcp",
		HTTPClient: &http.Client{Transport: &bearerTransport{token: token, next: http.DefaultTransport}},
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func callTool(t *testing.T, session *sdkmcp.ClientSession, name string, args map[string]any) json.RawMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := session.CallTool(ctx, &sdkmcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err, "CallTool %s failed", name)
	require.NotEmpty(t, result.Content, "Tool %s returned no content", name)
	text, ok := result.Content[0].(*sdkmcp.TextContent)
	require.True(t, ok)
	require.False(t, result.IsError, "Tool %s returned error: %s", name, text.Text)
	return json.RawMessage(text.Text)
}

func callToolError(t *testing.T, session *sdkmcp.ClientSession, name string, args map[string]any) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := session.CallTool(ctx, &sdkmcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return err.Error()
	}
	require.True(t, result.IsError, "Tool %s unexpectedly succeeded", name)
	text, ok := result.Content[0].(*sdkmcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestFunctional_Authentication(t *testing.T) {
	ts := testserver.New(t, testserver.WithAuth())
	session := connectHTTP(t, ts, "")

	msg := callToolError(t, session, "top_teams", map[string]any{})
	require.Contains(t, msg, "unauthorized")
}

func TestFunctional_GameOverMCP(t *testing.T) {
	ts := testserver.New(t, testserver.WithAuth())
	admin := connectHTTP(t, ts, ts.Token(t, auth.Identity{Subject: "ops", Role: auth.RoleAdmin}))
	team := connectHTTP(t, ts, ts.Token(t, auth.Identity{Subject: "team-a", Role: auth.RoleTeam}))

	var q struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(callTool(t, admin, "create_quest", map[string]any{
		"lat":            -33.8568,
		"lng":            151.2153,
		"hint":           "sails by the harbour",
		"question":       "what is the building?",
		"correct_answer": "Opera House",
	}), &q))

	var registered struct {
		ID                string `json:"id"`
		CurrentAssignment struct {
			QuestID string `json:"quest_id"`
		} `json:"current_assignment"`
	}
	require.NoError(t, json.Unmarshal(callTool(t, team, "register_team", map[string]any{"name": "Alpha"}), &registered))
	require.Equal(t, "team-a", registered.ID)
	require.Equal(t, q.ID, registered.CurrentAssignment.QuestID)

	var nearby struct {
		Candidates []struct {
			Quest struct {
				ID            string `json:"id"`
				CorrectAnswer string `json:"correct_answer"`
			} `json:"quest"`
		} `json:"candidates"`
	}
	require.NoError(t, json.Unmarshal(callTool(t, team, "nearby_quests", map[string]any{
		"lat": -33.8570, "lng": 151.2150, "radius_meters": 300,
	}), &nearby))
	require.Len(t, nearby.Candidates, 1)
	require.Empty(t, nearby.Candidates[0].Quest.CorrectAnswer)

	var outcome struct {
		Correct bool `json:"correct"`
		Result  struct {
			Rank         int `json:"rank"`
			PointsEarned int `json:"points_earned"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(callTool(t, team, "submit_answer", map[string]any{
		"team_id": "team-a", "quest_id": q.ID, "answer": "opera house",
	}), &outcome))
	require.True(t, outcome.Correct)
	require.Equal(t, 1, outcome.Result.Rank)
	require.Equal(t, 100, outcome.Result.PointsEarned)

	msg := callToolError(t, team, "adjust_score", map[string]any{"team_id": "team-a", "delta": 1000, "reason": "because"})
	require.Contains(t, msg, "PERMISSION_DENIED")

	var report struct {
		Consistent  bool `json:"consistent"`
		SumOfDeltas int  `json:"sum_of_deltas"`
	}
	require.NoError(t, json.Unmarshal(callTool(t, admin, "audit_team", map[string]any{"team_id": "team-a"}), &report))
	require.True(t, report.Consistent)
	require.Equal(t, 100, report.SumOfDeltas)
}
