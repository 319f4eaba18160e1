package functional_test

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"
)

func newStdioSession(t *testing.T, extraEnv ...string) *sdkmcp.ClientSession {
	t.Helper()

	binaryPath := "./bin/geoquest"
	if _, err := os.Stat(binaryPath); os.IsNotExist(err) {
		binaryPath = "../../bin/geoquest"
		if _, err := os.Stat(binaryPath); os.IsNotExist(err) {
			t.Skip("Server binary not found. Run 'go build -o bin/geoquest ./cmd/server' first.")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)

	cmd := exec.CommandContext(ctx, binaryPath)
	cmd.Env = append(os.Environ(),
		"GEOQUEST_TRANSPORT_MODE=stdio",
		"GEOQUEST_DB_PATH="+filepath.Join(t.TempDir(), "geoquest.db"),
		"GEOQUEST_AUTH_ENABLED=false",
	)
	cmd.Env = append(cmd.Env, extraEnv...)

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, &sdkmcp.CommandTransport{Command: cmd}, nil)
	if err != nil {
		cancel()
		t.Fatalf("Failed to connect: %v", err)
	}

	t.Cleanup(func() {
		session.Close()
		cancel()
	})
	return session
}

func TestStdioFunctional_ProtocolCompliance(t *testing.T) {
	s := newStdioSession(t)

	initResult := s.InitializeResult()
	require.NotNil(t, initResult)
	require.Equal(t, "geoquest", initResult.ServerInfo.Name)
	require.Contains(t, initResult.Instructions, "Discovery rank")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tools, err := s.ListTools(ctx, nil)
	require.NoError(t, err)

	toolMap := make(map[string]*sdkmcp.Tool)
	for _, tool := range tools.Tools {
		toolMap[tool.Name] = tool
	}
	for _, name := range []string{"register_team", "submit_answer", "nearby_quests", "top_teams", "create_quest"} {
		require.Contains(t, toolMap, name)
		require.NotEmpty(t, toolMap[name].Description)
	}

	read, err := s.ReadResource(ctx, &sdkmcp.ReadResourceParams{URI: "geoquest://docs/scoring"})
	require.NoError(t, err)
	require.NotEmpty(t, read.Contents)
	require.Equal(t, "text/markdown", read.Contents[0].MIMEType)
}

func TestStdioFunctional_OperatorFlow(t *testing.T) {
	s := newStdioSession(t)

	var q struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(callTool(t, s, "create_quest", map[string]any{
		"lat": 55.9486, "lng": -3.1999, "question": "castle on the rock?", "correct_answer": "Edinburgh",
	}), &q))

	_ = callTool(t, s, "register_team", map[string]any{"id": "team-a", "name": "Alpha"})
	_ = callTool(t, s, "register_team", map[string]any{"id": "team-b", "name": "Bravo"})

	_ = callTool(t, s, "submit_answer", map[string]any{"team_id": "team-b", "quest_id": q.ID, "answer": "Glasgow"})
	_ = callTool(t, s, "submit_answer", map[string]any{"team_id": "team-a", "quest_id": q.ID, "answer": "edinburgh"})

	var board struct {
		Teams []struct {
			TeamID     string `json:"team_id"`
			TotalScore int    `json:"total_score"`
		} `json:"teams"`
	}
	require.NoError(t, json.Unmarshal(callTool(t, s, "top_teams", map[string]any{"n": 2}), &board))
	require.Len(t, board.Teams, 2)
	require.Equal(t, "team-a", board.Teams[0].TeamID)
	require.Equal(t, 100, board.Teams[0].TotalScore)
	require.Equal(t, -10, board.Teams[1].TotalScore)
}

func TestStdioFunctional_LogFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "geoquest.log")
	s := newStdioSession(t,
		"GEOQUEST_LOG_PATH="+logPath,
		"GEOQUEST_LOG_LEVEL=debug",
	)

	_ = callTool(t, s, "top_teams", map[string]any{})

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(logPath)
		if err != nil {
			return false
		}
		text := string(data)
		return strings.Contains(text, `msg="mcp traffic"`) &&
			strings.Contains(text, "stage=request") &&
			strings.Contains(text, "stage=response")
	}, 5*time.Second, 100*time.Millisecond)
}
