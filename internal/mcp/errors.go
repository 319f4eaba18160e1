package mcp

import (
	"errors"
	"fmt"

	"github.com/rpggio/geoquest/internal/auth"
	"github.com/rpggio/geoquest/internal/domain/activity"
	"github.com/rpggio/geoquest/internal/domain/ledger"
	"github.com/rpggio/geoquest/internal/domain/proximity"
	"github.com/rpggio/geoquest/internal/domain/quest"
	"github.com/rpggio/geoquest/internal/domain/team"
	"github.com/rpggio/geoquest/internal/geo"
	"github.com/rpggio/geoquest/internal/repository"
)

// APIError represents an MCP error response.
type APIError struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	Details      any    `json:"details,omitempty"`
	RecoveryHint string `json:"recovery_hint,omitempty"`
}

func (e *APIError) Error() string {
	if e.RecoveryHint != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.RecoveryHint)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// MapError maps domain errors to MCP error codes. Unknown errors map to
// INTERNAL_ERROR without exposing their text.
func MapError(err error) *APIError {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		return &APIError{Code: "UNAUTHORIZED", Message: "missing or invalid credentials", RecoveryHint: "Send a valid bearer token"}
	case errors.Is(err, auth.ErrPermissionDenied):
		return &APIError{Code: "PERMISSION_DENIED", Message: err.Error(), RecoveryHint: "Act only for your own team"}
	case errors.Is(err, repository.ErrRetryExhausted):
		return &APIError{Code: "RETRY_EXHAUSTED", Message: "too much contention, nothing was changed", RecoveryHint: "Retry shortly"}
	case errors.Is(err, quest.ErrNotFound):
		return &APIError{Code: "QUEST_NOT_FOUND", Message: "quest not found", RecoveryHint: "Check the quest ID"}
	case errors.Is(err, team.ErrNotFound), errors.Is(err, activity.ErrTeamNotFound):
		return &APIError{Code: "TEAM_NOT_FOUND", Message: "team not found", RecoveryHint: "Register the team first"}
	case errors.Is(err, ledger.ErrAlreadySolved):
		return &APIError{Code: "ALREADY_SOLVED", Message: "team already solved this quest", RecoveryHint: "Call assign_next for a new quest"}
	case errors.Is(err, quest.ErrNoAssignableQuest):
		return &APIError{Code: "NO_ASSIGNABLE_QUEST", Message: "no quest left to assign", RecoveryHint: "Wait for new quests"}
	case errors.Is(err, team.ErrInactive):
		return &APIError{Code: "TEAM_INACTIVE", Message: "team is inactive"}
	case errors.Is(err, proximity.ErrInvalidRadius):
		return &APIError{Code: "INVALID_INPUT", Message: err.Error(), RecoveryHint: "Use a positive radius in meters"}
	case errors.Is(err, geo.ErrInvalidPoint),
		errors.Is(err, quest.ErrInvalidInput),
		errors.Is(err, team.ErrInvalidInput),
		errors.Is(err, ledger.ErrInvalidInput),
		errors.Is(err, activity.ErrInvalidInput):
		return &APIError{Code: "INVALID_INPUT", Message: err.Error()}
	default:
		return &APIError{Code: "INTERNAL_ERROR", Message: "internal error"}
	}
}
