package transport

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rpggio/geoquest/internal/auth"
	"github.com/rpggio/geoquest/internal/domain/ledger"
	"github.com/rpggio/geoquest/internal/domain/proximity"
	"github.com/rpggio/geoquest/internal/domain/quest"
	"github.com/rpggio/geoquest/internal/domain/team"
	"github.com/rpggio/geoquest/internal/geo"
)

type registerTeamRequest struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

type locationRequest struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type answerRequest struct {
	QuestID string `json:"quest_id"`
	Answer  string `json:"answer"`
}

type createQuestRequest struct {
	Lat           float64 `json:"lat"`
	Lng           float64 `json:"lng"`
	Hint          string  `json:"hint"`
	Question      string  `json:"question"`
	CorrectAnswer string  `json:"correct_answer"`
	Inactive      bool    `json:"inactive"`
}

type updateQuestRequest struct {
	Lat           *float64 `json:"lat"`
	Lng           *float64 `json:"lng"`
	Hint          *string  `json:"hint"`
	Question      *string  `json:"question"`
	CorrectAnswer *string  `json:"correct_answer"`
}

type setActiveRequest struct {
	Active bool `json:"active"`
}

type adjustRequest struct {
	Delta  int    `json:"delta"`
	Reason string `json:"reason"`
}

func (a *api) handleRegisterTeam(w http.ResponseWriter, r *http.Request) {
	var req registerTeamRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Team tokens register the team they name.
	id, _ := auth.FromContext(r.Context())
	if !id.IsAdmin() {
		if req.ID == "" {
			req.ID = id.Subject
		}
		if err := auth.RequireTeam(r.Context(), req.ID); err != nil {
			writeServiceError(w, err)
			return
		}
	}

	t, err := a.svc.Teams.Register(r.Context(), team.RegisterRequest{
		ID:      req.ID,
		Name:    req.Name,
		Members: req.Members,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (a *api) handleGetTeam(w http.ResponseWriter, r *http.Request) {
	teamID := chi.URLParam(r, "id")
	if err := auth.RequireTeam(r.Context(), teamID); err != nil {
		writeServiceError(w, err)
		return
	}

	t, err := a.svc.Teams.Get(r.Context(), teamID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *api) handleUpdateLocation(w http.ResponseWriter, r *http.Request) {
	teamID := chi.URLParam(r, "id")
	if err := auth.RequireTeam(r.Context(), teamID); err != nil {
		writeServiceError(w, err)
		return
	}

	var req locationRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	t, err := a.svc.Teams.UpdateLocation(r.Context(), teamID, geo.Point{Lat: req.Lat, Lng: req.Lng})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *api) handleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	teamID := chi.URLParam(r, "id")
	if err := auth.RequireTeam(r.Context(), teamID); err != nil {
		writeServiceError(w, err)
		return
	}

	var req answerRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	out, err := a.svc.Answers.SubmitAnswer(r.Context(), ledger.SubmitRequest{
		TeamID:  teamID,
		QuestID: req.QuestID,
		Answer:  req.Answer,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if out.AlreadySolved {
		writeJSON(w, http.StatusConflict, out)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) handleAssignNext(w http.ResponseWriter, r *http.Request) {
	teamID := chi.URLParam(r, "id")
	if err := auth.RequireTeam(r.Context(), teamID); err != nil {
		writeServiceError(w, err)
		return
	}

	next, err := a.svc.Assigner.AssignNext(r.Context(), teamID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, next)
}

func (a *api) handleNearby(w http.ResponseWriter, r *http.Request) {
	lat, err := floatQuery(r, "lat", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	lng, err := floatQuery(r, "lng", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	radius, err := a.radius(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	candidates, err := a.svc.Proximity.Nearby(r.Context(), geo.Point{Lat: lat, Lng: lng}, radius)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if candidates == nil {
		candidates = []proximity.Candidate{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"candidates": candidates})
}

func (a *api) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	n, err := intQuery(r, "n", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	standings, err := a.svc.Leaderboard.TopTeams(r.Context(), n)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"teams": standings})
}

func (a *api) handleCreateQuest(w http.ResponseWriter, r *http.Request) {
	var req createQuestRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	q, err := a.svc.Quests.Create(r.Context(), quest.CreateRequest{
		Lat:           req.Lat,
		Lng:           req.Lng,
		Hint:          req.Hint,
		Question:      req.Question,
		CorrectAnswer: req.CorrectAnswer,
		Inactive:      req.Inactive,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

func (a *api) handleGetQuest(w http.ResponseWriter, r *http.Request) {
	q, err := a.svc.Quests.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (a *api) handleUpdateQuest(w http.ResponseWriter, r *http.Request) {
	var req updateQuestRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	q, err := a.svc.Quests.Update(r.Context(), quest.UpdateRequest{
		ID:            chi.URLParam(r, "id"),
		Lat:           req.Lat,
		Lng:           req.Lng,
		Hint:          req.Hint,
		Question:      req.Question,
		CorrectAnswer: req.CorrectAnswer,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (a *api) handleSetQuestActive(w http.ResponseWriter, r *http.Request) {
	var req setActiveRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	q, err := a.svc.Quests.SetActive(r.Context(), chi.URLParam(r, "id"), req.Active)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (a *api) handleAdjustScore(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, _ := auth.FromContext(r.Context())
	t, err := a.svc.Teams.AdjustScore(r.Context(), team.AdjustRequest{
		TeamID: chi.URLParam(r, "id"),
		Delta:  req.Delta,
		Reason: req.Reason,
		Actor:  id.Subject,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *api) handleDeactivateTeam(w http.ResponseWriter, r *http.Request) {
	t, err := a.svc.Teams.Deactivate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *api) handleAudit(w http.ResponseWriter, r *http.Request) {
	report, err := a.svc.Audit.Audit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// radius reads the radius query parameter, falling back to the default.
func (a *api) radius(r *http.Request) (float64, error) {
	radius, err := floatQuery(r, "radius", a.opts.DefaultRadiusMeters)
	if err != nil {
		return 0, err
	}
	if radius <= 0 {
		return 0, fmt.Errorf("radius must be positive")
	}
	if a.opts.MaxRadiusMeters > 0 && radius > a.opts.MaxRadiusMeters {
		return 0, fmt.Errorf("radius must not exceed %.0f meters", a.opts.MaxRadiusMeters)
	}
	return radius, nil
}
