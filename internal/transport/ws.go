package transport

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rpggio/geoquest/internal/auth"
	"github.com/rpggio/geoquest/internal/domain/leaderboard"
	"github.com/rpggio/geoquest/internal/domain/proximity"
	"github.com/rpggio/geoquest/internal/geo"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// proximityMessage is sent for every candidate set change. CloseRange is
// set while the team's assigned quest is among the candidates; CanAnswer
// once it is also within the answer trigger distance.
type proximityMessage struct {
	Type            string                `json:"type"`
	Candidates      []proximity.Candidate `json:"candidates"`
	AssignedQuestID string                `json:"assigned_quest_id,omitempty"`
	CloseRange      bool                  `json:"close_range"`
	CanAnswer       bool                  `json:"can_answer"`
	Error           string                `json:"error,omitempty"`
	At              time.Time             `json:"at"`
}

type leaderboardMessage struct {
	Type  string                 `json:"type"`
	Teams []leaderboard.Standing `json:"teams,omitempty"`
	Error string                 `json:"error,omitempty"`
}

// handleProximityWS reads {"lat","lng"} frames from the client and
// streams the nearby quest set back. The optional team_id query parameter
// (or the caller's own team) enables close-range reporting and records
// each position as the team's last location.
func (a *api) handleProximityWS(w http.ResponseWriter, r *http.Request) {
	radius, err := a.radius(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	teamID := r.URL.Query().Get("team_id")
	if id, _ := auth.FromContext(r.Context()); teamID == "" && !id.IsAdmin() {
		teamID = id.Subject
	}
	if teamID != "" {
		if err := auth.RequireTeam(r.Context(), teamID); err != nil {
			writeServiceError(w, err)
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	locations := make(chan geo.Point)
	go a.readLocations(ctx, cancel, conn, teamID, locations)

	watch, err := a.svc.Proximity.Watch(ctx, locations, radius)
	if err != nil {
		a.writeClose(conn, websocket.CloseInternalServerErr, err.Error())
		return
	}
	defer watch.Stop()

	a.logger.Info("proximity stream opened", "team_id", teamID, "radius", radius)
	defer a.logger.Info("proximity stream closed", "team_id", teamID)

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-ping.C:
			if err := writeControl(conn, websocket.PingMessage); err != nil {
				return
			}
		case snap, ok := <-watch.Updates():
			if !ok {
				a.writeClose(conn, websocket.CloseNormalClosure, "")
				return
			}
			msg := a.proximityMessage(ctx, teamID, snap)
			if err := writeMessage(conn, msg); err != nil {
				a.logger.Debug("proximity write failed", "error", err)
				return
			}
			if snap.Err != nil {
				a.writeClose(conn, websocket.CloseInternalServerErr, "proximity watch failed")
				return
			}
		}
	}
}

// readLocations forwards client positions to the watch. It closes
// locations when the client goes away, which ends the watch.
func (a *api) readLocations(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, teamID string, locations chan<- geo.Point) {
	defer close(locations)
	defer cancel()

	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var req locationRequest
		if err := conn.ReadJSON(&req); err != nil {
			a.logger.Debug("proximity read ended", "error", err)
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		p := geo.Point{Lat: req.Lat, Lng: req.Lng}
		if err := p.Validate(); err != nil {
			a.logger.Debug("ignoring invalid location", "team_id", teamID, "error", err)
			continue
		}
		if teamID != "" {
			if _, err := a.svc.Teams.UpdateLocation(ctx, teamID, p); err != nil {
				a.logger.Warn("recording team location failed", "team_id", teamID, "error", err)
			}
		}

		select {
		case locations <- p:
		case <-ctx.Done():
			return
		}
	}
}

func (a *api) proximityMessage(ctx context.Context, teamID string, snap proximity.Snapshot) proximityMessage {
	msg := proximityMessage{Type: "snapshot", Candidates: snap.Candidates, At: snap.At}
	if msg.Candidates == nil {
		msg.Candidates = []proximity.Candidate{}
	}
	if snap.Err != nil {
		msg.Type = "error"
		msg.Error = snap.Err.Error()
		return msg
	}
	if teamID == "" {
		return msg
	}

	t, err := a.svc.Teams.Get(ctx, teamID)
	if err != nil || t.CurrentAssignment == nil {
		return msg
	}
	msg.AssignedQuestID = t.CurrentAssignment.QuestID
	if c, ok := snap.Find(msg.AssignedQuestID); ok {
		msg.CloseRange = true
		msg.CanAnswer = proximity.InTriggerRange(c, a.opts.TriggerMeters)
	}
	return msg
}

// handleLeaderboardWS streams the top n teams after every score change.
func (a *api) handleLeaderboardWS(w http.ResponseWriter, r *http.Request) {
	n, err := intQuery(r, "n", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go discardReads(cancel, conn)

	feed, err := a.svc.Leaderboard.Subscribe(ctx, n)
	if err != nil {
		a.writeClose(conn, websocket.CloseInternalServerErr, err.Error())
		return
	}
	defer feed.Stop()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-ping.C:
			if err := writeControl(conn, websocket.PingMessage); err != nil {
				return
			}
		case err := <-feed.Err():
			a.leaderboardFailed(conn, err)
			return
		case standings, ok := <-feed.Updates():
			if !ok {
				select {
				case err := <-feed.Err():
					a.leaderboardFailed(conn, err)
				default:
					a.writeClose(conn, websocket.CloseNormalClosure, "")
				}
				return
			}
			if err := writeMessage(conn, leaderboardMessage{Type: "standings", Teams: standings}); err != nil {
				a.logger.Debug("leaderboard write failed", "error", err)
				return
			}
		}
	}
}

func (a *api) leaderboardFailed(conn *websocket.Conn, err error) {
	_ = writeMessage(conn, leaderboardMessage{Type: "error", Error: err.Error()})
	a.writeClose(conn, websocket.CloseInternalServerErr, "leaderboard feed failed")
}

// discardReads handles control frames and notices when the client leaves.
func discardReads(cancel context.CancelFunc, conn *websocket.Conn) {
	defer cancel()
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

func writeMessage(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

func writeControl(conn *websocket.Conn, messageType int) error {
	return conn.WriteControl(messageType, nil, time.Now().Add(writeWait))
}

func (a *api) writeClose(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		a.logger.Debug("websocket close failed", "error", err)
	}
}
