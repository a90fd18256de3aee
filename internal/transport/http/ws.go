package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nadzzz/podcastd/internal/podcast"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

type statusFrame struct {
	Tasks []podcast.Snapshot `json:"tasks"`
}

// handleStatusStream pushes the caller's job list over a WebSocket, once on
// connect and again after every transition of one of the caller's jobs.
//
// @Summary  Stream the caller's job status
// @Tags     jobs
// @Param    X-Auth-Id  header  string  false  "Client identifier"
// @Param    auth_id    query   string  false  "Client identifier for browsers that cannot set headers"
// @Success  101  {object}  statusFrame
// @Failure  400  {object}  errorResponse
// @Failure  401  {object}  errorResponse
// @Router   /ws/podcast-status [get]
func (t *Transport) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	clientID := r.Header.Get(authHeader)
	if clientID == "" {
		clientID = r.URL.Query().Get("auth_id")
	}
	if clientID == "" {
		writeError(w, http.StatusBadRequest, "Missing X-Auth-Id header.")
		return
	}

	events, unsubscribe := t.jobs.Subscribe(clientID)
	defer unsubscribe()

	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "client_id", clientID, "error", err)
		return
	}
	defer conn.Close()

	// The read side only exists to observe pongs and the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func() error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(statusFrame{Tasks: nonNil(t.jobs.Status(clientID))})
	}
	if err := send(); err != nil {
		return
	}

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(wsWriteWait))
			return
		case <-gone:
			return
		case _, ok := <-events:
			if !ok {
				return
			}
			if err := send(); err != nil {
				slog.Debug("websocket write failed", "client_id", clientID, "error", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

func nonNil(s []podcast.Snapshot) []podcast.Snapshot {
	if s == nil {
		return []podcast.Snapshot{}
	}
	return s
}
