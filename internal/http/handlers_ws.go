package http

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"cashflow/internal/core"
	applog "cashflow/internal/log"
	"cashflow/internal/tracker"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

// liveMessage tells the page its data changed. The page then reloads the
// dashboard and form partials.
type liveMessage struct {
	Type     string `json:"type"`
	SignedIn bool   `json:"signed_in"`
	Count    int    `json:"count"`
	Balance  string `json:"balance"`
	Editing  string `json:"editing,omitempty"`
}

func newLiveMessage(v tracker.View) liveMessage {
	m := liveMessage{
		Type:     "transactions",
		SignedIn: v.SignedIn,
		Count:    v.Total,
		Balance:  core.FormatMoney(v.Summary.Balance),
	}
	if v.Editing != nil {
		m.Editing = v.Editing.ID
	}
	return m
}

// handleWebsocket pushes a liveMessage on connect and after every change
// of the session's tracker.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessions.Lookup(r)
	if !ok {
		http.Error(w, "no session", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the client.
		requestLogger(r, applog.ComponentHTTP).WarnContext(r.Context(), "Websocket upgrade failed", applog.FieldError, err)
		return
	}
	defer conn.Close()

	log := requestLogger(r, applog.ComponentLive)
	log.DebugContext(r.Context(), "Websocket connected")

	changes, stop := sess.Tracker.Watch()
	defer stop()

	// The page never sends data; reading only processes pongs and close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
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

	push := func() error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(newLiveMessage(sess.Tracker.View()))
	}
	if err := push(); err != nil {
		return
	}

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			log.DebugContext(r.Context(), "Websocket disconnected")
			return
		case _, ok := <-changes:
			if !ok {
				// Session ended.
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"),
					time.Now().Add(wsWriteWait))
				return
			}
			if err := push(); err != nil {
				log.DebugContext(r.Context(), "Websocket write failed", applog.FieldError, err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}
