package main

import (
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"github.com/Seednode/mindbox/internal/game"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Commands coming from clients, dispatched by Type:
// "chat", "vote", "call_meeting", "start_game", "heartbeat"
type clientCommand struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"` // chat
	Target  string `json:"target,omitempty"`  // vote
	Skip    bool   `json:"skip,omitempty"`    // vote: explicit abstain
}

type client struct {
	conn          *websocket.Conn
	session       *game.Session
	sub           *game.Subscription
	participantID string
}

// serveSessionWS upgrades the connection and wires it to a session
// subscription: history replay plus live events flow out, commands flow in.
// A failed subscribe is rejected before the upgrade so the client gets a
// real HTTP status instead of a dead socket.
func serveSessionWS(cfg *Config, reg *game.Registry) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		s, err := reg.Session(ps.ByName("sessionid"))
		if err != nil {
			writeError(cfg, w, err)
			return
		}

		participantID := r.URL.Query().Get("participant")
		if participantID == "" {
			http.Error(w, "missing participant id", http.StatusBadRequest)
			return
		}

		// resume_after lets a reconnecting client skip messages it has
		// already acknowledged; absent or zero replays full history.
		resumeAfter, _ := strconv.ParseUint(r.URL.Query().Get("resume_after"), 10, 64)

		sub, err := s.Subscribe(participantID, resumeAfter)
		if err != nil {
			writeError(cfg, w, err)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			sub.Close()
			logf(cfg, "WS: upgrade error: %v", err)
			return
		}

		logf(cfg, "WS: Participant %s subscribed to %s (resume_after=%d) from %s",
			participantID, s.ID, resumeAfter, realIP(r))

		c := &client{
			conn:          conn,
			session:       s,
			sub:           sub,
			participantID: participantID,
		}

		go c.writePump()
		c.readPump()
	}
}

func (c *client) readPump() {
	defer func() {
		c.sub.Close()
		_ = c.conn.Close()
	}()

	for {
		var cmd clientCommand
		if err := c.conn.ReadJSON(&cmd); err != nil {
			return
		}

		var err error

		switch cmd.Type {
		case "chat":
			_, err = c.session.Append(c.participantID, cmd.Content)
		case "vote":
			target := cmd.Target
			if cmd.Skip {
				target = ""
			}
			err = c.session.CastVote(c.participantID, target)
		case "call_meeting":
			_, _, err = c.session.CallMeeting(c.participantID)
		case "start_game":
			_, err = c.session.Start(c.participantID)
		case "heartbeat":
			err = c.session.Heartbeat(c.participantID)
		default:
			// ignore unknown types
			continue
		}

		if err != nil {
			c.sub.Notify(game.CommandRejected{
				Type:    "error",
				Op:      cmd.Type,
				Message: err.Error(),
			})
		}
	}
}

func (c *client) writePump() {
	defer c.conn.Close()

	for ev := range c.sub.Events() {
		if err := c.conn.WriteJSON(ev); err != nil {
			return
		}
	}
}
