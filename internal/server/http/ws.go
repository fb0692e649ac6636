package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"agentstation/internal/server/app"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// CORS is enforced at the HTTP layer; the socket accepts any origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 45 * time.Second
)

// clientMessage is the envelope for client-to-server frames.
type clientMessage struct {
	Type               string         `json:"type"`
	TaskID             string         `json:"task_id,omitempty"`
	UserID             string         `json:"user_id,omitempty"`
	UserInput          string         `json:"user_input,omitempty"`
	UserProvidedConfig map[string]any `json:"user_provided_config,omitempty"`
}

// handleWebSocket subscribes the socket to a conversation's event stream
// and accepts start_task / resume_task / ping control frames.
func (s *Server) handleWebSocket(c *gin.Context) {
	conversationID := c.Param("conversation_id")
	if _, err := s.repo.GetConversation(c.Request.Context(), conversationID); err != nil {
		s.respondStorageError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed for conversation %s: %v", conversationID, err)
		return
	}

	events := s.broadcaster.Subscribe(conversationID)
	defer s.broadcaster.Unsubscribe(conversationID, events)
	defer func() { _ = conn.Close() }()

	done := make(chan struct{})
	go s.writePump(conn, events, done)
	s.readPump(conn, conversationID, events)
	close(done)
}

// writePump pushes broadcast events and keepalive pings to the socket.
func (s *Server) writePump(conn *websocket.Conn, events chan app.StreamEvent, done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump handles control frames until the socket closes.
func (s *Server) readPump(conn *websocket.Conn, conversationID string, events chan app.StreamEvent) {
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read error on conversation %s: %v", conversationID, err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.logger.Warn("malformed websocket frame on conversation %s: %v", conversationID, err)
			continue
		}

		switch msg.Type {
		case "start_task":
			if msg.UserInput == "" {
				s.broadcaster.Emit(conversationID, app.StreamEvent{
					Type: app.EventTaskError,
					Data: map[string]any{"error": "start_task requires user_input"},
				})
				continue
			}
			if _, err := s.coordinator.StartTask(context.Background(), conversationID, msg.UserID, msg.UserInput); err != nil {
				s.logger.Error("start_task on conversation %s: %v", conversationID, err)
				s.broadcaster.Emit(conversationID, app.StreamEvent{
					Type: app.EventTaskError,
					Data: map[string]any{"error": err.Error()},
				})
			}

		case "resume_task":
			if msg.TaskID == "" {
				s.broadcaster.Emit(conversationID, app.StreamEvent{
					Type: app.EventTaskError,
					Data: map[string]any{"error": "resume_task requires task_id"},
				})
				continue
			}
			taskID := msg.TaskID
			cfg := msg.UserProvidedConfig
			go func() {
				if _, err := s.coordinator.ResumeTask(context.Background(), taskID, cfg); err != nil {
					s.logger.Error("resume_task %s: %v", taskID, err)
				}
			}()

		case "ping":
			select {
			case events <- app.StreamEvent{Type: app.EventPong}:
			default:
			}

		default:
			s.logger.Warn("unknown websocket message type %q on conversation %s", msg.Type, conversationID)
		}
	}
}
