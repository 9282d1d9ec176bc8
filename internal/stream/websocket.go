package stream

import (
	"sync"

	"github.com/gorilla/websocket"

	"github.com/autopoiesis-dev/agentcore/internal/log"
)

// wsOutgoing mirrors original_source's server/models.py WSOutgoing shape.
type wsOutgoing struct {
	Op   string         `json:"op"`
	Data map[string]any `json:"data"`
}

// WebSocket broadcasts every event as a JSON frame. One send failure marks
// the handle closed; all subsequent sends are no-ops, matching the
// fail-closed behaviour of a broken WebSocket broadcast.
type WebSocket struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

func NewWebSocket(conn *websocket.Conn) *WebSocket {
	return &WebSocket{conn: conn}
}

func (h *WebSocket) send(msg wsOutgoing) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	if err := h.conn.WriteJSON(msg); err != nil {
		log.For("stream").Error("websocket broadcast failed", "op", msg.Op, "error", err)
		h.closed = true
	}
}

func (h *WebSocket) Write(chunk string) {
	h.send(wsOutgoing{Op: "token", Data: map[string]any{"content": chunk}})
}

func (h *WebSocket) StartToolCall(id, name string, args any) {
	h.send(wsOutgoing{Op: "tool_call", Data: map[string]any{"tool_call_id": id, "name": name, "args": args}})
}

func (h *WebSocket) FinishToolCall(id, status, details string) {
	h.send(wsOutgoing{Op: "tool_result", Data: map[string]any{"tool_call_id": id, "status": status, "details": details}})
}

func (h *WebSocket) StartThinking() {
	h.send(wsOutgoing{Op: "thinking_start", Data: map[string]any{}})
}

func (h *WebSocket) UpdateThinking(chunk string) {
	h.send(wsOutgoing{Op: "thinking", Data: map[string]any{"content": chunk}})
}

func (h *WebSocket) FinishThinking() {
	h.send(wsOutgoing{Op: "thinking_done", Data: map[string]any{}})
}

func (h *WebSocket) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	if err := h.conn.WriteJSON(wsOutgoing{Op: "done", Data: map[string]any{}}); err != nil {
		log.For("stream").Error("websocket close frame failed", "error", err)
	}
	h.closed = true
}

var _ Handle = (*WebSocket)(nil)
