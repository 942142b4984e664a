package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"asq-order-service/internal/domain"
	"asq-order-service/internal/plugin"
	"github.com/gorilla/websocket"
)

const restoreTimeout = 5 * time.Second

type WSHandler struct {
	hub      *Hub
	hooks    *plugin.Registry
	upgrader websocket.Upgrader
}

func NewWSHandler(hub *Hub, hooks *plugin.Registry) *WSHandler {
	return &WSHandler{
		hub:   hub,
		hooks: hooks,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type connectedPayload struct {
	SocketID string `json:"socketId"`
	Role     string `json:"role"`
}

type submittedPayload struct {
	QuestionUID string `json:"questionUid"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades presenter and viewer connections, replays their state through
// the connect hooks and accepts submissions from viewers.
//
//	/ws?session=S&presentation=P&role=ctrl
//	/ws?session=S&presentation=P&role=viewer&participant=U
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sessionID := q.Get("session")
	presentationID := q.Get("presentation")
	participant := q.Get("participant")
	role := q.Get("role")
	if role == "" {
		role = domain.RoleViewer
	}
	if sessionID == "" || presentationID == "" {
		http.Error(w, "missing session or presentation", http.StatusBadRequest)
		return
	}
	if role != domain.RolePresenter && role != domain.RoleViewer {
		http.Error(w, "role must be ctrl or viewer", http.StatusBadRequest)
		return
	}
	if role == domain.RoleViewer && participant == "" {
		http.Error(w, "missing participant", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	client := h.hub.Register(ctx, sessionID, role, participant)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range client.Messages() {
			if err := conn.WriteJSON(msg); err != nil {
				slog.Warn("ws write error", "socket", client.ID, "err", err)
				return
			}
		}
	}()
	defer func() {
		h.hub.Unregister(ctx, client)
		<-writerDone
	}()

	_ = h.hub.EmitToSocket(client.ID, "connected", connectedPayload{SocketID: client.ID, Role: role})

	info := domain.ConnectInfo{
		SocketID:       client.ID,
		SessionID:      sessionID,
		PresentationID: presentationID,
		WhitelistID:    participant,
	}
	if role == domain.RolePresenter {
		_, err = h.hooks.RunConnectPresenter(ctx, info)
	} else {
		_, err = h.hooks.RunConnectViewer(ctx, info)
	}
	if err != nil {
		slog.Error("restore failed", "session", sessionID, "role", role, "err", err)
		_ = h.hub.EmitToSocket(client.ID, "error", errorPayload{Message: "could not restore session state"})
		h.hub.Ready(client)
	} else {
		// The restore may travel through the event bus; stop holding pushes if it is lost.
		fallback := time.AfterFunc(restoreTimeout, func() { h.hub.Ready(client) })
		defer fallback.Stop()
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "submit":
			if role != domain.RoleViewer {
				_ = h.hub.EmitToSocket(client.ID, "error", errorPayload{Message: "only viewers submit answers"})
				continue
			}
			var req domain.AnswerRequest
			if err := json.Unmarshal(inbound.Payload, &req); err != nil {
				_ = h.hub.EmitToSocket(client.ID, "error", errorPayload{Message: "invalid submit payload"})
				continue
			}
			// The connection identity decides who is answering.
			req.Answeree = participant
			req.Session = sessionID
			out, err := h.hooks.RunIngest(ctx, req)
			if err == nil && out.HandledBy == "" {
				err = domain.ErrUnhandledAnswer
			}
			if err != nil {
				_ = h.hub.EmitToSocket(client.ID, "error", errorPayload{Message: err.Error()})
				continue
			}
			_ = h.hub.EmitToSocket(client.ID, "submitted", submittedPayload{QuestionUID: req.QuestionUID})
		default:
			_ = h.hub.EmitToSocket(client.ID, "error", errorPayload{Message: "unsupported message type"})
		}
	}
}
