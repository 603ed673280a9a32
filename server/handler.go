// Package server exposes the chat relay over websocket. Each client
// frame names an event and may carry an ack id; the server answers
// acked frames with the error string, or nothing on success, matching
// the callback semantics of the protocol.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"chat-relay/protocol"
	"chat-relay/runtime"
)

// Handler upgrades HTTP requests and runs the per-connection pumps.
type Handler struct {
	orchestrator *runtime.Orchestrator
	log          *slog.Logger
	upgrader     websocket.Upgrader
	validate     *validator.Validate
	sendBuffer   int
}

func NewHandler(orchestrator *runtime.Orchestrator, log *slog.Logger,
	readBuffer, writeBuffer, sendBuffer int) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		log:          log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  readBuffer,
			WriteBufferSize: writeBuffer,
		},
		validate:   validator.New(),
		sendBuffer: sendBuffer,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	conn := newConn(uuid.NewString(), ws, h.orchestrator, h.log, h.sendBuffer)
	h.log.Info("new websocket connection", "connection", conn.id, "remote", r.RemoteAddr)

	go conn.writePump()
	conn.readPump(h.handleFrame)
}

// handleFrame dispatches one client frame. Unknown events and
// malformed payloads are answered through the ack, never by dropping
// the connection.
func (h *Handler) handleFrame(conn *Conn, frame protocol.Frame) {
	ctx := context.Background()

	switch frame.Event {
	case protocol.EventJoin:
		var req protocol.JoinRequest
		if err := h.decode(frame.Data, &req); err != nil {
			conn.ack(frame.Ack, err)
			return
		}
		conn.ack(frame.Ack, h.orchestrator.Join(ctx, conn.id, req.Username, req.Room, req.PublicKey, conn))

	case protocol.EventSendMessage:
		var req protocol.SendMessageRequest
		if err := json.Unmarshal(frame.Data, &req); err != nil {
			conn.ack(frame.Ack, err)
			return
		}
		conn.ack(frame.Ack, h.orchestrator.SendText(ctx, conn.id, req))

	case protocol.EventSendLocation:
		var req protocol.SendLocationRequest
		if err := json.Unmarshal(frame.Data, &req); err != nil {
			conn.ack(frame.Ack, err)
			return
		}
		conn.ack(frame.Ack, h.orchestrator.SendLocation(ctx, conn.id, req.Latitude, req.Longitude))

	case protocol.EventProvideRoomKey:
		var req protocol.ProvideRoomKeyRequest
		if err := json.Unmarshal(frame.Data, &req); err != nil {
			return
		}
		if err := h.orchestrator.ProvideRoomKey(ctx, conn.id, req); err != nil {
			h.log.Debug("room key relay failed", "connection", conn.id, "error", err)
		}

	default:
		h.log.Debug("unknown event", "connection", conn.id, "event", frame.Event)
	}
}

// decode unmarshals and validates an acked request payload.
func (h *Handler) decode(raw json.RawMessage, req any) error {
	if err := json.Unmarshal(raw, req); err != nil {
		return err
	}
	return h.validate.Struct(req)
}
