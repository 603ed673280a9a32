package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chat-relay/protocol"
	"chat-relay/runtime"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
	writeWait    = 10 * time.Second
)

var errSendBufferFull = errors.New("send buffer full")

// Conn is one websocket connection. It reads client frames on its own
// goroutine, dispatches them to the orchestrator, and implements the
// orchestrator's EventSink through a buffered send channel drained by
// the write pump, which gives the room protocol its per-connection
// ordered delivery.
type Conn struct {
	id           string
	ws           *websocket.Conn
	send         chan protocol.Frame
	orchestrator *runtime.Orchestrator
	log          *slog.Logger
	closeOnce    sync.Once
	done         chan struct{}
}

func newConn(id string, ws *websocket.Conn, orchestrator *runtime.Orchestrator,
	log *slog.Logger, sendBuffer int) *Conn {
	return &Conn{
		id:           id,
		ws:           ws,
		send:         make(chan protocol.Frame, sendBuffer),
		orchestrator: orchestrator,
		log:          log,
		done:         make(chan struct{}),
	}
}

// Deliver queues a server event for the write pump. It never blocks
// the orchestrator: a connection that cannot drain its buffer loses
// the event and the error feeds the caller's log.
func (c *Conn) Deliver(_ context.Context, event protocol.ServerEvent) error {
	frame, err := protocol.NewFrame(event.Event, event.Data)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", event.Event, err)
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return errors.New("connection closed")
	default:
		return errSendBufferFull
	}
}

func (c *Conn) ack(id uint64, err error) {
	if id == 0 {
		return
	}
	select {
	case c.send <- protocol.AckFrame(id, err):
	case <-c.done:
	default:
		c.log.Warn("dropping ack, send buffer full", "connection", c.id)
	}
}

func (c *Conn) readPump(handle func(*Conn, protocol.Frame)) {
	defer func() {
		c.orchestrator.Disconnect(context.Background(), c.id)
		c.close()
		_ = c.ws.Close()
	}()

	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame protocol.Frame
		if err := c.ws.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				c.log.Warn("unexpected websocket error", "connection", c.id, "error", err)
			}
			return
		}
		handle(c, frame)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage, nil)
			return
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(frame); err != nil {
				c.log.Debug("write failed", "connection", c.id, "error", err)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
