// Package client implements the chat participant side of the relay
// protocol: it joins a room over websocket, performs the key-exchange
// handshake, encrypts outgoing text under the room key and decrypts
// incoming bodies, degrading to a placeholder when an envelope cannot
// be opened.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"chat-relay/crypto"
	"chat-relay/domain"
	"chat-relay/protocol"
)

// DecryptPlaceholder is rendered for bodies whose envelope cannot be
// opened. Missing one key never hides the rest of the conversation.
const DecryptPlaceholder = "[Encrypted - Unable to decrypt]"

// Message is one rendered chat line.
type Message struct {
	Username  string
	Body      string
	URL       string
	CreatedAt time.Time
}

// Client is one connection to the relay. Incoming messages and roster
// updates are exposed on channels; sends are awaitable calls resolved
// by the server's ack.
type Client struct {
	ws       *websocket.Conn
	engine   *crypto.Engine
	username string
	room     string
	log      *slog.Logger

	Messages chan Message
	Roster   chan protocol.RoomData

	writeMu sync.Mutex
	ackID   atomic.Uint64
	mu      sync.Mutex
	pending map[uint64]chan string

	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects, joins the room and returns once the server has
// acknowledged the join. Encryption readiness arrives asynchronously;
// use WaitReady before the first encrypted send.
func Dial(ctx context.Context, url, username, room string, log *slog.Logger) (*Client, error) {
	engine, err := crypto.NewEngine()
	if err != nil {
		return nil, err
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}

	c := &Client{
		ws:       ws,
		engine:   engine,
		username: username,
		room:     domain.Normalize(room),
		log:      log,
		Messages: make(chan Message, 64),
		Roster:   make(chan protocol.RoomData, 8),
		pending:  make(map[uint64]chan string),
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
	}
	go c.readLoop()

	join := protocol.JoinRequest{Username: username, Room: room, PublicKey: engine.PublicKey()}
	if err := c.call(ctx, protocol.EventJoin, join); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// WaitReady blocks until the room key is established for this client,
// either generated as originator or adopted from another member.
func (c *Client) WaitReady(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	case <-c.done:
		return errors.New("connection closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendText encrypts the body under the room key and awaits the ack.
func (c *Client) SendText(ctx context.Context, body string) error {
	envelope, err := c.engine.Encrypt(c.room, body)
	if err != nil {
		return err
	}
	return c.call(ctx, protocol.EventSendMessage, protocol.SendMessageRequest{Envelope: &envelope})
}

// SendLocation shares coordinates and awaits the ack.
func (c *Client) SendLocation(ctx context.Context, latitude, longitude float64) error {
	return c.call(ctx, protocol.EventSendLocation,
		protocol.SendLocationRequest{Latitude: latitude, Longitude: longitude})
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// call sends an acked frame and resolves it with the server's reply.
func (c *Client) call(ctx context.Context, event string, data any) error {
	frame, err := protocol.NewFrame(event, data)
	if err != nil {
		return err
	}
	frame.Ack = c.ackID.Add(1)

	reply := make(chan string, 1)
	c.mu.Lock()
	c.pending[frame.Ack] = reply
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, frame.Ack)
		c.mu.Unlock()
	}()

	if err := c.write(frame); err != nil {
		return err
	}

	select {
	case msg := <-reply:
		if msg != "" {
			return errors.New(msg)
		}
		return nil
	case <-c.done:
		return errors.New("connection closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) write(frame protocol.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(frame)
}

func (c *Client) readLoop() {
	defer c.Close()

	for {
		var frame protocol.Frame
		if err := c.ws.ReadJSON(&frame); err != nil {
			return
		}
		c.handleFrame(frame)
	}
}

func (c *Client) handleFrame(frame protocol.Frame) {
	switch frame.Event {
	case protocol.EventAck:
		c.mu.Lock()
		reply, ok := c.pending[frame.Ack]
		c.mu.Unlock()
		if ok {
			reply <- frame.Error
		}

	case protocol.EventPreviousMessages:
		var history []domain.Message
		if err := json.Unmarshal(frame.Data, &history); err != nil {
			c.log.Warn("bad history payload", "error", err)
			return
		}
		for _, m := range history {
			c.emit(c.render(m))
		}

	case protocol.EventMessage, protocol.EventLocationMessage:
		var m domain.Message
		if err := json.Unmarshal(frame.Data, &m); err != nil {
			c.log.Warn("bad message payload", "error", err)
			return
		}
		c.emit(c.render(m))

	case protocol.EventRoomData:
		var data protocol.RoomData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			return
		}
		select {
		case c.Roster <- data:
		default:
		}

	case protocol.EventUserPublicKey:
		var data protocol.UserPublicKey
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			return
		}
		c.engine.StorePeerKey(data.Username, data.PublicKey)

	case protocol.EventRequestRoomKey:
		c.answerKeyRequest(frame.Data)

	case protocol.EventRoomKey:
		c.adoptKey(frame.Data)

	case protocol.EventEncryptionReady:
		c.becomeOriginator(frame.Data)
	}
}

// answerKeyRequest wraps this client's copy of the room key for the
// requester. Every keyed member may answer; the requester keeps the
// first copy that opens.
func (c *Client) answerKeyRequest(raw json.RawMessage) {
	var req protocol.RequestRoomKey
	if err := json.Unmarshal(raw, &req); err != nil {
		return
	}
	c.engine.StorePeerKey(req.Username, req.PublicKey)

	envelope, err := c.engine.WrapFor(c.room, req.PublicKey)
	if err != nil {
		// Unkeyed members simply stay silent.
		c.log.Debug("cannot answer key request", "error", err)
		return
	}
	frame, err := protocol.NewFrame(protocol.EventProvideRoomKey,
		protocol.ProvideRoomKeyRequest{TargetUser: req.Username, EncryptedKey: envelope})
	if err != nil {
		return
	}
	if err := c.write(frame); err != nil {
		c.log.Debug("failed to provide room key", "error", err)
	}
}

// adoptKey installs a relayed room key. Duplicate or undecryptable
// copies are ignored; adoption is first-valid-wins.
func (c *Client) adoptKey(raw json.RawMessage) {
	var data protocol.RoomKey
	if err := json.Unmarshal(raw, &data); err != nil {
		return
	}
	adopted, err := c.engine.AdoptRoomKey(c.room, data.EncryptedKey, data.SenderPublicKey)
	if err != nil {
		c.log.Debug("room key rejected", "error", err)
		return
	}
	if adopted {
		c.signalReady()
	}
}

// becomeOriginator reacts to the sole-member signal: adopt the relayed
// key if the server sent one, otherwise generate the room's key.
func (c *Client) becomeOriginator(raw json.RawMessage) {
	var data protocol.EncryptionReady
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &data)
	}
	if data.RoomKey != "" {
		c.engine.SetRoomKey(c.room, data.RoomKey)
		c.signalReady()
		return
	}
	if _, ok := c.engine.RoomKey(c.room); !ok {
		key, err := crypto.GenerateRoomKey()
		if err != nil {
			c.log.Error("failed to generate room key", "error", err)
			return
		}
		c.engine.SetRoomKey(c.room, key)
	}
	c.signalReady()
}

func (c *Client) signalReady() {
	c.readyOnce.Do(func() {
		close(c.ready)
	})
}

// render resolves a wire message into a displayable line.
func (c *Client) render(m domain.Message) Message {
	out := Message{
		Username:  m.Username,
		URL:       m.URL,
		CreatedAt: time.UnixMilli(m.CreatedAt),
	}
	switch {
	case m.Envelope != nil:
		body, err := c.engine.Decrypt(c.room, *m.Envelope)
		if err != nil {
			body = DecryptPlaceholder
		}
		out.Body = body
	default:
		out.Body = m.Text
	}
	return out
}

func (c *Client) emit(m Message) {
	select {
	case c.Messages <- m:
	default:
		c.log.Warn("dropping message, consumer too slow")
	}
}
