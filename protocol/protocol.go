// Package protocol defines the wire shapes exchanged between a chat
// client and the relay. Client-to-server frames carry an ack id; the
// server answers each one with an ack frame holding the error string,
// or nothing on success.
package protocol

import (
	"encoding/json"

	"chat-relay/domain"
)

// Client -> server events.
const (
	EventJoin           = "join"
	EventSendMessage    = "sendMessage"
	EventSendLocation   = "sendLocation"
	EventProvideRoomKey = "provideRoomKey"
)

// Server -> client events.
const (
	EventAck              = "ack"
	EventPreviousMessages = "previousMessages"
	EventMessage          = "message"
	EventLocationMessage  = "locationMessage"
	EventRoomData         = "roomData"
	EventUserPublicKey    = "userPublicKey"
	EventRequestRoomKey   = "requestRoomKey"
	EventRoomKey          = "roomKey"
	EventEncryptionReady  = "encryptionReady"
)

// Frame is the single JSON unit travelling over the connection.
// Data stays raw until the event name selects the payload type.
type Frame struct {
	Event string          `json:"event"`
	Ack   uint64          `json:"ack,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

// NewFrame marshals a typed payload into an outgoing frame.
func NewFrame(event string, data any) (Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Event: event, Data: raw}, nil
}

// AckFrame builds the callback reply for a client request.
func AckFrame(id uint64, err error) Frame {
	frame := Frame{Event: EventAck, Ack: id}
	if err != nil {
		frame.Error = err.Error()
	}
	return frame
}

// JoinRequest opens a session. PublicKey is the connection's asymmetric
// identity, relayed to other members during key exchange.
type JoinRequest struct {
	Username  string `json:"username" validate:"required"`
	Room      string `json:"room" validate:"required"`
	PublicKey string `json:"publicKey,omitempty"`
}

// SendMessageRequest carries either a plaintext body or an opaque
// envelope, never both.
type SendMessageRequest struct {
	Text     string           `json:"text,omitempty"`
	Envelope *domain.Envelope `json:"envelope,omitempty"`
}

type SendLocationRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ProvideRoomKeyRequest answers a key request: the room key wrapped in
// a box only the target user can open. Relayed verbatim.
type ProvideRoomKeyRequest struct {
	TargetUser   string          `json:"targetUser"`
	EncryptedKey domain.Envelope `json:"encryptedKey"`
}

type RoomUser struct {
	Username string `json:"username"`
}

// RoomData is broadcast to the whole room on every membership change.
type RoomData struct {
	Room  string     `json:"room"`
	Users []RoomUser `json:"users"`
}

type UserPublicKey struct {
	Username  string `json:"username"`
	PublicKey string `json:"publicKey"`
}

// RequestRoomKey is broadcast to existing members when a newcomer joins
// a non-empty room without the room key.
type RequestRoomKey struct {
	Username  string `json:"username"`
	PublicKey string `json:"publicKey"`
}

// RoomKey is the unicast relay of a provided key, tagged with the
// sender's public key so the target can open the box.
type RoomKey struct {
	EncryptedKey    domain.Envelope `json:"encryptedKey"`
	SenderPublicKey string          `json:"senderPublicKey"`
}

// EncryptionReady tells an originator it is the sole member and may use
// a locally generated key. RoomKey is only set when the server relays a
// key back to a reconnecting originator.
type EncryptionReady struct {
	RoomKey string `json:"roomKey,omitempty"`
}

// ServerEvent is the typed unit an EventSink delivers to one connection.
type ServerEvent struct {
	Event string
	Data  any
}
