package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"chat-relay/errors"
)

func TestNewFrame_CarriesTypedPayload(t *testing.T) {
	req := require.New(t)

	frame, err := NewFrame(EventRoomData, RoomData{
		Room:  "lobby",
		Users: []RoomUser{{Username: "alice"}},
	})
	req.NoError(err)
	req.Equal(EventRoomData, frame.Event)
	req.Zero(frame.Ack)
	req.Empty(frame.Error)

	var payload RoomData
	req.NoError(json.Unmarshal(frame.Data, &payload))
	req.Equal("lobby", payload.Room)
	req.Equal([]RoomUser{{Username: "alice"}}, payload.Users)
}

func TestAckFrame(t *testing.T) {
	req := require.New(t)

	// A success ack carries no error field on the wire
	ok := AckFrame(7, nil)
	encoded, err := json.Marshal(ok)
	req.NoError(err)
	req.JSONEq(`{"event":"ack","ack":7}`, string(encoded))

	// A failure ack carries the error string for the client callback
	failed := AckFrame(8, errors.ErrUsernameTaken)
	encoded, err = json.Marshal(failed)
	req.NoError(err)
	req.JSONEq(`{"event":"ack","ack":8,"error":"username already taken"}`, string(encoded))
}

func TestSendMessageRequest_EnvelopeAbsentWhenPlaintext(t *testing.T) {
	req := require.New(t)

	encoded, err := json.Marshal(SendMessageRequest{Text: "hello"})
	req.NoError(err)
	req.JSONEq(`{"text":"hello"}`, string(encoded))

	var decoded SendMessageRequest
	req.NoError(json.Unmarshal([]byte(`{"envelope":{"encrypted":"YWJj","nonce":"eHl6"}}`), &decoded))
	req.Empty(decoded.Text)
	req.NotNil(decoded.Envelope)
	req.Equal("YWJj", decoded.Envelope.Ciphertext)
}
