// Package domain contains core concepts of the chat system.
// This file defines Message events and the encrypted envelope shape.
// Messages are immutable once created.
package domain

import (
	"fmt"
	"time"
)

// Envelope is an encrypted payload plus the nonce needed to open it.
// It is produced either by symmetric room-key encryption of a message
// body, or by an asymmetric box wrapping a room key for one recipient.
// Both fields are base64 encoded.
type Envelope struct {
	Ciphertext string `json:"encrypted"`
	Nonce      string `json:"nonce"`
}

// Message is the tagged union persisted per room and fanned out to
// members: a text message carries either a plaintext body or an
// envelope, a location message carries a maps URL. CreatedAt is a
// sender-assigned timestamp in epoch milliseconds.
type Message struct {
	Username    string    `json:"username"`
	Text        string    `json:"text,omitempty"`
	Envelope    *Envelope `json:"envelope,omitempty"`
	URL         string    `json:"url,omitempty"`
	IsEncrypted bool      `json:"isEncrypted"`
	CreatedAt   int64     `json:"createdAt"`
}

// IsLocation reports whether the message is the location variant.
func (m Message) IsLocation() bool {
	return m.URL != ""
}

// NewTextMessage builds a plaintext text message stamped with the given time.
func NewTextMessage(username, body string, at time.Time) Message {
	return Message{
		Username:  username,
		Text:      body,
		CreatedAt: at.UnixMilli(),
	}
}

// NewEncryptedMessage builds a text message whose body is an opaque
// envelope. The relay never opens it.
func NewEncryptedMessage(username string, envelope Envelope, at time.Time) Message {
	return Message{
		Username:    username,
		Envelope:    &envelope,
		IsEncrypted: true,
		CreatedAt:   at.UnixMilli(),
	}
}

// NewLocationMessage builds a location message pointing at a maps URL.
func NewLocationMessage(username string, latitude, longitude float64, at time.Time) Message {
	return Message{
		Username:  username,
		URL:       fmt.Sprintf("https://google.com/maps?q=%v,%v", latitude, longitude),
		CreatedAt: at.UnixMilli(),
	}
}
