// Package domain contains core concepts of the chat system.
// This file defines the persisted room record.
package domain

import "time"

// RoomRecord is the durable shape stored per room: the normalized name,
// the append-only message sequence and the last-modified timestamp used
// by the retention job. Live membership is never persisted.
type RoomRecord struct {
	RoomName  string    `json:"roomName"`
	Messages  []Message `json:"messages"`
	UpdatedAt time.Time `json:"updatedAt"`
}
