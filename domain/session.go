// Package domain contains core concepts of the chat system.
// This file defines Session bindings and name normalization rules.
package domain

import "strings"

// Session binds one live connection to one (username, room) pair.
// The normalized pair must be unique among active sessions.
type Session struct {
	ConnectionID string
	Username     string
	Room         string
}

// Normalize trims and lower-cases a username or room name.
// All uniqueness checks and storage keys operate on normalized names.
func Normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
