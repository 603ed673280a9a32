// Package errors declares the sentinel errors shared across chat-relay.
package errors

import "errors"

var (
	// Join refusals, surfaced verbatim to the caller.
	ErrMissingFields = errors.New("username and room are required")
	ErrUsernameTaken = errors.New("username already taken")

	// Operating on a connection whose session is gone. Benign: a disconnect
	// may race with an in-flight send.
	ErrSessionNotFound = errors.New("user not found")

	// Content filter hit. Nothing is persisted or broadcast.
	ErrContentRejected = errors.New("profanity is not allowed")

	// Failed authenticated open of a secretbox or box envelope.
	ErrDecryptFailed = errors.New("decryption failed")

	// No room key has been adopted yet for the target room.
	ErrNoRoomKey = errors.New("no encryption key found for room")

	ErrWorkerPanic = errors.New("worker panic")
)
