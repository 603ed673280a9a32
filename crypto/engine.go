package crypto

import (
	"sync"

	"chat-relay/domain"
	"chat-relay/errors"
)

// Engine is the client-side holder of one connection's keypair, the
// public keys of known peers and the room keys it has adopted. Several
// members may race to answer one key request, so a key can arrive more
// than once; AdoptRoomKey keeps the first copy whose decryption
// succeeds and ignores the rest.
type Engine struct {
	mu       sync.Mutex
	keyPair  *KeyPair
	roomKeys map[string]string
	peerKeys map[string]string
}

func NewEngine() (*Engine, error) {
	keyPair, err := NewKeyPair()
	if err != nil {
		return nil, err
	}
	return &Engine{
		keyPair:  keyPair,
		roomKeys: make(map[string]string),
		peerKeys: make(map[string]string),
	}, nil
}

// PublicKey returns this connection's base64 public identity.
func (e *Engine) PublicKey() string {
	return e.keyPair.PublicKey()
}

// StorePeerKey records another member's public key.
func (e *Engine) StorePeerKey(username, publicKey string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.peerKeys[username] = publicKey
}

// RoomKey returns the adopted key for a room, if any.
func (e *Engine) RoomKey(room string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	key, ok := e.roomKeys[room]
	return key, ok
}

// SetRoomKey installs a key unconditionally. Used by the originator of
// an empty room, which generates the key itself.
func (e *Engine) SetRoomKey(room, key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.roomKeys[room] = key
}

// AdoptRoomKey opens a boxed room key from a sender and installs it if
// no key is held yet. Returns whether the key was adopted. A failed
// open is returned as ErrDecryptFailed; an already-keyed room ignores
// the envelope without error.
func (e *Engine) AdoptRoomKey(room string, envelope domain.Envelope, senderPublicKey string) (bool, error) {
	e.mu.Lock()
	_, keyed := e.roomKeys[room]
	e.mu.Unlock()
	if keyed {
		return false, nil
	}

	key, err := e.keyPair.UnwrapRoomKey(envelope, senderPublicKey)
	if err != nil {
		return false, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, keyed := e.roomKeys[room]; keyed {
		return false, nil
	}
	e.roomKeys[room] = key
	return true, nil
}

// Encrypt seals a message body under the room's adopted key.
func (e *Engine) Encrypt(room, body string) (domain.Envelope, error) {
	key, ok := e.RoomKey(room)
	if !ok {
		return domain.Envelope{}, errors.ErrNoRoomKey
	}
	return SealMessage(body, key)
}

// Decrypt opens a message body under the room's adopted key.
func (e *Engine) Decrypt(room string, envelope domain.Envelope) (string, error) {
	key, ok := e.RoomKey(room)
	if !ok {
		return "", errors.ErrNoRoomKey
	}
	return OpenMessage(envelope, key)
}

// WrapFor boxes the room's key for a requesting member's public key so
// it can be relayed through the server.
func (e *Engine) WrapFor(room, recipientPublicKey string) (domain.Envelope, error) {
	key, ok := e.RoomKey(room)
	if !ok {
		return domain.Envelope{}, errors.ErrNoRoomKey
	}
	return e.keyPair.WrapRoomKey(key, recipientPublicKey)
}
