// Package crypto holds the NaCl primitives of the end-to-end layer:
// per-connection box keypairs, 32-byte room keys, secretbox message
// encryption and box-wrapped room-key transfer. Secret key material
// never leaves this package; callers only see public keys and
// envelopes. A failed authenticated open is reported as
// errors.ErrDecryptFailed and never panics.
package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/nacl/secretbox"

	"chat-relay/domain"
	"chat-relay/errors"
)

const (
	// KeySize is the length of a room key and of box public keys.
	KeySize = 32
	// NonceSize matches the NaCl nonce length.
	NonceSize = 24
)

// KeyPair is a connection's asymmetric identity. It lives exactly as
// long as the connection and is never persisted.
type KeyPair struct {
	public  *[KeySize]byte
	private *[KeySize]byte
}

// NewKeyPair generates a fresh box keypair.
func NewKeyPair() (*KeyPair, error) {
	public, private, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating keypair: %w", err)
	}
	return &KeyPair{public: public, private: private}, nil
}

// PublicKey returns the base64 encoded public half.
func (k *KeyPair) PublicKey() string {
	return base64.StdEncoding.EncodeToString(k.public[:])
}

// GenerateRoomKey returns a fresh base64 encoded symmetric room key.
func GenerateRoomKey() (string, error) {
	var key [KeySize]byte
	if _, err := io.ReadFull(rand.Reader, key[:]); err != nil {
		return "", fmt.Errorf("generating room key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key[:]), nil
}

// SealMessage encrypts a message body under a room key with a random
// per-message nonce.
func SealMessage(body, roomKey string) (domain.Envelope, error) {
	key, err := decodeKey(roomKey)
	if err != nil {
		return domain.Envelope{}, err
	}
	nonce, err := newNonce()
	if err != nil {
		return domain.Envelope{}, err
	}
	sealed := secretbox.Seal(nil, []byte(body), nonce, key)
	return domain.Envelope{
		Ciphertext: base64.StdEncoding.EncodeToString(sealed),
		Nonce:      base64.StdEncoding.EncodeToString(nonce[:]),
	}, nil
}

// OpenMessage decrypts an envelope under a room key. A wrong key fails
// deterministically with ErrDecryptFailed.
func OpenMessage(envelope domain.Envelope, roomKey string) (string, error) {
	key, err := decodeKey(roomKey)
	if err != nil {
		return "", err
	}
	ciphertext, nonce, err := decodeEnvelope(envelope)
	if err != nil {
		return "", err
	}
	opened, ok := secretbox.Open(nil, ciphertext, nonce, key)
	if !ok {
		return "", errors.ErrDecryptFailed
	}
	return string(opened), nil
}

// WrapRoomKey boxes a room key for one recipient. Only the recipient's
// private key together with the sender's public key can open it.
func (k *KeyPair) WrapRoomKey(roomKey, recipientPublicKey string) (domain.Envelope, error) {
	rawKey, err := base64.StdEncoding.DecodeString(roomKey)
	if err != nil {
		return domain.Envelope{}, fmt.Errorf("decoding room key: %w", err)
	}
	recipient, err := decodeKey(recipientPublicKey)
	if err != nil {
		return domain.Envelope{}, err
	}
	nonce, err := newNonce()
	if err != nil {
		return domain.Envelope{}, err
	}
	sealed := box.Seal(nil, rawKey, nonce, recipient, k.private)
	return domain.Envelope{
		Ciphertext: base64.StdEncoding.EncodeToString(sealed),
		Nonce:      base64.StdEncoding.EncodeToString(nonce[:]),
	}, nil
}

// UnwrapRoomKey opens a boxed room key from a sender and returns it
// base64 encoded. A mismatched sender key fails with ErrDecryptFailed.
func (k *KeyPair) UnwrapRoomKey(envelope domain.Envelope, senderPublicKey string) (string, error) {
	sender, err := decodeKey(senderPublicKey)
	if err != nil {
		return "", err
	}
	ciphertext, nonce, err := decodeEnvelope(envelope)
	if err != nil {
		return "", err
	}
	opened, ok := box.Open(nil, ciphertext, nonce, sender, k.private)
	if !ok {
		return "", errors.ErrDecryptFailed
	}
	return base64.StdEncoding.EncodeToString(opened), nil
}

func newNonce() (*[NonceSize]byte, error) {
	var nonce [NonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return &nonce, nil
}

func decodeKey(encoded string) (*[KeySize]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decoding key: %w", err)
	}
	if len(raw) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(raw))
	}
	var key [KeySize]byte
	copy(key[:], raw)
	return &key, nil
}

func decodeEnvelope(envelope domain.Envelope) ([]byte, *[NonceSize]byte, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(envelope.Ciphertext)
	if err != nil {
		return nil, nil, fmt.Errorf("decoding ciphertext: %w", err)
	}
	rawNonce, err := base64.StdEncoding.DecodeString(envelope.Nonce)
	if err != nil {
		return nil, nil, fmt.Errorf("decoding nonce: %w", err)
	}
	if len(rawNonce) != NonceSize {
		return nil, nil, fmt.Errorf("nonce must be %d bytes, got %d", NonceSize, len(rawNonce))
	}
	var nonce [NonceSize]byte
	copy(nonce[:], rawNonce)
	return ciphertext, &nonce, nil
}
