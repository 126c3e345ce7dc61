package noise

import (
	"errors"
	"fmt"

	"github.com/flynn/noise"
)

// ErrDecryptFailed is returned when a ciphertext fails authentication.
var ErrDecryptFailed = errors.New("decryption failed")

// Transport is a stateless AEAD pair derived from a completed handshake.
//
// It operates on the raw ciphers beneath the Noise cipher states, so the
// nonce is an explicit argument to every operation and no hidden counter
// ever advances. The protocol derives the nonce from the message header
// ((session_id << 32) | sequence); encrypting or decrypting the same
// message twice therefore uses the same nonce for the same bytes, which is
// what makes verbatim retransmission of a cached response safe.
type Transport struct {
	send noise.Cipher
	recv noise.Cipher
}

// newTransport extracts the raw ciphers from the split cipher states.
func newTransport(send, recv *noise.CipherState) *Transport {
	return &Transport{send: send.Cipher(), recv: recv.Cipher()}
}

// Encrypt seals plaintext under the given nonce and returns the ciphertext
// with the authentication tag appended.
func (t *Transport) Encrypt(nonce uint64, plaintext []byte) []byte {
	return t.send.Encrypt(nil, nonce, nil, plaintext)
}

// Decrypt opens ciphertext under the given nonce. Authentication failure
// yields ErrDecryptFailed.
func (t *Transport) Decrypt(nonce uint64, ciphertext []byte) ([]byte, error) {
	pt, err := t.recv.Decrypt(nil, nonce, nil, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}
	return pt, nil
}
