package noise

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/flynn/noise"
)

// PatternName identifies the full Noise protocol name used for sessions.
const PatternName = "Noise_NN_25519_ChaChaPoly_BLAKE2s"

// cipherSuite is the cipher suite behind PatternName. Cached at package
// level since it is immutable and reusable.
var cipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashBLAKE2s)

var (
	// ErrHandshakeNotComplete indicates the handshake is still in progress.
	ErrHandshakeNotComplete = errors.New("handshake not complete")
	// ErrHandshakeComplete indicates the handshake already finished.
	ErrHandshakeComplete = errors.New("handshake already complete")
)

// HandshakeRole defines whether we initiate or respond to a handshake.
type HandshakeRole uint8

const (
	// Initiator starts the handshake (the device side).
	Initiator HandshakeRole = iota
	// Responder answers the handshake (the server side).
	Responder
)

// NNHandshake drives the two-message NN exchange for one session.
type NNHandshake struct {
	role     HandshakeRole
	state    *noise.HandshakeState
	sendCS   *noise.CipherState
	recvCS   *noise.CipherState
	complete bool
}

// NewNNHandshake creates a handshake state for the given role.
func NewNNHandshake(role HandshakeRole) (*NNHandshake, error) {
	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite: cipherSuite,
		Random:      rand.Reader,
		Pattern:     noise.HandshakeNN,
		Initiator:   role == Initiator,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create handshake state: %w", err)
	}

	return &NNHandshake{role: role, state: hs}, nil
}

// Role returns the handshake role this state was created with.
func (h *NNHandshake) Role() HandshakeRole {
	return h.role
}

// WriteMessage produces the next handshake message to send to the peer.
// The initiator writes message 1; the responder writes message 2, which
// completes the exchange on its side.
func (h *NNHandshake) WriteMessage() ([]byte, error) {
	if h.complete {
		return nil, ErrHandshakeComplete
	}

	msg, cs1, cs2, err := h.state.WriteMessage(nil, nil)
	if err != nil {
		return nil, fmt.Errorf("handshake write failed: %w", err)
	}
	h.finish(cs1, cs2)
	return msg, nil
}

// ReadMessage processes a handshake message received from the peer.
// The responder reads message 1; the initiator reads message 2, which
// completes the exchange on its side.
func (h *NNHandshake) ReadMessage(msg []byte) error {
	if h.complete {
		return ErrHandshakeComplete
	}

	_, cs1, cs2, err := h.state.ReadMessage(nil, msg)
	if err != nil {
		return fmt.Errorf("handshake read failed: %w", err)
	}
	h.finish(cs1, cs2)
	return nil
}

// finish records the split cipher states once the final pattern message has
// been processed. flynn/noise returns them in absolute order: cs1 protects
// initiator-to-responder traffic, cs2 the reverse.
func (h *NNHandshake) finish(cs1, cs2 *noise.CipherState) {
	if cs1 == nil || cs2 == nil {
		return
	}
	if h.role == Initiator {
		h.sendCS, h.recvCS = cs1, cs2
	} else {
		h.sendCS, h.recvCS = cs2, cs1
	}
	h.complete = true
}

// IsComplete returns true once both cipher states are established.
func (h *NNHandshake) IsComplete() bool {
	return h.complete
}

// Transport returns the stateless AEAD transport keyed by the completed
// handshake. Fails with ErrHandshakeNotComplete before the final message.
func (h *NNHandshake) Transport() (*Transport, error) {
	if !h.complete {
		return nil, ErrHandshakeNotComplete
	}
	return newTransport(h.sendCS, h.recvCS), nil
}
