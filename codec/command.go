package codec

import (
	"encoding/binary"

	"github.com/opd-ai/sensornet/limits"
)

// LengthPrefixSize is the size of the u16 length prefix in front of every
// command payload on the wire.
const LengthPrefixSize = 2

// EncodedCommand is an opaque, length-bounded byte blob carried as the body
// of a datagram. The payload may be a Noise handshake message, an AEAD
// ciphertext, or empty (acknowledgements).
type EncodedCommand struct {
	Payload []byte
}

// NewEncodedCommand wraps a payload, enforcing the command size cap.
// An empty payload is legal; it encodes to a bare zero length prefix.
func NewEncodedCommand(payload []byte) (EncodedCommand, error) {
	if len(payload) > limits.MaxCommandSize {
		return EncodedCommand{}, ErrTooBig
	}
	return EncodedCommand{Payload: payload}, nil
}

// EncodedSize returns the on-wire size of the command: length prefix plus payload.
func (c EncodedCommand) EncodedSize() int {
	return LengthPrefixSize + len(c.Payload)
}

// WriteTo serializes the command into buf as [u16 length BE][payload] and
// returns the number of bytes written. Fails with ErrTooBig when the payload
// exceeds the command cap and ErrNotEnough when buf is too small.
func (c EncodedCommand) WriteTo(buf []byte) (int, error) {
	if len(c.Payload) > limits.MaxCommandSize {
		return 0, ErrTooBig
	}
	total := c.EncodedSize()
	if len(buf) < total {
		return 0, ErrNotEnough
	}

	binary.BigEndian.PutUint16(buf[:LengthPrefixSize], uint16(len(c.Payload)))
	copy(buf[LengthPrefixSize:], c.Payload)
	return total, nil
}

// ParseCommand reads a length-prefixed command payload from buf and returns
// a view of the payload bytes. The view aliases buf; callers that retain it
// past the life of the receive buffer must copy.
func ParseCommand(buf []byte) ([]byte, error) {
	if len(buf) == 0 {
		return nil, ErrBufferEmpty
	}
	if len(buf) < LengthPrefixSize {
		return nil, ErrNotEnough
	}

	size := int(binary.BigEndian.Uint16(buf[:LengthPrefixSize]))
	if len(buf) < LengthPrefixSize+size {
		return nil, ErrNotEnough
	}
	return buf[LengthPrefixSize : LengthPrefixSize+size], nil
}
