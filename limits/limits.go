// Package limits provides centralized message size limits for the sensor
// datagram protocol. This ensures consistent validation across different
// components of the system.
package limits

import "errors"

const (
	// MaxCommandSize is the protocol limit for an encoded command payload (1400 bytes).
	// This keeps a full datagram within a typical Ethernet MTU.
	MaxCommandSize = 1400

	// MaxPacketSize is the maximum size of a whole datagram (1500 bytes).
	// This includes the packed header, the length prefix and the payload.
	MaxPacketSize = 1500

	// AEADOverhead is the overhead added by ChaCha20-Poly1305 encryption:
	// the 16-byte Poly1305 authentication tag.
	AEADOverhead = 16
)

var (
	// ErrMessageEmpty indicates an empty message was provided
	ErrMessageEmpty = errors.New("empty message")

	// ErrMessageTooLarge indicates message exceeds maximum size
	ErrMessageTooLarge = errors.New("message too large")
)

// ValidateMessageSize validates a message against the specified maximum size.
func ValidateMessageSize(message []byte, maxSize int) error {
	if len(message) == 0 {
		return ErrMessageEmpty
	}
	if len(message) > maxSize {
		return ErrMessageTooLarge
	}
	return nil
}

// ValidateCommandPayload validates an encoded command payload size.
func ValidateCommandPayload(payload []byte) error {
	if len(payload) == 0 {
		return ErrMessageEmpty
	}
	if len(payload) > MaxCommandSize {
		return ErrMessageTooLarge
	}
	return nil
}

// ValidateDatagram validates a whole datagram against the packet cap.
// Zero-length datagrams are rejected; they cannot carry a header.
func ValidateDatagram(datagram []byte) error {
	if len(datagram) == 0 {
		return ErrMessageEmpty
	}
	if len(datagram) > MaxPacketSize {
		return ErrMessageTooLarge
	}
	return nil
}
