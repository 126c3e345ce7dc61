package wire

import "errors"

var (
	// ErrUnknownProtocol indicates the protocol magic does not match.
	ErrUnknownProtocol = errors.New("unknown protocol")
	// ErrUnsupportedVersion indicates a protocol version other than the supported one.
	ErrUnsupportedVersion = errors.New("unsupported protocol version")
	// ErrUnknownMessageType indicates a message type outside the enumeration.
	ErrUnknownMessageType = errors.New("unsupported message type")
	// ErrNotEnough indicates the buffer is too small for the header or body.
	ErrNotEnough = errors.New("message is too small")
	// ErrTooBig indicates the framed datagram would exceed the packet cap.
	ErrTooBig = errors.New("message is too big")
)
