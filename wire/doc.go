// Package wire defines the on-wire datagram format of the sensor protocol:
// the fixed 14-byte packed header, the message type enumeration, the AEAD
// nonce derivation, and the framing that combines a header with a
// length-prefixed encoded command into a single UDP datagram.
//
// All multi-byte integers are big-endian. A datagram looks like:
//
//	[ PackedHeader 14B ][ u16 body_len ][ body_len bytes of payload ]
//
// The header carries the protocol magic (0xDEFA), the protocol version, the
// message type, the device and session identifiers, and the per-sender
// sequence / ack counters that drive duplicate suppression and the AEAD
// nonce discipline.
package wire
