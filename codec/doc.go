// Package codec implements the payload encoding for the sensor datagram
// protocol: the Information tagged union carried inside transport-mode
// messages, and the length-prefixed EncodedCommand blob that forms the body
// of every datagram.
//
// The codec is pure and deterministic; it performs no I/O. Both endpoints
// agree on the schema:
//
//	Information  = [1 byte tag][4 bytes IEEE-754 float32, big-endian]
//	EncodedCommand body = [2 bytes length, big-endian][length bytes payload]
//
// Payloads are bounded by limits.MaxCommandSize so a framed command always
// fits in a single UDP datagram.
package codec
