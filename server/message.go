package server

import (
	"net"

	"github.com/opd-ai/sensornet/codec"
	"github.com/opd-ai/sensornet/wire"
)

// ChannelMessage is one parsed datagram forwarded from the multiplexer to a
// session worker. Body is the raw length-prefixed command body, copied out
// of the shared receive buffer.
type ChannelMessage struct {
	Addr   net.Addr
	Header wire.PackedHeader
	Body   []byte

	// Duplicate marks a message whose sequence did not advance past the
	// session's last observed request; the worker's retransmit path decides
	// what to do with it.
	Duplicate bool
}

// Response is one framed datagram queued for the supervisor's writer path.
type Response struct {
	Addr net.Addr
	Buf  []byte
}

// ReadingFunc receives every decrypted sensor reading the server accepts.
type ReadingFunc func(deviceID uint32, sessionID uint16, info codec.Information)
