package wire

import (
	"github.com/opd-ai/sensornet/codec"
	"github.com/opd-ai/sensornet/limits"
)

// WriteCommand frames a header and an encoded command into out as a single
// datagram and returns the total number of bytes written.
//
// Fails with ErrTooBig when the framed datagram would exceed
// limits.MaxPacketSize and ErrNotEnough when out cannot hold it.
func WriteCommand(header PackedHeader, cmd codec.EncodedCommand, out []byte) (int, error) {
	total := HeaderSize + cmd.EncodedSize()
	if total > limits.MaxPacketSize {
		return 0, ErrTooBig
	}
	if len(out) < total {
		return 0, ErrNotEnough
	}

	if err := header.Serialize(out[:HeaderSize]); err != nil {
		return 0, err
	}
	if _, err := cmd.WriteTo(out[HeaderSize:total]); err != nil {
		return 0, err
	}
	return total, nil
}

// NewCommandDatagram is the allocation convenience over WriteCommand: it
// frames the header and payload into a freshly sized datagram.
func NewCommandDatagram(header PackedHeader, payload []byte) ([]byte, error) {
	cmd, err := codec.NewEncodedCommand(payload)
	if err != nil {
		return nil, ErrTooBig
	}

	out := make([]byte, HeaderSize+cmd.EncodedSize())
	n, err := WriteCommand(header, cmd, out)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

// ParseRequest splits a received datagram into its validated header and the
// raw body bytes following it. The body still carries the length prefix;
// use codec.ParseCommand to extract the payload view.
func ParseRequest(datagram []byte) (PackedHeader, []byte, error) {
	header, err := DeserializeHeader(datagram)
	if err != nil {
		return PackedHeader{}, nil, err
	}
	return header, datagram[HeaderSize:], nil
}
