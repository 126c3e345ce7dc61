package wire

import (
	"bytes"
	"errors"
	"testing"

	"github.com/opd-ai/sensornet/codec"
	"github.com/opd-ai/sensornet/limits"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	header := NewHeader(MessageEncrypted, 99, 3, 2, 0)
	payload := bytes.Repeat([]byte{0xAB}, 64)

	datagram, err := NewCommandDatagram(header, payload)
	if err != nil {
		t.Fatalf("NewCommandDatagram() error = %v", err)
	}
	if len(datagram) != HeaderSize+codec.LengthPrefixSize+len(payload) {
		t.Fatalf("datagram size = %d", len(datagram))
	}

	parsedHeader, body, err := ParseRequest(datagram)
	if err != nil {
		t.Fatalf("ParseRequest() error = %v", err)
	}
	if parsedHeader != header {
		t.Errorf("header = %+v, want %+v", parsedHeader, header)
	}

	parsedPayload, err := codec.ParseCommand(body)
	if err != nil {
		t.Fatalf("ParseCommand() error = %v", err)
	}
	if !bytes.Equal(parsedPayload, payload) {
		t.Errorf("payload mismatch")
	}
}

func TestEnvelopeMaxPayload(t *testing.T) {
	header := NewHeader(MessageEncrypted, 99, 3, 2, 0)
	payload := bytes.Repeat([]byte{1}, limits.MaxCommandSize)

	datagram, err := NewCommandDatagram(header, payload)
	if err != nil {
		t.Fatalf("NewCommandDatagram() at cap error = %v", err)
	}
	if len(datagram) > limits.MaxPacketSize {
		t.Errorf("datagram %d exceeds MaxPacketSize", len(datagram))
	}

	if _, err := NewCommandDatagram(header, bytes.Repeat([]byte{1}, limits.MaxCommandSize+1)); !errors.Is(err, ErrTooBig) {
		t.Errorf("oversized payload error = %v, want ErrTooBig", err)
	}
}

func TestWriteCommandShortBuffer(t *testing.T) {
	header := NewHeader(MessageAck, 1, 1, 1, 1)
	cmd, err := codec.NewEncodedCommand([]byte{1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := WriteCommand(header, cmd, make([]byte, HeaderSize)); !errors.Is(err, ErrNotEnough) {
		t.Errorf("WriteCommand() error = %v, want ErrNotEnough", err)
	}
}

func TestParseRequestRejectsGarbage(t *testing.T) {
	if _, _, err := ParseRequest([]byte{0x00, 0x01, 0x02}); !errors.Is(err, ErrNotEnough) {
		t.Errorf("ParseRequest() error = %v, want ErrNotEnough", err)
	}
}
