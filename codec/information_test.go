package codec

import (
	"errors"
	"testing"
)

func TestInformationRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		info Information
	}{
		{"temperature", Temperature(25.0)},
		{"negative temperature", Temperature(-40.5)},
		{"air pressure", AirPressure(1013.25)},
		{"zero reading", Temperature(0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := EncodeInformation(tt.info)
			if err != nil {
				t.Fatalf("EncodeInformation() error = %v", err)
			}
			if len(buf) != InformationSize {
				t.Fatalf("encoded size = %d, want %d", len(buf), InformationSize)
			}

			decoded, err := DecodeInformation(buf)
			if err != nil {
				t.Fatalf("DecodeInformation() error = %v", err)
			}
			if decoded != tt.info {
				t.Errorf("round trip = %#v, want %#v", decoded, tt.info)
			}
		})
	}
}

func TestEncodeInformationDeterministic(t *testing.T) {
	first, err := EncodeInformation(AirPressure(993.7))
	if err != nil {
		t.Fatal(err)
	}
	second, err := EncodeInformation(AirPressure(993.7))
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != string(second) {
		t.Errorf("encoding is not deterministic: %x vs %x", first, second)
	}
}

func TestDecodeInformationErrors(t *testing.T) {
	tests := []struct {
		name    string
		buf     []byte
		wantErr error
	}{
		{"nil buffer", nil, ErrBufferEmpty},
		{"empty buffer", []byte{}, ErrBufferEmpty},
		{"truncated", []byte{0, 1, 2}, ErrNotEnough},
		{"unknown tag", []byte{0x7F, 0, 0, 0, 0}, ErrNotParsed},
		{"trailing garbage", []byte{0, 0, 0, 0, 0, 0xAA}, ErrNotParsed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeInformation(tt.buf)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("DecodeInformation() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
