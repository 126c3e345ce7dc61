package client

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/sensornet/codec"
	"github.com/opd-ai/sensornet/noise"
	"github.com/opd-ai/sensornet/wire"
)

var (
	// ErrIncorrectState indicates an operation not valid in the session's state.
	ErrIncorrectState = errors.New("session is in incorrect state")
	// ErrNotExpectedMessage indicates a response whose header fields do not
	// match what the session is waiting for.
	ErrNotExpectedMessage = errors.New("unexpected message")
	// ErrSequenceExhausted indicates the 16-bit send sequence would wrap.
	ErrSequenceExhausted = errors.New("send sequence exhausted")
)

// State names the lifecycle phase of a session.
type State uint8

const (
	// StateNone is the initial state before any handshake message.
	StateNone State = iota
	// StateHandshake means Noise message 1 has been sent and message 2 is awaited.
	StateHandshake
	// StateTransport means the handshake completed and AEAD keys are live.
	StateTransport
	// StateClosed is terminal; no further operations are accepted.
	StateClosed
)

// String returns a human-readable state name for logging.
func (s State) String() string {
	switch s {
	case StateNone:
		return "None"
	case StateHandshake:
		return "Handshake"
	case StateTransport:
		return "Transport"
	case StateClosed:
		return "Closed"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Session is the device-side endpoint state machine. It owns the Noise state
// for its session and tracks the sequence counters on both directions.
// Sessions are not safe for concurrent use; the client driver is
// single-threaded and blocking.
type Session struct {
	deviceID         uint32
	sessionID        uint16
	sendSequence     uint16
	lastPeerSequence uint16

	state     State
	handshake *noise.NNHandshake
	transport *noise.Transport
}

// NewSession creates a session for the given device identifier.
// The session starts in StateNone with no Noise state allocated.
func NewSession(deviceID uint32) *Session {
	return &Session{deviceID: deviceID}
}

// DeviceID returns the device identifier the session was created with.
func (s *Session) DeviceID() uint32 { return s.deviceID }

// SessionID returns the server-assigned session id, 0 before the handshake
// response has been processed.
func (s *Session) SessionID() uint16 { return s.sessionID }

// SendSequence returns the sequence number of the last emitted message.
func (s *Session) SendSequence() uint16 { return s.sendSequence }

// LastPeerSequence returns the highest sequence observed from the server.
func (s *Session) LastPeerSequence() uint16 { return s.lastPeerSequence }

// State returns the current lifecycle state.
func (s *Session) State() State { return s.state }

// close moves the session to its terminal state and drops the Noise state.
func (s *Session) close() {
	s.state = StateClosed
	s.handshake = nil
	s.transport = nil
}

// fail closes the session and returns err unchanged.
func (s *Session) fail(err error) error {
	logrus.WithFields(logrus.Fields{
		"function":   "Session.fail",
		"device_id":  s.deviceID,
		"session_id": s.sessionID,
		"state":      s.state.String(),
	}).Error(err.Error())
	s.close()
	return err
}

// InitiateHandshake allocates a Noise initiator, produces handshake
// message 1 and frames it as a HandshakeRequest datagram with session id 0,
// sequence 1 and no ack. The session moves to StateHandshake.
func (s *Session) InitiateHandshake() ([]byte, error) {
	if s.state != StateNone {
		return nil, s.fail(ErrIncorrectState)
	}

	hs, err := noise.NewNNHandshake(noise.Initiator)
	if err != nil {
		return nil, s.fail(err)
	}
	msg, err := hs.WriteMessage()
	if err != nil {
		return nil, s.fail(err)
	}

	s.sendSequence = 1
	header := wire.NewHeader(wire.MessageHandshakeRequest, s.deviceID, 0, s.sendSequence, 0)
	datagram, err := wire.NewCommandDatagram(header, msg)
	if err != nil {
		return nil, s.fail(err)
	}

	s.handshake = hs
	s.state = StateHandshake

	logrus.WithFields(logrus.Fields{
		"function":  "Session.InitiateHandshake",
		"device_id": s.deviceID,
		"size":      len(datagram),
	}).Info("Handshake initiated")
	return datagram, nil
}

// ReceiveHandshake processes the server's HandshakeResponse datagram,
// finishing the Noise exchange and moving the session to StateTransport.
// It records the assigned session id and the server's sequence.
func (s *Session) ReceiveHandshake(datagram []byte) error {
	if s.state != StateHandshake {
		return s.fail(ErrIncorrectState)
	}

	header, body, err := wire.ParseRequest(datagram)
	if err != nil {
		return s.fail(err)
	}
	payload, err := codec.ParseCommand(body)
	if err != nil {
		return s.fail(err)
	}

	logrus.WithFields(logrus.Fields{
		"function":   "Session.ReceiveHandshake",
		"device_id":  header.DeviceID,
		"session_id": header.SessionID,
		"seq":        header.Sequence,
		"ack":        header.Ack,
	}).Info("Handshake response received")

	if header.MessageType != wire.MessageHandshakeResponse {
		return s.fail(fmt.Errorf("%w: got %s", ErrNotExpectedMessage, header.MessageType))
	}
	if header.DeviceID != s.deviceID {
		return s.fail(fmt.Errorf("%w: device id %d", ErrNotExpectedMessage, header.DeviceID))
	}
	if header.SessionID == 0 {
		return s.fail(fmt.Errorf("%w: session id 0", ErrNotExpectedMessage))
	}
	if header.Ack != 1 {
		return s.fail(fmt.Errorf("%w: ack %d", ErrNotExpectedMessage, header.Ack))
	}

	if err := s.handshake.ReadMessage(payload); err != nil {
		return s.fail(err)
	}
	transport, err := s.handshake.Transport()
	if err != nil {
		return s.fail(err)
	}

	s.sessionID = header.SessionID
	s.lastPeerSequence = header.Sequence
	s.transport = transport
	s.handshake = nil
	s.state = StateTransport
	return nil
}

// InformationMessage encodes a sensor reading, encrypts it under the
// stateless transport using the outgoing header's nonce and frames it as an
// EncryptedMessage datagram with the next send sequence.
func (s *Session) InformationMessage(info codec.Information) ([]byte, error) {
	if s.state != StateTransport {
		return nil, s.fail(ErrIncorrectState)
	}
	if s.sendSequence == 0xFFFF {
		return nil, s.fail(ErrSequenceExhausted)
	}

	s.sendSequence++
	header := wire.NewHeader(wire.MessageEncrypted, s.deviceID, s.sessionID, s.sendSequence, 0)

	plaintext, err := codec.EncodeInformation(info)
	if err != nil {
		return nil, s.fail(err)
	}
	ciphertext := s.transport.Encrypt(header.Nonce(), plaintext)

	datagram, err := wire.NewCommandDatagram(header, ciphertext)
	if err != nil {
		return nil, s.fail(err)
	}
	return datagram, nil
}

// TemperatureMessage is the convenience used by the client driver to report
// a temperature reading.
func (s *Session) TemperatureMessage(celsius float32) ([]byte, error) {
	return s.InformationMessage(codec.Temperature(celsius))
}

// ReceiveAck processes the server's acknowledgement of the last emitted
// transport message and records the server's sequence.
func (s *Session) ReceiveAck(datagram []byte) error {
	if s.state != StateTransport {
		return s.fail(ErrIncorrectState)
	}

	header, _, err := wire.ParseRequest(datagram)
	if err != nil {
		return s.fail(err)
	}

	if header.MessageType != wire.MessageAck {
		return s.fail(fmt.Errorf("%w: got %s", ErrNotExpectedMessage, header.MessageType))
	}
	if header.DeviceID != s.deviceID {
		return s.fail(fmt.Errorf("%w: device id %d", ErrNotExpectedMessage, header.DeviceID))
	}
	if header.SessionID != s.sessionID {
		return s.fail(fmt.Errorf("%w: session id %d", ErrNotExpectedMessage, header.SessionID))
	}
	if header.Ack != s.sendSequence {
		return s.fail(fmt.Errorf("%w: ack %d, want %d", ErrNotExpectedMessage, header.Ack, s.sendSequence))
	}

	s.lastPeerSequence = header.Sequence

	logrus.WithFields(logrus.Fields{
		"function":   "Session.ReceiveAck",
		"session_id": s.sessionID,
		"ack":        header.Ack,
	}).Debug("Ack accepted")
	return nil
}
