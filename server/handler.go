package server

import (
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/sensornet/codec"
	"github.com/opd-ai/sensornet/wire"
)

// process runs the endpoint state machine for one fresh request and returns
// the response message type and payload. Every error is fatal for the
// session; the caller handles the Error reply and teardown.
func (w *sessionWorker) process(msg ChannelMessage) (wire.MessageType, []byte, error) {
	w.log().WithFields(logrus.Fields{
		"function":     "sessionWorker.process",
		"message_type": msg.Header.MessageType.String(),
		"seq":          msg.Header.Sequence,
	}).Info("Received message")

	switch msg.Header.MessageType {
	case wire.MessageHandshakeRequest:
		return w.processHandshake(msg)
	case wire.MessageEncrypted:
		return w.processEncrypted(msg)
	case wire.MessageHandshakeResponse, wire.MessageTimeout:
		return 0, nil, ErrNotExpectedMessage
	default:
		return 0, nil, ErrNotImplemented
	}
}

// processHandshake consumes Noise message 1 and produces message 2,
// switching the session into stateless transport mode. A handshake request
// must arrive with session id 0; anything else is a protocol violation.
func (w *sessionWorker) processHandshake(msg ChannelMessage) (wire.MessageType, []byte, error) {
	if msg.Header.SessionID != 0 {
		return 0, nil, &IncorrectHandshakeError{SessionID: msg.Header.SessionID, Seq: msg.Header.Sequence}
	}
	if w.handshake == nil {
		return 0, nil, &IncorrectHandshakeError{SessionID: w.sessionID, Seq: msg.Header.Sequence}
	}

	payload, err := codec.ParseCommand(msg.Body)
	if err != nil {
		return 0, nil, &MessageCorruptedError{Err: err}
	}

	if err := w.handshake.ReadMessage(payload); err != nil {
		return 0, nil, err
	}
	reply, err := w.handshake.WriteMessage()
	if err != nil {
		return 0, nil, err
	}
	transport, err := w.handshake.Transport()
	if err != nil {
		return 0, nil, err
	}

	w.transport = transport
	w.handshake = nil

	w.log().Info("Handshake completed, session in transport mode")
	return wire.MessageHandshakeResponse, reply, nil
}

// processEncrypted decrypts a transport-mode message with the nonce derived
// from its header, decodes the reading and hands it to the sink. The reply
// is an empty-bodied Ack.
func (w *sessionWorker) processEncrypted(msg ChannelMessage) (wire.MessageType, []byte, error) {
	if w.transport == nil {
		return 0, nil, ErrIncorrectState
	}

	ciphertext, err := codec.ParseCommand(msg.Body)
	if err != nil {
		return 0, nil, &MessageCorruptedError{Err: err}
	}

	plaintext, err := w.transport.Decrypt(msg.Header.Nonce(), ciphertext)
	if err != nil {
		return 0, nil, err
	}

	info, err := codec.DecodeInformation(plaintext)
	if err != nil {
		return 0, nil, &MessageCorruptedError{Err: err}
	}

	w.log().WithFields(logrus.Fields{
		"seq":     msg.Header.Sequence,
		"reading": info.Reading(),
	}).Info("Recorded device reading")
	if w.onReading != nil {
		w.onReading(w.deviceID, w.sessionID, info)
	}

	return wire.MessageAck, nil, nil
}
