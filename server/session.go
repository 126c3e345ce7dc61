package server

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/sensornet/noise"
	"github.com/opd-ai/sensornet/wire"
)

// lastResponse is the worker's one-shot retransmission cache: the exact
// bytes of the most recent response, the address they were sent to, and the
// request sequence they acknowledged.
type lastResponse struct {
	addr  string
	buf   []byte
	ackID uint16
}

// sessionWorker owns everything mutable about one session: the Noise state,
// the response sequence counter and the retransmission cache. It is driven
// exclusively by its inbox channel; nothing else may touch its fields.
type sessionWorker struct {
	sessionID uint16
	deviceID  uint32

	inbox     chan ChannelMessage
	responses chan<- Response
	done      chan struct{}
	ctx       context.Context

	onReading ReadingFunc

	handshake    *noise.NNHandshake
	transport    *noise.Transport
	sendSequence uint16
	last         *lastResponse
}

// spawnWorker creates the worker for a freshly assigned session and starts
// its goroutine. The Noise responder is allocated up front so the first
// inbox message can complete the handshake.
func spawnWorker(ctx context.Context, sessionID uint16, deviceID uint32, inboxSize int,
	responses chan<- Response, onReading ReadingFunc,
) (*sessionWorker, error) {
	hs, err := noise.NewNNHandshake(noise.Responder)
	if err != nil {
		return nil, err
	}

	w := &sessionWorker{
		sessionID: sessionID,
		deviceID:  deviceID,
		inbox:     make(chan ChannelMessage, inboxSize),
		responses: responses,
		done:      make(chan struct{}),
		ctx:       ctx,
		onReading: onReading,
		handshake: hs,
	}
	go w.run()
	return w, nil
}

func (w *sessionWorker) log() *logrus.Entry {
	return logrus.WithFields(logrus.Fields{
		"session_id": w.sessionID,
		"device_id":  w.deviceID,
	})
}

// run is the worker loop. It exits when the inbox closes (eviction), when
// the supervisor context is cancelled, or on the first fatal error.
func (w *sessionWorker) run() {
	defer close(w.done)

	for {
		select {
		case msg, ok := <-w.inbox:
			if !ok {
				w.log().Info("Session inbox closed, worker exiting")
				return
			}
			if fatal := w.handle(msg); fatal {
				return
			}
		case <-w.ctx.Done():
			return
		}
	}
}

// handle dispatches one inbox message through the retransmit table or the
// normal processing path. It reports whether the session must close.
func (w *sessionWorker) handle(msg ChannelMessage) (fatal bool) {
	seq := msg.Header.Sequence

	if w.last != nil && seq <= w.last.ackID {
		if msg.Addr.String() != w.last.addr {
			w.log().WithFields(logrus.Fields{
				"seq":       seq,
				"addr":      msg.Addr.String(),
				"last_addr": w.last.addr,
			}).Error(ErrAddressMismatch.Error())
			return true
		}
		if seq == w.last.ackID {
			w.log().WithField("seq", seq).Info("Duplicate request, resending cached response")
			return !w.send(Response{Addr: msg.Addr, Buf: w.last.buf})
		}
		w.log().WithField("seq", seq).Debug("Stale duplicate, dropping")
		return false
	}

	if msg.Duplicate {
		// A duplicate can only be answered from the cache; with no cached
		// response the session's view of the peer is inconsistent.
		w.log().WithField("seq", seq).Error(ErrDuplicateWithoutResponse.Error())
		return true
	}

	return w.respond(msg)
}

// respond runs normal processing for a fresh request and queues the
// response, updating the retransmission cache on success. A processing
// error produces a best-effort Error datagram and closes the session.
func (w *sessionWorker) respond(msg ChannelMessage) (fatal bool) {
	if w.sendSequence == 0xFFFF {
		w.log().Error("Response sequence exhausted, closing session")
		return true
	}
	w.sendSequence++

	messageType, payload, err := w.process(msg)
	if err != nil {
		w.log().WithFields(logrus.Fields{
			"seq":   msg.Header.Sequence,
			"error": err.Error(),
		}).Error("Failed to process message")

		errHeader := wire.NewHeader(wire.MessageError, w.deviceID, w.sessionID, w.sendSequence, msg.Header.Sequence)
		if errBuf, buildErr := wire.NewCommandDatagram(errHeader, nil); buildErr == nil {
			w.send(Response{Addr: msg.Addr, Buf: errBuf})
		}
		return true
	}

	header := wire.NewHeader(messageType, w.deviceID, w.sessionID, w.sendSequence, msg.Header.Sequence)
	buf, err := wire.NewCommandDatagram(header, payload)
	if err != nil {
		w.log().WithField("error", err.Error()).Error("Failed to serialize response")
		return true
	}

	if !w.send(Response{Addr: msg.Addr, Buf: buf}) {
		return true
	}
	w.last = &lastResponse{addr: msg.Addr.String(), buf: buf, ackID: msg.Header.Sequence}
	return false
}

// send queues a response, suspending on the bounded queue until the
// supervisor drains it. Returns false when the supervisor is gone.
func (w *sessionWorker) send(resp Response) bool {
	select {
	case w.responses <- resp:
		return true
	case <-w.ctx.Done():
		w.log().Warn("Failed to queue response, server is stopping")
		return false
	}
}
