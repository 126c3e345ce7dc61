package server

import (
	"context"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/sensornet/limits"
	"github.com/opd-ai/sensornet/wire"
)

// serverSession is the multiplexer's record for one active session. The
// worker exclusively owns the Noise state and response cache; the record
// only tracks what routing and cleanup need.
type serverSession struct {
	worker              *sessionWorker
	deviceID            uint32
	lastRequestSequence uint16
	lastTimestamp       time.Time
}

// State is the server's session table and demultiplexer. It is owned by the
// supervisor goroutine and never accessed concurrently.
type State struct {
	ctx       context.Context
	responses chan<- Response
	onReading ReadingFunc

	maxSessions   int
	inboxSize     int
	idleThreshold time.Duration

	lastSessionID uint16
	sessions      map[uint16]*serverSession
}

// NewState creates an empty session table bound to the supervisor's
// response queue and lifetime.
func NewState(ctx context.Context, responses chan<- Response, cfg Config) *State {
	return &State{
		ctx:           ctx,
		responses:     responses,
		onReading:     cfg.OnReading,
		maxSessions:   cfg.MaxSessions,
		inboxSize:     cfg.SessionQueueSize,
		idleThreshold: cfg.IdleThreshold,
		sessions:      make(map[uint16]*serverSession),
	}
}

// SessionCount returns the number of live session records.
func (s *State) SessionCount() int {
	return len(s.sessions)
}

// ProcessReceived routes one received datagram: it validates the header,
// creates a session for handshake initiations, marks duplicates for the
// worker's retransmit path and forwards the message to the owning worker's
// inbox.
//
// Malformed datagrams and routing failures are reported to the caller,
// which logs and drops; the server never replies to traffic it cannot
// attribute to a session.
func (s *State) ProcessReceived(datagram []byte, addr net.Addr) error {
	if err := limits.ValidateDatagram(datagram); err != nil {
		return &DeserializeFailedError{Err: err}
	}

	header, body, err := wire.ParseRequest(datagram)
	if err != nil {
		return &DeserializeFailedError{Err: err}
	}

	sessionID := header.SessionID
	if sessionID == 0 {
		sessionID, err = s.createSession(header)
		if err != nil {
			return err
		}
	}

	sess, ok := s.sessions[sessionID]
	if !ok {
		return &SessionNotFoundError{SessionID: sessionID}
	}

	msg := ChannelMessage{
		Addr:   addr,
		Header: header,
		Body:   append([]byte(nil), body...),
	}

	if header.Sequence > sess.lastRequestSequence {
		sess.lastRequestSequence = header.Sequence
		sess.lastTimestamp = time.Now()
	} else {
		logrus.WithFields(logrus.Fields{
			"function":   "State.ProcessReceived",
			"session_id": sessionID,
			"seq":        header.Sequence,
			"last_seq":   sess.lastRequestSequence,
		}).Warn("Duplicate message received")
		msg.Duplicate = true
	}

	return s.forward(sessionID, sess, msg)
}

// createSession assigns the next session id and spawns its worker.
func (s *State) createSession(header wire.PackedHeader) (uint16, error) {
	if len(s.sessions) >= s.maxSessions {
		return 0, &TooManySessionsError{Current: len(s.sessions), Limit: s.maxSessions}
	}

	sessionID, err := s.nextSessionID()
	if err != nil {
		return 0, err
	}

	worker, err := spawnWorker(s.ctx, sessionID, header.DeviceID, s.inboxSize, s.responses, s.onReading)
	if err != nil {
		return 0, err
	}

	s.sessions[sessionID] = &serverSession{
		worker:        worker,
		deviceID:      header.DeviceID,
		lastTimestamp: time.Now(),
	}

	logrus.WithFields(logrus.Fields{
		"function":   "State.createSession",
		"session_id": sessionID,
		"device_id":  header.DeviceID,
	}).Info("Assigned new session id")
	return sessionID, nil
}

// nextSessionID hands out monotonically increasing ids, skipping 0 and ids
// still in use after wraparound. With the session cap enforced first a free
// id always exists; the scan bound only guards the invariant.
func (s *State) nextSessionID() (uint16, error) {
	for i := 0; i < 0xFFFF; i++ {
		s.lastSessionID++
		if s.lastSessionID == 0 {
			s.lastSessionID = 1
		}
		if _, inUse := s.sessions[s.lastSessionID]; !inUse {
			return s.lastSessionID, nil
		}
	}
	return 0, &TooManySessionsError{Current: len(s.sessions), Limit: s.maxSessions}
}

// forward delivers a message to the worker inbox. A terminated worker
// removes the session record. The send never blocks the supervisor: a full
// inbox drops the datagram like any other loss on the channel, and the
// client's retry loop covers it.
func (s *State) forward(sessionID uint16, sess *serverSession, msg ChannelMessage) error {
	select {
	case <-sess.worker.done:
		delete(s.sessions, sessionID)
		return &SessionClosedError{SessionID: sessionID}
	default:
	}

	select {
	case sess.worker.inbox <- msg:
		return nil
	case <-sess.worker.done:
		delete(s.sessions, sessionID)
		return &SessionClosedError{SessionID: sessionID}
	default:
		logrus.WithFields(logrus.Fields{
			"function":   "State.forward",
			"session_id": sessionID,
			"seq":        msg.Header.Sequence,
		}).Warn("Session inbox full, dropping datagram")
		return nil
	}
}

// Cleanup evicts sessions whose worker has terminated or whose last
// activity is older than the idle threshold. Eviction closes the inbox,
// which makes the worker exit its loop.
func (s *State) Cleanup(now time.Time) {
	for sessionID, sess := range s.sessions {
		terminated := false
		select {
		case <-sess.worker.done:
			terminated = true
		default:
		}

		if !terminated && now.Sub(sess.lastTimestamp) <= s.idleThreshold {
			continue
		}

		logrus.WithFields(logrus.Fields{
			"function":   "State.Cleanup",
			"session_id": sessionID,
			"terminated": terminated,
			"idle":       now.Sub(sess.lastTimestamp).String(),
		}).Info("Evicting session")

		if !terminated {
			close(sess.worker.inbox)
		}
		delete(s.sessions, sessionID)
	}
}

// Shutdown closes every session inbox so workers exit, then clears the table.
func (s *State) Shutdown() {
	for sessionID, sess := range s.sessions {
		select {
		case <-sess.worker.done:
		default:
			close(sess.worker.inbox)
		}
		delete(s.sessions, sessionID)
	}
}
