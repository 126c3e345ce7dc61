package server

import (
	"bytes"
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/sensornet/client"
	"github.com/opd-ai/sensornet/codec"
	"github.com/opd-ai/sensornet/wire"
)

func newTestState(t *testing.T, cfg Config) (*State, chan Response) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	responses := make(chan Response, DefaultResponseQueueSize)
	state := NewState(ctx, responses, cfg.withDefaults())
	t.Cleanup(state.Shutdown)
	return state, responses
}

func clientAddr(port int) net.Addr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port}
}

func recvResponse(t *testing.T, responses chan Response) Response {
	t.Helper()
	select {
	case resp := <-responses:
		return resp
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for response")
		return Response{}
	}
}

func expectNoResponse(t *testing.T, responses chan Response) {
	t.Helper()
	select {
	case resp := <-responses:
		header, _, err := wire.ParseRequest(resp.Buf)
		t.Fatalf("unexpected response: header=%+v parseErr=%v", header, err)
	case <-time.After(200 * time.Millisecond):
	}
}

// completeHandshake drives a client session through the multiplexer and
// returns the session with its server-assigned id.
func completeHandshake(t *testing.T, state *State, responses chan Response, addr net.Addr) *client.Session {
	t.Helper()

	session := client.NewSession(1234567890)
	request, err := session.InitiateHandshake()
	require.NoError(t, err)

	require.NoError(t, state.ProcessReceived(request, addr))
	resp := recvResponse(t, responses)
	require.NoError(t, session.ReceiveHandshake(resp.Buf))
	return session
}

func TestHandshakeCreatesSession(t *testing.T) {
	state, responses := newTestState(t, Config{})
	addr := clientAddr(40001)

	session := completeHandshake(t, state, responses, addr)

	assert.Equal(t, 1, state.SessionCount())
	assert.NotEqual(t, uint16(0), session.SessionID())
	assert.Equal(t, uint16(1), session.LastPeerSequence())
	assert.Equal(t, client.StateTransport, session.State())
}

func TestSessionNotFound(t *testing.T) {
	state, _ := newTestState(t, Config{})

	datagram, err := wire.NewCommandDatagram(wire.NewHeader(wire.MessageEncrypted, 1, 42, 2, 0), []byte{1})
	require.NoError(t, err)

	err = state.ProcessReceived(datagram, clientAddr(40002))
	var notFound *SessionNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, uint16(42), notFound.SessionID)
}

func TestMalformedDatagramRejected(t *testing.T) {
	state, _ := newTestState(t, Config{})

	err := state.ProcessReceived([]byte{0x00, 0x00, 0x01}, clientAddr(40003))
	var corrupt *DeserializeFailedError
	require.ErrorAs(t, err, &corrupt)
	assert.Equal(t, 0, state.SessionCount())
}

// TestSessionCap covers scenario S6: with the table full, a fresh handshake
// is rejected with TooManySessions and gets no response.
func TestSessionCap(t *testing.T) {
	state, responses := newTestState(t, Config{MaxSessions: 3})

	for i := 0; i < 3; i++ {
		completeHandshake(t, state, responses, clientAddr(41000+i))
	}
	require.Equal(t, 3, state.SessionCount())

	extra := client.NewSession(99)
	request, err := extra.InitiateHandshake()
	require.NoError(t, err)

	err = state.ProcessReceived(request, clientAddr(41999))
	var tooMany *TooManySessionsError
	require.ErrorAs(t, err, &tooMany)
	assert.Equal(t, 3, tooMany.Current)
	assert.Equal(t, 3, tooMany.Limit)
	expectNoResponse(t, responses)
}

// TestDuplicateResendsCachedResponse covers property 6 and scenario S3: the
// same EncryptedMessage delivered twice yields two byte-identical responses
// and a single recorded reading.
func TestDuplicateResendsCachedResponse(t *testing.T) {
	var readings atomic.Int32
	state, responses := newTestState(t, Config{
		OnReading: func(uint32, uint16, codec.Information) { readings.Add(1) },
	})
	addr := clientAddr(40004)

	session := completeHandshake(t, state, responses, addr)

	report, err := session.TemperatureMessage(25.0)
	require.NoError(t, err)

	require.NoError(t, state.ProcessReceived(report, addr))
	first := recvResponse(t, responses)
	require.NoError(t, session.ReceiveAck(first.Buf))

	require.NoError(t, state.ProcessReceived(report, addr))
	second := recvResponse(t, responses)

	assert.True(t, bytes.Equal(first.Buf, second.Buf), "retransmitted response must be byte-identical")
	assert.Eventually(t, func() bool { return readings.Load() == 1 }, time.Second, 10*time.Millisecond)
}

// TestStaleDuplicateDropped: a sequence below the cached ack is ignored
// without a response and without closing the session.
func TestStaleDuplicateDropped(t *testing.T) {
	state, responses := newTestState(t, Config{})
	addr := clientAddr(40005)

	session := completeHandshake(t, state, responses, addr)

	first, err := session.TemperatureMessage(20)
	require.NoError(t, err)
	require.NoError(t, state.ProcessReceived(first, addr))
	require.NoError(t, session.ReceiveAck(recvResponse(t, responses).Buf))

	second, err := session.TemperatureMessage(21)
	require.NoError(t, err)
	require.NoError(t, state.ProcessReceived(second, addr))
	require.NoError(t, session.ReceiveAck(recvResponse(t, responses).Buf))

	// Replay the older report; its sequence is now below the cached ack.
	require.NoError(t, state.ProcessReceived(first, addr))
	expectNoResponse(t, responses)
	assert.Equal(t, 1, state.SessionCount())
}

// TestSpoofedDuplicateClosesSession covers property 7 and scenario S4: an
// exact duplicate from a different source address is session-fatal.
func TestSpoofedDuplicateClosesSession(t *testing.T) {
	state, responses := newTestState(t, Config{})
	addr := clientAddr(40006)

	session := completeHandshake(t, state, responses, addr)

	report, err := session.TemperatureMessage(25.0)
	require.NoError(t, err)
	require.NoError(t, state.ProcessReceived(report, addr))
	require.NoError(t, session.ReceiveAck(recvResponse(t, responses).Buf))

	// Same bytes, different source address.
	require.NoError(t, state.ProcessReceived(report, clientAddr(49999)))
	expectNoResponse(t, responses)

	// The worker is gone; a later duplicate from the original address
	// reports the closed session and removes the record. The worker's exit
	// is asynchronous, so poll until the multiplexer observes it.
	require.Eventually(t, func() bool {
		err := state.ProcessReceived(report, addr)
		var closed *SessionClosedError
		return errors.As(err, &closed)
	}, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, 0, state.SessionCount())
}

// TestCleanupEvictsIdleSessions: sessions past the idle threshold are
// evicted and their workers exit.
func TestCleanupEvictsIdleSessions(t *testing.T) {
	state, responses := newTestState(t, Config{IdleThreshold: time.Minute})

	completeHandshake(t, state, responses, clientAddr(40008))
	require.Equal(t, 1, state.SessionCount())

	// Not yet idle.
	state.Cleanup(time.Now())
	assert.Equal(t, 1, state.SessionCount())

	// Far past the threshold.
	state.Cleanup(time.Now().Add(2 * time.Minute))
	assert.Equal(t, 0, state.SessionCount())
}

// TestProcessingErrorClosesSession: garbage that decrypts nowhere is fatal
// for the session and produces an Error reply.
func TestProcessingErrorClosesSession(t *testing.T) {
	state, responses := newTestState(t, Config{})
	addr := clientAddr(40009)

	session := completeHandshake(t, state, responses, addr)

	bogus, err := wire.NewCommandDatagram(
		wire.NewHeader(wire.MessageEncrypted, session.DeviceID(), session.SessionID(), 2, 0),
		[]byte("not a valid ciphertext"),
	)
	require.NoError(t, err)
	require.NoError(t, state.ProcessReceived(bogus, addr))

	resp := recvResponse(t, responses)
	header, _, err := wire.ParseRequest(resp.Buf)
	require.NoError(t, err)
	assert.Equal(t, wire.MessageError, header.MessageType)
	assert.Equal(t, uint16(2), header.Ack)
}

// TestSessionIDsMonotonic: ids are handed out monotonically and never 0.
func TestSessionIDsMonotonic(t *testing.T) {
	state, responses := newTestState(t, Config{})

	var last uint16
	for i := 0; i < 5; i++ {
		session := completeHandshake(t, state, responses, clientAddr(42000+i))
		require.NotZero(t, session.SessionID())
		require.Greater(t, session.SessionID(), last)
		last = session.SessionID()
	}
}
