package server

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/sensornet/limits"
)

const (
	// DefaultAddr is the default server bind address.
	DefaultAddr = "127.0.0.1:8080"
	// DefaultMaxSessions caps the number of concurrently active sessions.
	DefaultMaxSessions = 100
	// DefaultCleanupInterval is how often idle sessions are evicted.
	DefaultCleanupInterval = 5 * time.Minute
	// DefaultResponseQueueSize bounds the outbound response queue; full
	// means session workers suspend until the supervisor drains it.
	DefaultResponseQueueSize = 10
	// DefaultSessionQueueSize bounds each session worker's inbox.
	DefaultSessionQueueSize = 10

	// readPollInterval is the read deadline used to observe shutdown while
	// blocked in a socket receive.
	readPollInterval = 100 * time.Millisecond
)

// Config carries the supervisor's tunables. The zero value is usable; every
// field falls back to its default.
type Config struct {
	// Addr is the UDP bind address.
	Addr string
	// MaxSessions caps the session table.
	MaxSessions int
	// CleanupInterval is the period of the idle-eviction pass.
	CleanupInterval time.Duration
	// IdleThreshold evicts sessions inactive longer than this; it defaults
	// to one cleanup interval.
	IdleThreshold time.Duration
	// ResponseQueueSize bounds the outbound queue.
	ResponseQueueSize int
	// SessionQueueSize bounds each worker inbox.
	SessionQueueSize int
	// DropRate, when N > 0, randomly drops one in N datagrams on both the
	// inbound and outbound paths to exercise the retransmission machinery.
	DropRate int
	// OnReading receives every accepted sensor reading.
	OnReading ReadingFunc
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.MaxSessions == 0 {
		c.MaxSessions = DefaultMaxSessions
	}
	if c.CleanupInterval == 0 {
		c.CleanupInterval = DefaultCleanupInterval
	}
	if c.IdleThreshold == 0 {
		c.IdleThreshold = c.CleanupInterval
	}
	if c.ResponseQueueSize == 0 {
		c.ResponseQueueSize = DefaultResponseQueueSize
	}
	if c.SessionQueueSize == 0 {
		c.SessionQueueSize = DefaultSessionQueueSize
	}
	return c
}

// datagram is one received packet handed from the reader path to the
// supervisor loop.
type datagram struct {
	data []byte
	addr net.Addr
}

// Service is the server supervisor: the only owner of the UDP socket,
// fanning datagrams in to session workers and responses back out.
type Service struct {
	cfg   Config
	conn  net.PacketConn
	state *State

	responses chan Response
	inbound   chan datagram
	readErrs  chan error
}

// NewService binds the UDP socket. Bind failure is fatal for the process.
func NewService(cfg Config) (*Service, error) {
	cfg = cfg.withDefaults()

	conn, err := net.ListenPacket("udp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to bind %s: %w", cfg.Addr, err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewService",
		"addr":     conn.LocalAddr().String(),
	}).Info("Server listening")

	return &Service{
		cfg:       cfg,
		conn:      conn,
		responses: make(chan Response, cfg.ResponseQueueSize),
		inbound:   make(chan datagram),
		readErrs:  make(chan error, 1),
	}, nil
}

// LocalAddr returns the bound socket address, useful with ":0" binds.
func (s *Service) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

// Serve runs the supervisor loop until ctx is cancelled or the socket is
// lost. On shutdown it stops accepting datagrams, drains the outbound
// queue, closes all sessions and returns nil.
func (s *Service) Serve(ctx context.Context) error {
	defer s.conn.Close()

	s.state = NewState(ctx, s.responses, s.cfg)
	defer s.state.Shutdown()

	go s.readLoop(ctx)

	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.drainResponses()
			logrus.WithField("function", "Service.Serve").Info("Server shut down")
			return nil

		case err := <-s.readErrs:
			return err

		case in := <-s.inbound:
			if s.dropped("inbound") {
				continue
			}
			if err := s.state.ProcessReceived(in.data, in.addr); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "Service.Serve",
					"addr":     in.addr.String(),
					"error":    err.Error(),
				}).Error("Failed to process message")
			}

		case resp := <-s.responses:
			s.sendResponse(resp)

		case <-ticker.C:
			s.state.Cleanup(time.Now())
		}
	}
}

// readLoop is the single reader path. It polls with a short read deadline so
// cancellation is observed promptly, and surfaces unrecoverable socket
// errors to the supervisor.
func (s *Service) readLoop(ctx context.Context) {
	buf := make([]byte, limits.MaxPacketSize)

	for {
		if ctx.Err() != nil {
			return
		}

		_ = s.conn.SetReadDeadline(time.Now().Add(readPollInterval))
		n, addr, err := s.conn.ReadFrom(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			select {
			case s.readErrs <- fmt.Errorf("socket receive failed: %w", err):
			default:
			}
			return
		}

		data := make([]byte, n)
		copy(data, buf[:n])

		select {
		case s.inbound <- datagram{data: data, addr: addr}:
		case <-ctx.Done():
			return
		}
	}
}

// sendResponse is the single writer path.
func (s *Service) sendResponse(resp Response) {
	if s.dropped("outbound") {
		return
	}

	logrus.WithFields(logrus.Fields{
		"function": "Service.sendResponse",
		"addr":     resp.Addr.String(),
		"size":     len(resp.Buf),
	}).Debug("Sending response")

	if _, err := s.conn.WriteTo(resp.Buf, resp.Addr); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Service.sendResponse",
			"addr":     resp.Addr.String(),
			"error":    err.Error(),
		}).Error("Failed to send message")
	}
}

// drainResponses flushes whatever workers already queued before shutdown.
func (s *Service) drainResponses() {
	for {
		select {
		case resp := <-s.responses:
			s.sendResponse(resp)
		default:
			return
		}
	}
}

// dropped implements the adversarial channel simulation: with DropRate N,
// one in N datagrams on the given path is discarded.
func (s *Service) dropped(path string) bool {
	if s.cfg.DropRate <= 0 {
		return false
	}
	if rand.Intn(s.cfg.DropRate) != 0 {
		return false
	}
	logrus.WithFields(logrus.Fields{
		"function": "Service.dropped",
		"path":     path,
	}).Warn("Simulated packet drop")
	return true
}
