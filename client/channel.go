package client

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/sensornet/limits"
	"github.com/opd-ai/sensornet/wire"
)

var (
	// ErrTimedOut indicates the retry budget was exhausted with no reply.
	ErrTimedOut = errors.New("max retries reached")
	// ErrInvalidData indicates a reply arrived but its header did not parse.
	ErrInvalidData = errors.New("failed to parse header")
)

// SendAndWait transmits request over the connected socket and waits for a
// reply whose header acknowledges seqNum. Each attempt sends the datagram
// once and then reads until the attempt's deadline; replies carrying a
// different ack are logged and skipped without consuming the attempt. After
// maxRetries attempts without a matching reply it returns ErrTimedOut.
//
// Every other I/O error is fatal and returned as-is; a reply that fails
// header parsing returns ErrInvalidData.
func SendAndWait(conn net.Conn, request []byte, seqNum uint16, timeout time.Duration, maxRetries int) ([]byte, error) {
	readBuf := make([]byte, limits.MaxPacketSize)

	for attempt := 1; attempt <= maxRetries; attempt++ {
		if _, err := conn.Write(request); err != nil {
			return nil, err
		}

		deadline := time.Now().Add(timeout)
		if err := conn.SetReadDeadline(deadline); err != nil {
			return nil, err
		}

		for {
			n, err := conn.Read(readBuf)
			if err != nil {
				var netErr net.Error
				if errors.As(err, &netErr) && netErr.Timeout() {
					logrus.WithFields(logrus.Fields{
						"function": "SendAndWait",
						"attempt":  attempt,
						"seq":      seqNum,
					}).Warn("Attempt timed out")
					break
				}
				return nil, err
			}

			header, err := wire.DeserializeHeader(readBuf[:n])
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
			}

			if header.Ack == seqNum {
				reply := make([]byte, n)
				copy(reply, readBuf[:n])
				return reply, nil
			}

			// Stay inside the current attempt window; the matching reply
			// may still be in flight behind a stale one.
			logrus.WithFields(logrus.Fields{
				"function": "SendAndWait",
				"ack":      header.Ack,
				"want":     seqNum,
			}).Warn("Received unexpected ack")
		}
	}

	return nil, ErrTimedOut
}
