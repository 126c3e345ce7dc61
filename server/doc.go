// Package server implements the central endpoint of the sensor datagram
// protocol: a single-socket supervisor that demultiplexes datagrams to
// per-session workers, each owning its Noise state, sequence bookkeeping and
// a one-shot retransmission cache.
//
// Concurrency model: the supervisor alone touches the UDP socket (one reader
// path, one writer path). Session workers are goroutines fed by bounded
// inbox channels and emit responses through a bounded response queue, which
// provides backpressure; there is no shared mutable state between workers.
// A periodic cleanup pass evicts sessions idle past the configured
// threshold, and a cooperative shutdown drains the outbound queue before
// exiting.
//
// Duplicate requests are answered by resending the cached response bytes
// verbatim. The stateless AEAD transport makes this idempotent for the peer:
// no nonce is ever reused for a new plaintext. A duplicate arriving from a
// different source address is a session-fatal security violation.
package server
