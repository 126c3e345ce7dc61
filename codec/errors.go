package codec

import "errors"

var (
	// ErrTooBig indicates an encoded value exceeds the command size cap.
	ErrTooBig = errors.New("message is too big")
	// ErrNotParsed indicates the bytes do not decode to a known value.
	ErrNotParsed = errors.New("message cannot be parsed")
	// ErrNotEnough indicates the buffer is shorter than the declared content.
	ErrNotEnough = errors.New("message is too small")
	// ErrBufferEmpty indicates an empty buffer was provided.
	ErrBufferEmpty = errors.New("message is empty")
)
