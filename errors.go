package httpfile

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by any operation on a closed reader.
	ErrClosed = errors.New("httpfile: reader is closed")

	// ErrNotSeekable is returned when a byte-range operation is requested
	// but the server did not confirm range support for the stream.
	ErrNotSeekable = errors.New("httpfile: stream is not seekable")

	// ErrInvalidSeek is returned for a negative target position or an
	// unsupported whence value.
	ErrInvalidSeek = errors.New("httpfile: invalid seek")

	// ErrLengthChanged is returned when a reconnect observes a different
	// total length than the one recorded at open. The remote resource
	// changed mid-read; the stream is unusable and must be reopened.
	ErrLengthChanged = errors.New("httpfile: remote length changed")

	// ErrReconnectUnsupported is returned when reconnecting a non-seekable
	// stream to any offset other than the beginning.
	ErrReconnectUnsupported = errors.New("httpfile: reconnect unsupported on non-seekable stream")
)

// StatusError reports a non-success HTTP status from a backend.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("httpfile: unexpected status: %s", e.Status)
}
