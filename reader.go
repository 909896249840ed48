// Package httpfile presents a remote HTTP resource as a random-access,
// read-only file. A Reader holds at most one streaming GET response at a
// time and repositions with byte-range requests; short forward seeks are
// served by reading and discarding instead of reconnecting, which avoids a
// new handshake for the small jumps that dominate format-sniffing access
// patterns.
package httpfile

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// DefaultSeekThreshold is the largest forward seek served by
// read-and-discard instead of a reconnect.
const DefaultSeekThreshold = 1 << 20

const discardChunk = 64 * 1024

// URLSource supplies the URL to connect to. It is called on every connect,
// which lets short-lived signed links be refreshed just in time.
type URLSource func() (string, error)

// Options configures Open. The zero value is usable.
type Options struct {
	// Headers are sent with every request. Accept-Encoding is forced to
	// identity; Range is managed by the reader.
	Headers http.Header

	// Start is the initial byte offset. Positive values request
	// "bytes=Start-"; negative values request a suffix range. Either
	// requires the server to honor ranges.
	Start int64

	// SeekThreshold overrides DefaultSeekThreshold. Negative disables the
	// read-and-discard path entirely.
	SeekThreshold int64

	// Backend performs the requests. Nil means DefaultBackend().
	Backend Backend

	// Context applies to every connect performed by the reader.
	Context context.Context
}

// Reader is a seekable, reconnecting byte stream over HTTP range requests.
// It implements io.Reader, io.Seeker, io.ReaderAt, io.WriterTo and
// io.Closer. A Reader is not safe for concurrent use.
type Reader struct {
	src     URLSource
	backend Backend
	ctx     context.Context
	header  http.Header

	start         int64 // logical position: bytes delivered since stream origin
	length        int64 // total resource length, 0 when chunked
	seekThreshold int64
	chunked       bool
	seekable      bool
	name          string

	body   io.ReadCloser // nil while disconnected
	eof    bool          // chunked transport exhausted
	closed bool
}

var (
	_ io.ReadSeekCloser = (*Reader)(nil)
	_ io.ReaderAt       = (*Reader)(nil)
	_ io.WriterTo       = (*Reader)(nil)
)

// Open connects to url and returns a reader positioned at opt.Start.
func Open(url string, opt *Options) (*Reader, error) {
	return OpenSource(func() (string, error) { return url, nil }, opt)
}

// OpenSource is Open with a refreshable URL.
func OpenSource(src URLSource, opt *Options) (*Reader, error) {
	if opt == nil {
		opt = &Options{}
	}
	ctx := opt.Context
	if ctx == nil {
		ctx = context.Background()
	}
	backend := opt.Backend
	if backend == nil {
		backend = DefaultBackend()
	}
	threshold := opt.SeekThreshold
	switch {
	case threshold == 0:
		threshold = DefaultSeekThreshold
	case threshold < 0:
		threshold = 0
	}

	header := make(http.Header, len(opt.Headers)+2)
	for k, vs := range opt.Headers {
		header[k] = append([]string(nil), vs...)
	}
	header.Set("Accept-Encoding", "identity")
	if opt.Start > 0 {
		header.Set("Range", fmt.Sprintf("bytes=%d-", opt.Start))
	} else if opt.Start < 0 {
		header.Set("Range", fmt.Sprintf("bytes=%d", opt.Start))
	}

	u, err := src()
	if err != nil {
		return nil, err
	}
	resp, err := backend.Open(ctx, u, header)
	if err != nil {
		return nil, err
	}

	start := int64(0)
	if opt.Start != 0 {
		first, _, _, ok := parseContentRange(resp.Header)
		if !ok {
			resp.Body.Close()
			return nil, fmt.Errorf("httpfile: server ignored range request: %w", ErrNotSeekable)
		}
		start = first
	}
	header.Del("Range") // reconnects set their own

	return &Reader{
		src:           src,
		backend:       backend,
		ctx:           ctx,
		header:        header,
		start:         start,
		length:        totalLength(resp),
		seekThreshold: threshold,
		chunked:       isChunked(resp),
		seekable:      rangeSupported(resp),
		name:          filenameOf(resp, u),
		body:          resp.Body,
	}, nil
}

// Size returns the total resource length, or 0 for chunked streams.
func (r *Reader) Size() int64 { return r.length }

// Tell returns the logical position.
func (r *Reader) Tell() int64 { return r.start }

// Name returns a diagnostic file name derived from Content-Disposition or
// the URL path. May be empty.
func (r *Reader) Name() string { return r.name }

// Seekable reports whether the server confirmed byte-range support.
func (r *Reader) Seekable() bool { return r.seekable }

// Chunked reports whether the stream has no declared total length.
func (r *Reader) Chunked() bool { return r.chunked }

func (r *Reader) disconnect() error {
	if r.body == nil {
		return nil
	}
	err := r.body.Close()
	r.body = nil
	return err
}

// Close releases the transport response. It is idempotent.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.disconnect()
}

// Read reads up to len(p) bytes from the current position, transparently
// reconnecting if the connection was dropped. End of stream is io.EOF.
func (r *Reader) Read(p []byte) (int, error) {
	if r.closed {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	if !r.chunked && r.start >= r.length {
		return 0, io.EOF
	}
	if r.eof {
		return 0, io.EOF
	}
	if r.body == nil {
		if err := r.reconnect(r.start); err != nil {
			return 0, err
		}
	}
	n, err := r.body.Read(p)
	r.start += int64(n)
	if err == io.EOF {
		r.disconnect()
		if r.chunked {
			r.eof = true
		}
		if n > 0 {
			return n, nil
		}
		if !r.chunked && r.start < r.length {
			// transport ended before the declared length; resume in place
			if rerr := r.reconnect(r.start); rerr != nil {
				return 0, rerr
			}
			n, err = r.body.Read(p)
			r.start += int64(n)
			if err == io.EOF {
				r.disconnect()
				if n == 0 {
					return 0, io.ErrUnexpectedEOF
				}
				return n, nil
			}
			return n, err
		}
		return 0, io.EOF
	}
	return n, err
}

// ReadAt reads len(p) bytes starting at off by repositioning the stream.
// It requires a seekable stream and, unlike os.File.ReadAt, moves the
// current position.
func (r *Reader) ReadAt(p []byte, off int64) (int, error) {
	if _, err := r.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	n, err := io.ReadFull(r, p)
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	return n, err
}

// Seek repositions the stream. Forward seeks no larger than the configured
// threshold are served by reading and discarding on the open connection;
// anything else issues a fresh ranged request at the target offset.
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	if r.closed {
		return 0, ErrClosed
	}
	if !r.seekable {
		return r.start, ErrNotSeekable
	}
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = r.start + offset
	case io.SeekEnd:
		target = r.length + offset
	default:
		return r.start, fmt.Errorf("httpfile: whence %d: %w", whence, ErrInvalidSeek)
	}
	if target < 0 {
		return r.start, fmt.Errorf("httpfile: negative position %d: %w", target, ErrInvalidSeek)
	}
	if target == r.start {
		return target, nil
	}
	if r.body != nil && target > r.start && target-r.start <= r.seekThreshold {
		if err := r.discard(target - r.start); err != nil {
			return r.start, err
		}
		return target, nil
	}
	if err := r.reconnect(target); err != nil {
		return r.start, err
	}
	return target, nil
}

// discard advances by reading n bytes off the open connection. Falls back
// to a reconnect if the transport ends early.
func (r *Reader) discard(n int64) error {
	target := r.start + n
	buf := make([]byte, min(n, discardChunk))
	for r.start < target {
		chunk := min(int64(len(buf)), target-r.start)
		_, err := r.Read(buf[:chunk])
		if err == io.EOF {
			return r.reconnect(target)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Reconnect closes the current connection and reopens at offset. Negative
// offsets count back from the end. Reconnecting a non-seekable stream is
// only allowed back to offset 0 while still at position 0.
func (r *Reader) Reconnect(offset int64) (int64, error) {
	if r.closed {
		return 0, ErrClosed
	}
	if offset < 0 {
		offset = max(r.length+offset, 0)
	}
	if err := r.reconnect(offset); err != nil {
		return r.start, err
	}
	return r.start, nil
}

func (r *Reader) reconnect(target int64) error {
	if !r.seekable && (target != 0 || r.start != 0) {
		return ErrReconnectUnsupported
	}
	r.disconnect()
	r.eof = false
	if !r.chunked && target >= r.length {
		// nothing left to read; no point holding a connection
		r.start = target
		return nil
	}

	u, err := r.src()
	if err != nil {
		return err
	}
	header := r.header.Clone()
	header.Set("Range", fmt.Sprintf("bytes=%d-", target))
	resp, err := r.backend.Open(r.ctx, u, header)
	if err != nil {
		return err
	}
	if newLength := totalLength(resp); newLength != r.length {
		resp.Body.Close()
		return fmt.Errorf("httpfile: %d -> %d: %w", r.length, newLength, ErrLengthChanged)
	}
	if target > 0 {
		first, _, _, ok := parseContentRange(resp.Header)
		if !ok || first != target {
			resp.Body.Close()
			return fmt.Errorf("httpfile: range %d not honored on reconnect: %w", target, ErrNotSeekable)
		}
	}
	r.body = resp.Body
	r.start = target
	return nil
}

// WriteTo streams the remainder of the resource into w.
func (r *Reader) WriteTo(w io.Writer) (int64, error) {
	buf := make([]byte, discardChunk)
	var written int64
	for {
		n, err := r.Read(buf)
		if n > 0 {
			m, werr := w.Write(buf[:n])
			written += int64(m)
			if werr != nil {
				return written, werr
			}
			if m < n {
				return written, io.ErrShortWrite
			}
		}
		if err == io.EOF {
			return written, nil
		}
		if err != nil {
			return written, err
		}
	}
}
