package chunkio

import (
	"bytes"
	"io"
	"iter"
	"sync"
)

// IterReader presents a one-shot sequence of byte chunks as a pull-based
// reader, for callers that require a file-like object when the data source
// is a generator (e.g. a streaming response body exposed chunk-wise).
// Chunks are pulled from the sequence only as needed; bytes pulled but not
// yet delivered wait in an internal queue. Once the sequence is exhausted
// the reader is permanently at end: no further pulls are attempted and the
// queued remainder stays servable. Safe for concurrent use.
type IterReader struct {
	mu         sync.Mutex
	next       func() ([]byte, bool)
	stop       func()
	unconsumed []byte
	atEnd      bool
	pos        int64
}

var (
	_ io.ReadCloser = (*IterReader)(nil)
	_ io.ByteReader = (*IterReader)(nil)
	_ io.WriterTo   = (*IterReader)(nil)
)

// NewIterReader wraps seq. The sequence is consumed exactly once; the
// caller must not iterate it elsewhere.
func NewIterReader(seq iter.Seq[[]byte]) *IterReader {
	next, stop := iter.Pull(seq)
	return &IterReader{next: next, stop: stop}
}

// pull appends one chunk to the queue, or latches atEnd. Caller holds mu.
func (r *IterReader) pull() {
	chunk, ok := r.next()
	if !ok {
		r.atEnd = true
		r.stop()
		return
	}
	r.unconsumed = append(r.unconsumed, chunk...)
}

// Read fills p from the queue, pulling chunks until p is satisfied or the
// sequence ends.
func (r *IterReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for len(r.unconsumed) < len(p) && !r.atEnd {
		r.pull()
	}
	if len(r.unconsumed) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.unconsumed)
	r.unconsumed = r.unconsumed[n:]
	r.pos += int64(n)
	return n, nil
}

// ReadByte returns the next queued byte.
func (r *IterReader) ReadByte() (byte, error) {
	var one [1]byte
	if _, err := r.Read(one[:]); err != nil {
		return 0, err
	}
	return one[0], nil
}

// ReadLine reads up to and including the next newline, or the remainder of
// the stream if none follows.
func (r *IterReader) ReadLine() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	from := 0
	for {
		if i := bytes.IndexByte(r.unconsumed[from:], '\n'); i >= 0 {
			end := from + i + 1
			line := bytes.Clone(r.unconsumed[:end])
			r.unconsumed = r.unconsumed[end:]
			r.pos += int64(end)
			return line, nil
		}
		from = len(r.unconsumed)
		if r.atEnd {
			if from == 0 {
				return nil, io.EOF
			}
			line := r.unconsumed
			r.unconsumed = nil
			r.pos += int64(from)
			return line, nil
		}
		r.pull()
	}
}

// Peek returns a copy of up to n queued bytes without advancing, pulling
// until n bytes are available or the sequence ends. n <= 0 returns
// whatever is already queued without pulling.
func (r *IterReader) Peek(n int) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	for n > 0 && len(r.unconsumed) < n && !r.atEnd {
		r.pull()
	}
	if n <= 0 || n > len(r.unconsumed) {
		n = len(r.unconsumed)
	}
	return bytes.Clone(r.unconsumed[:n])
}

// WriteTo drains the reader into w.
func (r *IterReader) WriteTo(w io.Writer) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var written int64
	for {
		if len(r.unconsumed) > 0 {
			n, err := w.Write(r.unconsumed)
			r.unconsumed = r.unconsumed[n:]
			r.pos += int64(n)
			written += int64(n)
			if err != nil {
				return written, err
			}
		}
		if r.atEnd {
			return written, nil
		}
		r.pull()
	}
}

// Tell returns the number of bytes delivered so far.
func (r *IterReader) Tell() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pos
}

// Close stops the underlying sequence. Bytes already queued remain
// servable; no further pulls happen.
func (r *IterReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.atEnd = true
	r.stop()
	return nil
}
