package httpfile

import (
	"bytes"
	"fmt"
	"io"
)

// DefaultBufferSize is the lookahead cache capacity used by Wrap.
const DefaultBufferSize = 8192

// BufferedReader adds a fixed-capacity lookahead cache on top of a raw
// seekable stream, amortizing small reads into fewer transport calls. The
// cache doubles as a look-behind window: bytes already consumed stay in
// front of the cursor until capacity forces them out, so small backward
// seeks (read header, seek back, read again) never touch the transport.
//
// Invariant: 0 <= bufPos <= bufStop <= cap(buf), and pos is the logical
// stream offset of buf[bufPos].
type BufferedReader struct {
	raw     io.ReadSeekCloser
	buf     []byte
	bufPos  int
	bufStop int
	pos     int64
	closed  bool
}

// NewBufferedReader wraps raw with a cache of the given capacity.
// A size <= 0 selects DefaultBufferSize.
func NewBufferedReader(raw io.ReadSeekCloser, size int) *BufferedReader {
	if size <= 0 {
		size = DefaultBufferSize
	}
	b := &BufferedReader{raw: raw, buf: make([]byte, size)}
	b.pos = rawTell(raw)
	return b
}

// Wrap returns the reader behind a lookahead cache of the given capacity
// (<= 0 selects DefaultBufferSize).
func (r *Reader) Wrap(size int) *BufferedReader {
	return NewBufferedReader(r, size)
}

func rawTell(raw io.ReadSeekCloser) int64 {
	if t, ok := raw.(interface{ Tell() int64 }); ok {
		return t.Tell()
	}
	if p, err := raw.Seek(0, io.SeekCurrent); err == nil {
		return p
	}
	return 0
}

// Tell returns the logical position.
func (b *BufferedReader) Tell() int64 { return b.pos }

// Buffered returns the number of unread bytes in the cache.
func (b *BufferedReader) Buffered() int { return b.bufStop - b.bufPos }

// Calibrate resynchronizes the cache with the raw stream after its position
// changed out of band. A target < 0 queries the raw stream. If the new
// position lies within the look-behind window the reusable suffix slides to
// the front and is kept; otherwise the cache is invalidated. Reports
// whether any cached bytes survived. Calling it twice in a row is a no-op.
func (b *BufferedReader) Calibrate(target int64) bool {
	if target < 0 {
		target = rawTell(b.raw)
	}
	pos := b.pos
	if pos == target {
		return true
	}
	b.pos = target
	if cursor := int64(b.bufPos) + target - pos; 0 <= cursor && cursor <= int64(b.bufStop) {
		// the window still covers target; drop the lookahead (the raw
		// stream redelivers it) and keep the look-behind
		b.bufPos = int(cursor)
		b.bufStop = int(cursor)
		return true
	}
	b.bufPos = 0
	b.bufStop = 0
	return false
}

// fill reads once from the raw stream into the free tail of the cache,
// compacting first when full. Compaction keeps up to half the capacity as
// look-behind.
func (b *BufferedReader) fill() (int, error) {
	if b.bufStop == len(b.buf) {
		shift := b.bufPos
		if keep := len(b.buf) / 2; shift > keep {
			shift = keep
		}
		copy(b.buf, b.buf[shift:b.bufStop])
		b.bufPos -= shift
		b.bufStop -= shift
	}
	n, err := b.raw.Read(b.buf[b.bufStop:])
	b.bufStop += n
	return n, err
}

// Read serves from the cache first and refills it in bounded transport
// reads, keeping any excess for later calls.
func (b *BufferedReader) Read(p []byte) (int, error) {
	if b.closed {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	copied := 0
	for copied < len(p) {
		if b.bufPos < b.bufStop {
			n := copy(p[copied:], b.buf[b.bufPos:b.bufStop])
			b.bufPos += n
			b.pos += int64(n)
			copied += n
			continue
		}
		n, err := b.fill()
		if n == 0 {
			if err == nil {
				err = io.EOF
			}
			if copied > 0 && err == io.EOF {
				return copied, nil
			}
			return copied, err
		}
	}
	return copied, nil
}

// ReadByte returns the next byte.
func (b *BufferedReader) ReadByte() (byte, error) {
	var one [1]byte
	if _, err := b.Read(one[:]); err != nil {
		return 0, err
	}
	return one[0], nil
}

// Peek returns a copy of up to n unread cached bytes without advancing,
// pulling from the transport until n bytes are cached or the stream ends.
// n <= 0 peeks whatever is already cached.
func (b *BufferedReader) Peek(n int) ([]byte, error) {
	if b.closed {
		return nil, ErrClosed
	}
	if n > len(b.buf) {
		n = len(b.buf)
	}
	for n > 0 && b.bufStop-b.bufPos < n {
		m, err := b.fill()
		if m == 0 {
			if err != nil && err != io.EOF {
				return nil, err
			}
			break
		}
	}
	stop := b.bufStop
	if n > 0 && b.bufPos+n < stop {
		stop = b.bufPos + n
	}
	return bytes.Clone(b.buf[b.bufPos:stop]), nil
}

// Review returns a copy of up to n already-consumed bytes still held in the
// look-behind window, most recent last. n <= 0 returns the whole window.
func (b *BufferedReader) Review(n int) []byte {
	start := 0
	if n > 0 && b.bufPos-n > 0 {
		start = b.bufPos - n
	}
	return bytes.Clone(b.buf[start:b.bufPos])
}

// ReadLine reads until a newline (kept in the result), end of stream, or
// limit bytes when limit > 0.
func (b *BufferedReader) ReadLine(limit int) ([]byte, error) {
	if b.closed {
		return nil, ErrClosed
	}
	var line []byte
	for {
		window := b.buf[b.bufPos:b.bufStop]
		if limit > 0 {
			if remain := limit - len(line); remain < len(window) {
				window = window[:remain]
			}
		}
		if i := bytes.IndexByte(window, '\n'); i >= 0 {
			line = append(line, window[:i+1]...)
			b.bufPos += i + 1
			b.pos += int64(i + 1)
			return line, nil
		}
		line = append(line, window...)
		b.bufPos += len(window)
		b.pos += int64(len(window))
		if limit > 0 && len(line) >= limit {
			return line, nil
		}
		n, err := b.fill()
		if n == 0 {
			if err == nil {
				err = io.EOF
			}
			if len(line) > 0 && err == io.EOF {
				return line, nil
			}
			return nil, err
		}
	}
}

// Seek repositions the stream. Targets inside the cached window, including
// the look-behind region, only move the cursor; anything else seeks the raw
// stream and recalibrates.
func (b *BufferedReader) Seek(offset int64, whence int) (int64, error) {
	if b.closed {
		return 0, ErrClosed
	}
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = b.pos + offset
	case io.SeekEnd:
		p, err := b.raw.Seek(offset, io.SeekEnd)
		if err != nil {
			return b.pos, err
		}
		b.Calibrate(p)
		return p, nil
	default:
		return b.pos, fmt.Errorf("httpfile: whence %d: %w", whence, ErrInvalidSeek)
	}
	if target < 0 {
		return b.pos, fmt.Errorf("httpfile: negative position %d: %w", target, ErrInvalidSeek)
	}
	if target == b.pos {
		return target, nil
	}
	if cursor := int64(b.bufPos) + target - b.pos; 0 <= cursor && cursor <= int64(b.bufStop) {
		b.bufPos = int(cursor)
		b.pos = target
		return target, nil
	}
	p, err := b.raw.Seek(target, io.SeekStart)
	if err != nil {
		return b.pos, err
	}
	b.Calibrate(p)
	return p, nil
}

// Close closes the raw stream.
func (b *BufferedReader) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	return b.raw.Close()
}
