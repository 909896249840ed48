// Package chunkio provides bounded chunk iteration over byte sources and
// adapters between chunk sequences and conventional readers.
package chunkio

import (
	"io"
	"iter"
)

// DefaultChunkSize is used whenever a chunk size of <= 0 is given.
const DefaultChunkSize = 64 * 1024

// Progress is called with the number of bytes transferred after each step.
type Progress func(n int64)

// ReadFunc adapts a bare read function to io.Reader.
type ReadFunc func(p []byte) (int, error)

func (f ReadFunc) Read(p []byte) (int, error) { return f(p) }

// Chunks returns a lazy sequence of chunks read from r, each at most
// chunksize bytes. A size >= 0 bounds the total; size < 0 reads until the
// source is exhausted. A chunk shorter than requested means the source
// ended and terminates the sequence even if size bytes were not delivered.
// size == 0 yields nothing. Each chunk is freshly allocated and may be
// retained by the consumer.
func Chunks(r io.Reader, size int64, chunksize int, progress Progress) iter.Seq2[[]byte, error] {
	if chunksize <= 0 {
		chunksize = DefaultChunkSize
	}
	return func(yield func([]byte, error) bool) {
		remaining := size
		for remaining != 0 {
			n := chunksize
			if remaining > 0 && remaining < int64(n) {
				n = int(remaining)
			}
			buf := make([]byte, n)
			if !emit(r, buf, &remaining, progress, yield) {
				return
			}
		}
	}
}

// ChunksBuffer is Chunks with a single caller-provided buffer reused for
// every chunk: yielded slices alias buf and are only valid until the next
// iteration step. A nil buf allocates one of DefaultChunkSize.
func ChunksBuffer(r io.Reader, size int64, buf []byte, progress Progress) iter.Seq2[[]byte, error] {
	if len(buf) == 0 {
		buf = make([]byte, DefaultChunkSize)
	}
	return func(yield func([]byte, error) bool) {
		remaining := size
		for remaining != 0 {
			b := buf
			if remaining > 0 && remaining < int64(len(b)) {
				b = b[:remaining]
			}
			if !emit(r, b, &remaining, progress, yield) {
				return
			}
		}
	}
}

// emit fills buf from r and yields it. Reports whether iteration should
// continue.
func emit(r io.Reader, buf []byte, remaining *int64, progress Progress, yield func([]byte, error) bool) bool {
	n, err := io.ReadFull(r, buf)
	if n > 0 {
		if progress != nil {
			progress(int64(n))
		}
		if !yield(buf[:n], nil) {
			return false
		}
		if *remaining > 0 {
			*remaining -= int64(n)
		}
	}
	switch err {
	case nil:
		return true
	case io.EOF, io.ErrUnexpectedEOF:
		return false
	default:
		yield(nil, err)
		return false
	}
}

// Limit bounds seq to at most size bytes, clipping the final chunk.
func Limit(seq iter.Seq[[]byte], size int64) iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		if size == 0 {
			return
		}
		remaining := size
		for chunk := range seq {
			if remaining >= 0 && int64(len(chunk)) > remaining {
				chunk = chunk[:remaining]
			}
			if len(chunk) > 0 && !yield(chunk) {
				return
			}
			if remaining >= 0 {
				if remaining -= int64(len(chunk)); remaining == 0 {
					return
				}
			}
		}
	}
}

// SkipAhead drops the first size bytes of seq, clipping a chunk that
// straddles the boundary.
func SkipAhead(seq iter.Seq[[]byte], size int64) iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		remaining := size
		for chunk := range seq {
			if remaining > 0 {
				if int64(len(chunk)) <= remaining {
					remaining -= int64(len(chunk))
					continue
				}
				chunk = chunk[remaining:]
				remaining = 0
			}
			if !yield(chunk) {
				return
			}
		}
	}
}
