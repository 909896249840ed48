package httpfile

import (
	"bytes"
	"io"
	"iter"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
)

// TextReader decodes a buffered byte stream into UTF-8 text for
// line-oriented consumption. With no explicit newline mode it performs
// universal-newline translation: "\r\n" and lone "\r" both become "\n".
type TextReader struct {
	buf     *BufferedReader
	src     io.Reader // decoding pipeline over buf
	newline string    // "" selects universal newlines
	pending []byte    // decoded, translated, not yet delivered
	scratch []byte
	holdCR  bool
	closed  bool
}

// NewTextReader wraps b. A nil enc means the stream is already UTF-8.
// newline "" selects universal-newline translation; any other value leaves
// line endings untouched and is used verbatim as the ReadLine terminator's
// final byte.
func NewTextReader(b *BufferedReader, enc encoding.Encoding, newline string) *TextReader {
	var src io.Reader = b
	if enc != nil {
		src = transform.NewReader(b, enc.NewDecoder())
	}
	return &TextReader{
		buf:     b,
		src:     src,
		newline: newline,
		scratch: make([]byte, 4096),
	}
}

// WrapText layers text decoding over the reader. bufferSize <= 0 selects
// DefaultBufferSize.
func (r *Reader) WrapText(enc encoding.Encoding, newline string, bufferSize int) *TextReader {
	return NewTextReader(r.Wrap(bufferSize), enc, newline)
}

// fill decodes one more chunk into pending. Returns io.EOF only once the
// source is exhausted.
func (t *TextReader) fill() error {
	n, err := t.src.Read(t.scratch)
	chunk := t.scratch[:n]
	if t.newline != "" {
		t.pending = append(t.pending, chunk...)
	} else {
		if t.holdCR && n > 0 {
			// the CR was already delivered as \n; swallow a paired LF
			if chunk[0] == '\n' {
				chunk = chunk[1:]
			}
			t.holdCR = false
		}
		for len(chunk) > 0 {
			i := bytes.IndexByte(chunk, '\r')
			if i < 0 {
				t.pending = append(t.pending, chunk...)
				break
			}
			t.pending = append(t.pending, chunk[:i]...)
			t.pending = append(t.pending, '\n')
			chunk = chunk[i+1:]
			if len(chunk) == 0 {
				t.holdCR = err == nil
			} else if chunk[0] == '\n' {
				chunk = chunk[1:]
			}
		}
	}
	return err
}

// Read returns decoded (and, in universal mode, newline-translated) bytes.
func (t *TextReader) Read(p []byte) (int, error) {
	if t.closed {
		return 0, ErrClosed
	}
	for len(t.pending) == 0 {
		if err := t.fill(); err != nil {
			if len(t.pending) > 0 {
				break
			}
			return 0, err
		}
	}
	n := copy(p, t.pending)
	t.pending = t.pending[n:]
	return n, nil
}

// ReadLine returns the next line including its terminator. The final line
// of a stream without a trailing terminator is returned before io.EOF.
func (t *TextReader) ReadLine() (string, error) {
	if t.closed {
		return "", ErrClosed
	}
	delim := byte('\n')
	if t.newline != "" {
		delim = t.newline[len(t.newline)-1]
	}
	for {
		if i := bytes.IndexByte(t.pending, delim); i >= 0 {
			line := string(t.pending[:i+1])
			t.pending = t.pending[i+1:]
			return line, nil
		}
		if err := t.fill(); err != nil {
			if len(t.pending) > 0 {
				line := string(t.pending)
				t.pending = t.pending[:0]
				if err == io.EOF {
					return line, nil
				}
				return line, err
			}
			return "", err
		}
	}
}

// Lines iterates over the stream's lines with terminators trimmed. A
// transport error ends the sequence with err != nil.
func (t *TextReader) Lines() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for {
			line, err := t.ReadLine()
			if err == io.EOF {
				return
			}
			if err != nil {
				yield("", err)
				return
			}
			if t.newline == "" {
				line = strings.TrimSuffix(line, "\n")
			} else {
				line = strings.TrimSuffix(line, t.newline)
			}
			if !yield(line, nil) {
				return
			}
		}
	}
}

// Close closes the underlying buffered stream.
func (t *TextReader) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	return t.buf.Close()
}
