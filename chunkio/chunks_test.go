package chunkio

import (
	"bytes"
	"errors"
	"io"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, seq func(yield func([]byte, error) bool)) []string {
	t.Helper()
	var out []string
	for chunk, err := range seq {
		require.NoError(t, err)
		out = append(out, string(chunk))
	}
	return out
}

func TestChunks(t *testing.T) {
	got := collect(t, Chunks(strings.NewReader("abcdefgh"), -1, 3, nil))
	assert.Equal(t, []string{"abc", "def", "gh"}, got)
}

func TestChunksBounded(t *testing.T) {
	got := collect(t, Chunks(strings.NewReader("abcdefgh"), 5, 2, nil))
	assert.Equal(t, []string{"ab", "cd", "e"}, got)
}

func TestChunksShortSource(t *testing.T) {
	// the source ends before the requested size; the short chunk is final
	got := collect(t, Chunks(strings.NewReader("abcd"), 10, 3, nil))
	assert.Equal(t, []string{"abc", "d"}, got)
}

func TestChunksZeroSize(t *testing.T) {
	got := collect(t, Chunks(strings.NewReader("abcd"), 0, 3, nil))
	assert.Empty(t, got)
}

func TestChunksEmptySource(t *testing.T) {
	got := collect(t, Chunks(strings.NewReader(""), -1, 3, nil))
	assert.Empty(t, got)
}

func TestChunksProgress(t *testing.T) {
	var total int64
	collect(t, Chunks(strings.NewReader("abcdefgh"), -1, 3, func(n int64) { total += n }))
	assert.Equal(t, int64(8), total)
}

func TestChunksStopEarly(t *testing.T) {
	r := strings.NewReader("abcdefgh")
	for range Chunks(r, -1, 2, nil) {
		break
	}
	// only one chunk was pulled off the source
	assert.Equal(t, 6, r.Len())
}

// failingReader delivers its data, then a non-EOF error.
type failingReader struct {
	data []byte
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func TestChunksError(t *testing.T) {
	boom := errors.New("link down")
	src := &failingReader{data: []byte("abcde"), err: boom}

	var chunks []string
	var got error
	for chunk, err := range Chunks(src, -1, 3, nil) {
		if err != nil {
			got = err
			break
		}
		chunks = append(chunks, string(chunk))
	}
	assert.Equal(t, []string{"abc", "de"}, chunks)
	assert.ErrorIs(t, got, boom)
}

func TestChunksBuffer(t *testing.T) {
	buf := make([]byte, 3)
	var first []byte
	var got []string
	for chunk, err := range ChunksBuffer(strings.NewReader("abcdef"), -1, buf, nil) {
		require.NoError(t, err)
		if first == nil {
			first = chunk
		}
		got = append(got, string(chunk))
	}
	assert.Equal(t, []string{"abc", "def"}, got)
	// chunks alias the caller's buffer
	assert.Equal(t, &buf[0], &first[0])
}

func TestLimit(t *testing.T) {
	seq := slices.Values([][]byte{[]byte("abc"), []byte("defg"), []byte("hi")})

	var got []string
	for chunk := range Limit(seq, 5) {
		got = append(got, string(chunk))
	}
	assert.Equal(t, []string{"abc", "de"}, got)
}

func TestLimitUnbounded(t *testing.T) {
	seq := slices.Values([][]byte{[]byte("ab"), []byte("cd")})

	var got []string
	for chunk := range Limit(seq, -1) {
		got = append(got, string(chunk))
	}
	assert.Equal(t, []string{"ab", "cd"}, got)
}

func TestSkipAhead(t *testing.T) {
	seq := slices.Values([][]byte{[]byte("abc"), []byte("defg"), []byte("hi")})

	var got []string
	for chunk := range SkipAhead(seq, 4) {
		got = append(got, string(chunk))
	}
	assert.Equal(t, []string{"efg", "hi"}, got)
}

func TestSkipSeeker(t *testing.T) {
	r := bytes.NewReader([]byte("0123456789"))

	n, err := Skip(r, 4, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	b, err := r.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte('4'), b)

	// negative size skips to the end
	n, err = Skip(r, -1, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	_, err = r.ReadByte()
	assert.Equal(t, io.EOF, err)
}

func TestSkipReader(t *testing.T) {
	r := strings.NewReader("0123456789")
	var total int64

	// hide the Seeker so the discard loop runs
	n, err := Skip(ReadFunc(r.Read), 4, 2, func(n int64) { total += n })
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.Equal(t, int64(4), total)

	b := make([]byte, 1)
	_, err = r.Read(b)
	require.NoError(t, err)
	assert.Equal(t, byte('4'), b[0])
}

func TestSkipPastEnd(t *testing.T) {
	n, err := Skip(ReadFunc(strings.NewReader("abc").Read), 100, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestSkipPastEndSeeker(t *testing.T) {
	// the seek fast path must not report bytes beyond the end
	r := bytes.NewReader([]byte("abc"))
	n, err := Skip(r, 100, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	_, err = r.ReadByte()
	assert.Equal(t, io.EOF, err)
}
