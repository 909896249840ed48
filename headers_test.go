package httpfile

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseContentRange(t *testing.T) {
	tests := []struct {
		in                string
		first, last, totl int64
		ok                bool
	}{
		{"bytes 0-499/1000", 0, 499, 1000, true},
		{"bytes 500-999/1000", 500, 999, 1000, true},
		{"bytes 0-0/1", 0, 0, 1, true},
		{"bytes 0-499/*", 0, 499, -1, true},
		{"", 0, 0, 0, false},
		{"bytes */1000", 0, 0, 0, false},
		{"items 0-499/1000", 0, 0, 0, false},
		{"bytes 0-499", 0, 0, 0, false},
		{"bytes x-499/1000", 0, 0, 0, false},
	}
	for _, tc := range tests {
		h := http.Header{}
		if tc.in != "" {
			h.Set("Content-Range", tc.in)
		}
		first, last, total, ok := parseContentRange(h)
		assert.Equal(t, tc.ok, ok, tc.in)
		if tc.ok {
			assert.Equal(t, tc.first, first, tc.in)
			assert.Equal(t, tc.last, last, tc.in)
			assert.Equal(t, tc.totl, total, tc.in)
		}
	}
}

func TestTotalLength(t *testing.T) {
	// plain response: Content-Length wins
	resp := &Response{Header: http.Header{}, ContentLength: 1234}
	assert.Equal(t, int64(1234), totalLength(resp))

	// ranged response: the Content-Range total wins over Content-Length
	resp = &Response{
		Header:        http.Header{"Content-Range": {"bytes 500-999/4000"}},
		ContentLength: 500,
	}
	assert.Equal(t, int64(4000), totalLength(resp))

	// unknown total: first + Content-Length
	resp = &Response{
		Header:        http.Header{"Content-Range": {"bytes 500-999/*"}},
		ContentLength: 500,
	}
	assert.Equal(t, int64(1000), totalLength(resp))

	// nothing to go by
	resp = &Response{Header: http.Header{}, ContentLength: -1}
	assert.Equal(t, int64(0), totalLength(resp))
}

func TestIsChunked(t *testing.T) {
	assert.True(t, isChunked(&Response{Header: http.Header{}, ContentLength: -1}))
	assert.False(t, isChunked(&Response{Header: http.Header{}, ContentLength: 0}))
	assert.False(t, isChunked(&Response{Header: http.Header{}, ContentLength: 10}))
	assert.True(t, isChunked(&Response{
		Header:        http.Header{"Transfer-Encoding": {"chunked"}},
		ContentLength: -1,
	}))
	assert.False(t, isChunked(&Response{
		Header:        http.Header{"Content-Range": {"bytes 0-9/100"}},
		ContentLength: -1,
	}))
}

func TestRangeSupported(t *testing.T) {
	assert.True(t, rangeSupported(&Response{Header: http.Header{"Accept-Ranges": {"bytes"}}}))
	assert.True(t, rangeSupported(&Response{Header: http.Header{"Accept-Ranges": {"Bytes"}}}))
	assert.True(t, rangeSupported(&Response{Header: http.Header{"Content-Range": {"bytes 5-9/10"}}}))
	assert.False(t, rangeSupported(&Response{Header: http.Header{"Accept-Ranges": {"none"}}}))
	assert.False(t, rangeSupported(&Response{Header: http.Header{}}))
}

func TestFilenameOf(t *testing.T) {
	resp := &Response{Header: http.Header{}}
	assert.Equal(t, "movie.mkv", filenameOf(resp, "https://host/dir/movie.mkv?sig=abc"))
	assert.Equal(t, "", filenameOf(resp, "https://host/"))
	assert.Equal(t, "with space.txt", filenameOf(resp, "https://host/with%20space.txt"))

	resp = &Response{Header: http.Header{
		"Content-Disposition": {`attachment; filename="report.pdf"`},
	}}
	assert.Equal(t, "report.pdf", filenameOf(resp, "https://host/download"))

	// RFC 5987 encoded name
	resp = &Response{Header: http.Header{
		"Content-Disposition": {`attachment; filename*=UTF-8''na%C3%AFve.txt`},
	}}
	assert.Equal(t, "naïve.txt", filenameOf(resp, "https://host/download"))
}
