package httpfile

import (
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
)

// parseContentRange parses a "Content-Range: bytes first-last/total" header.
// total is -1 when the server reports "*".
func parseContentRange(h http.Header) (first, last, total int64, ok bool) {
	v := h.Get("Content-Range")
	spec, found := strings.CutPrefix(v, "bytes ")
	if !found {
		return 0, 0, 0, false
	}
	rng, tot, found := strings.Cut(spec, "/")
	if !found {
		return 0, 0, 0, false
	}
	lo, hi, found := strings.Cut(rng, "-")
	if !found {
		return 0, 0, 0, false
	}
	var err error
	if first, err = strconv.ParseInt(strings.TrimSpace(lo), 10, 64); err != nil {
		return 0, 0, 0, false
	}
	if last, err = strconv.ParseInt(strings.TrimSpace(hi), 10, 64); err != nil {
		return 0, 0, 0, false
	}
	if tot = strings.TrimSpace(tot); tot == "*" {
		total = -1
	} else if total, err = strconv.ParseInt(tot, 10, 64); err != nil {
		return 0, 0, 0, false
	}
	return first, last, total, true
}

// totalLength derives the total resource length from a response. For ranged
// responses the Content-Range total wins; an open-ended range with an
// unknown total falls back to first + Content-Length. Returns 0 when the
// length cannot be determined (chunked transfer).
func totalLength(resp *Response) int64 {
	if first, _, total, ok := parseContentRange(resp.Header); ok {
		if total >= 0 {
			return total
		}
		if resp.ContentLength >= 0 {
			return first + resp.ContentLength
		}
		return 0
	}
	if resp.ContentLength >= 0 {
		return resp.ContentLength
	}
	return 0
}

// rangeSupported reports whether the response indicates the server honors
// byte-range requests, either by advertising Accept-Ranges or by having
// answered one.
func rangeSupported(resp *Response) bool {
	if strings.EqualFold(strings.TrimSpace(resp.Header.Get("Accept-Ranges")), "bytes") {
		return true
	}
	_, _, _, ok := parseContentRange(resp.Header)
	return ok
}

// isChunked reports whether the response has no determinable length.
func isChunked(resp *Response) bool {
	for _, te := range resp.Header.Values("Transfer-Encoding") {
		if strings.Contains(strings.ToLower(te), "chunked") {
			return true
		}
	}
	if resp.ContentLength >= 0 {
		return false
	}
	_, _, total, ok := parseContentRange(resp.Header)
	return !ok || total < 0
}

// filenameOf derives a file name for diagnostics, preferring the
// Content-Disposition filename over the last URL path segment.
func filenameOf(resp *Response, rawurl string) string {
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			if name := params["filename"]; name != "" {
				return name
			}
		}
	}
	u, err := url.Parse(rawurl)
	if err != nil {
		return ""
	}
	name := path.Base(u.Path)
	if name == "/" || name == "." {
		return ""
	}
	if unescaped, err := url.PathUnescape(name); err == nil {
		return unescaped
	}
	return name
}
