package httpfile

import (
	"context"
	"io"
	"net/http"
	"sync"

	"github.com/go-resty/resty/v2"
)

// Response is the backend-neutral view of one streaming GET response.
// ContentLength is -1 when the transport did not declare one.
type Response struct {
	StatusCode    int
	Header        http.Header
	ContentLength int64
	Body          io.ReadCloser
}

// Backend opens a streaming GET request against url with the given headers.
// Implementations must return an error (not a Response) for non-success
// statuses, and must not buffer the body. Connection pooling and timeouts
// are the backend's concern; the reader only ever holds one response open
// at a time.
type Backend interface {
	Open(ctx context.Context, url string, header http.Header) (*Response, error)
}

// ClientBackend is a Backend over net/http. A nil Client uses
// http.DefaultClient.
type ClientBackend struct {
	Client *http.Client
}

func (b *ClientBackend) Open(ctx context.Context, url string, header http.Header) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for k, vs := range header {
		req.Header[k] = vs
	}
	c := b.Client
	if c == nil {
		c = http.DefaultClient
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}
	return &Response{
		StatusCode:    resp.StatusCode,
		Header:        resp.Header,
		ContentLength: resp.ContentLength,
		Body:          resp.Body,
	}, nil
}

var defaultBackend = sync.OnceValue(func() Backend {
	return &ClientBackend{}
})

// DefaultBackend returns the shared net/http backend, built on first use.
func DefaultBackend() Backend {
	return defaultBackend()
}

// RestyBackend is a Backend over a resty client running in no-parse mode,
// so bodies stream instead of being read into memory.
type RestyBackend struct {
	client *resty.Client
}

// NewRestyBackend wraps c, switching it to streaming responses. A nil c
// gets a fresh client.
func NewRestyBackend(c *resty.Client) *RestyBackend {
	if c == nil {
		c = resty.New()
	}
	c.SetDoNotParseResponse(true)
	return &RestyBackend{client: c}
}

func (b *RestyBackend) Open(ctx context.Context, url string, header http.Header) (*Response, error) {
	resp, err := b.client.R().
		SetContext(ctx).
		SetHeaderMultiValues(header).
		Get(url)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() > 299 {
		resp.RawBody().Close()
		return nil, &StatusError{Code: resp.StatusCode(), Status: resp.Status()}
	}
	length := int64(-1)
	if resp.RawResponse != nil {
		length = resp.RawResponse.ContentLength
	}
	return &Response{
		StatusCode:    resp.StatusCode(),
		Header:        resp.Header(),
		ContentLength: length,
		Body:          resp.RawBody(),
	}, nil
}
