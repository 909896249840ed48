package blockcache

import (
	"bytes"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPayload(n int) []byte {
	buf := make([]byte, n)
	rnd := rand.New(rand.NewSource(7))
	rnd.Read(buf)
	return buf
}

type rangeServer struct {
	*httptest.Server
	requests atomic.Int32
}

func newRangeServer(t *testing.T, data []byte) *rangeServer {
	t.Helper()
	s := &rangeServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		http.ServeContent(w, r, "data.bin", time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(s.Close)
	return s
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager()
	m.TmpDir = t.TempDir()
	m.BlockSize = 1024
	m.Logger = nil
	t.Cleanup(func() { m.Close() })
	return m
}

func TestOpenAndRead(t *testing.T) {
	data := testPayload(10_000)
	srv := newRangeServer(t, data)
	mgr := newTestManager(t)

	f, err := mgr.Open(srv.URL)
	require.NoError(t, err)
	defer f.Close()

	size, err := f.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), size)

	// middle of the file: only the spanned blocks get fetched
	buf := make([]byte, 100)
	n, err := f.ReadAt(buf, 5000)
	require.NoError(t, err)
	assert.Equal(t, 100, n)
	assert.Equal(t, data[5000:5100], buf)

	// same blocks again: served locally
	before := srv.requests.Load()
	_, err = f.ReadAt(buf, 5010)
	require.NoError(t, err)
	assert.Equal(t, before, srv.requests.Load())

	// sequential read across block boundaries
	got, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestOpenShared(t *testing.T) {
	srv := newRangeServer(t, testPayload(100))
	mgr := newTestManager(t)

	f1, err := mgr.Open(srv.URL)
	require.NoError(t, err)
	defer f1.Close()
	f2, err := mgr.Open(srv.URL)
	require.NoError(t, err)
	assert.Same(t, f1, f2)
}

func TestSeek(t *testing.T) {
	data := testPayload(10_000)
	srv := newRangeServer(t, data)
	mgr := newTestManager(t)

	f, err := mgr.Open(srv.URL)
	require.NoError(t, err)
	defer f.Close()

	p, err := f.Seek(-100, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(9900), p)

	got, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, data[9900:], got)

	p, err = f.Seek(10, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(10), p)
	p, err = f.Seek(5, io.SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, int64(15), p)

	_, err = f.Seek(-1, io.SeekStart)
	assert.Error(t, err)
}

func TestReadAtTail(t *testing.T) {
	data := testPayload(2500) // final block is short
	srv := newRangeServer(t, data)
	mgr := newTestManager(t)

	f, err := mgr.Open(srv.URL)
	require.NoError(t, err)
	defer f.Close()

	buf := make([]byte, 1000)
	n, err := f.ReadAt(buf, 2000)
	require.NoError(t, err)
	assert.Equal(t, 500, n)
	assert.Equal(t, data[2000:], buf[:n])

	_, err = f.ReadAt(buf, 2500)
	assert.Equal(t, io.EOF, err)
}

func TestResume(t *testing.T) {
	data := testPayload(10_000)
	srv := newRangeServer(t, data)
	mgr := newTestManager(t)
	path := filepath.Join(t.TempDir(), "download.bin")

	f, err := mgr.OpenTo(srv.URL, path)
	require.NoError(t, err)

	// fetch the first two blocks, then stop
	buf := make([]byte, 2048)
	_, err = f.ReadAt(buf, 0)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	// partial state was persisted
	_, err = os.Stat(path + ".part")
	require.NoError(t, err)

	// reopen and finish; the first blocks are not fetched again
	srv.requests.Store(0)
	f, err = mgr.OpenTo(srv.URL, path)
	require.NoError(t, err)
	require.NoError(t, f.Complete())
	// completing again is a no-op
	require.NoError(t, f.Complete())
	require.NoError(t, f.Close())

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	// completion discards the sidecar
	_, err = os.Stat(path + ".part")
	assert.True(t, os.IsNotExist(err))
}

func TestCompleteLocalFile(t *testing.T) {
	data := testPayload(5000)
	srv := newRangeServer(t, data)
	mgr := newTestManager(t)

	// a local file without a sidecar counts as fully downloaded
	path := filepath.Join(t.TempDir(), "done.bin")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	f, err := mgr.OpenTo(srv.URL, path)
	require.NoError(t, err)
	defer f.Close()

	got, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, int32(0), srv.requests.Load())
}

func TestReadConvergesAtEnd(t *testing.T) {
	data := testPayload(100)
	srv := newRangeServer(t, data)
	mgr := newTestManager(t)

	path := filepath.Join(t.TempDir(), "done.bin")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	f, err := mgr.OpenTo(srv.URL, path)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Seek(50, io.SeekStart)
	require.NoError(t, err)

	// a tail read delivers the remainder and moves the position past it
	buf := make([]byte, 100)
	n, err := f.Read(buf)
	assert.Equal(t, 50, n)
	assert.Equal(t, data[50:], buf[:n])
	if err != nil {
		assert.Equal(t, io.EOF, err)
	}

	n, err = f.Read(buf)
	assert.Equal(t, 0, n)
	assert.Equal(t, io.EOF, err)
}

func TestPrefetch(t *testing.T) {
	data := testPayload(5000)
	srv := newRangeServer(t, data)
	mgr := newTestManager(t)

	f, err := mgr.Open(srv.URL)
	require.NoError(t, err)
	defer f.Close()

	fetched, err := f.Prefetch(10 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, 5, fetched)

	// everything local now
	srv.requests.Store(0)
	got, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, int32(0), srv.requests.Load())
}

func TestSetSize(t *testing.T) {
	data := testPayload(3000)
	srv := newRangeServer(t, data)
	mgr := newTestManager(t)

	f, err := mgr.Open(srv.URL)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, f.SetSize(int64(len(data))))
	size, err := f.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), size)
}
