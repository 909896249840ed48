// Package blockcache maintains block-granular local copies of remote HTTP
// resources. Only the blocks a caller actually reads are fetched, through a
// pooled httpfile.Reader; download progress survives restarts via a .part
// sidecar, so interrupted transfers resume instead of starting over.
package blockcache

import (
	"crypto/sha256"
	"encoding/base64"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring"

	"github.com/webmount/httpfile"
)

// DefaultBlockSize is the fetch granularity for managers that don't set
// their own.
const DefaultBlockSize = 64 * 1024

const (
	readerIdle   = time.Minute
	reapInterval = 10 * time.Second
)

// Manager hands out Files and reaps their idle connections. Exported
// fields must be set before the first Open.
type Manager struct {
	// Backend performs range requests. Nil means httpfile.DefaultBackend().
	Backend httpfile.Backend

	// Headers are sent with every range request.
	Headers http.Header

	// TmpDir is where Open places local copies. Defaults to os.TempDir().
	TmpDir string

	// BlockSize is the fetch granularity for new files. Resumed files keep
	// the block size recorded in their sidecar.
	BlockSize int64

	// Logger receives progress messages; nil silences them.
	Logger *log.Logger

	mu       sync.RWMutex
	open     map[[32]byte]*File
	stop     chan struct{}
	stopOnce sync.Once
}

// NewManager returns a manager with defaults and starts its reaper.
func NewManager() *Manager {
	m := &Manager{
		TmpDir:    os.TempDir(),
		BlockSize: DefaultBlockSize,
		Logger:    log.Default(),
		open:      make(map[[32]byte]*File),
		stop:      make(chan struct{}),
	}
	go m.reapLoop()
	return m
}

func (m *Manager) logf(format string, args ...any) {
	if m.Logger != nil {
		m.Logger.Printf(format, args...)
	}
}

func (m *Manager) backend() httpfile.Backend {
	if m.Backend != nil {
		return m.Backend
	}
	return httpfile.DefaultBackend()
}

// Open returns the file for url, storing the local copy under TmpDir at a
// name derived from the URL hash. Repeated opens of the same URL share one
// File.
func (m *Manager) Open(url string) (*File, error) {
	hash := sha256.Sum256([]byte(url))
	name := "remote-" + base64.RawURLEncoding.EncodeToString(hash[:]) + ".bin"
	return m.OpenTo(url, filepath.Join(m.TmpDir, name))
}

// OpenTo is Open with an explicit local path. An existing local file with a
// .part sidecar resumes; one without a sidecar is taken to be complete.
func (m *Manager) OpenTo(url, path string) (*File, error) {
	hash := sha256.Sum256([]byte(url))

	m.mu.RLock()
	f, ok := m.open[hash]
	m.mu.RUnlock()
	if ok {
		return f, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok = m.open[hash]; ok {
		return f, nil
	}

	blockSize := m.BlockSize
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	f = &File{
		mgr:     m,
		url:     url,
		path:    path,
		hash:    hash,
		status:  roaring.New(),
		blkSize: blockSize,
	}
	local, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, err
	}
	f.local = local

	if err := f.readPart(); err == nil {
		// resuming: the local file was truncated to full size when the
		// download first learned it
		if fi, serr := local.Stat(); serr == nil && fi.Size() > 0 {
			f.size = fi.Size()
			f.hasSize = true
		}
	} else if fi, serr := local.Stat(); serr == nil && fi.Size() > 0 {
		f.complete = true
		f.size = fi.Size()
		f.hasSize = true
	}

	m.open[hash] = f
	return f, nil
}

func (m *Manager) forget(f *File) {
	m.mu.Lock()
	delete(m.open, f.hash)
	m.mu.Unlock()
}

// Close stops the reaper. Open files stay usable and must be closed by
// their owners.
func (m *Manager) Close() error {
	m.stopOnce.Do(func() { close(m.stop) })
	return nil
}

func (m *Manager) reapLoop() {
	t := time.NewTicker(reapInterval)
	defer t.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-t.C:
			m.reap(time.Now())
		}
	}
}

func (m *Manager) reap(now time.Time) {
	m.mu.RLock()
	files := make([]*File, 0, len(m.open))
	for _, f := range m.open {
		files = append(files, f)
	}
	m.mu.RUnlock()

	for _, f := range files {
		f.dropIdleReader(now)
	}
}
