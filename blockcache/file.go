package blockcache

import (
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring"

	"github.com/webmount/httpfile"
)

// prefetchRun is how many consecutive blocks one Prefetch step fetches.
const prefetchRun = 16

// File is a remote resource accessed through a block-granular local copy.
// It implements io.Reader, io.ReaderAt and io.Seeker; only the blocks a
// read touches are downloaded, and progress persists across reopens via
// the .part sidecar. Safe for concurrent use.
type File struct {
	mgr  *Manager
	url  string
	path string
	hash [32]byte

	local    *os.File
	size     int64
	hasSize  bool
	pos      int64
	complete bool
	status   *roaring.Bitmap // one bit per downloaded block
	blkSize  int64

	rd      *httpfile.Reader // pooled range reader, nil while idle
	lastUse time.Time

	mu sync.Mutex
}

// getSize learns the remote length, opening the range reader if needed.
// Caller holds mu.
func (f *File) getSize() error {
	if f.hasSize {
		return nil
	}
	if f.complete {
		fi, err := f.local.Stat()
		if err != nil {
			return err
		}
		f.size = fi.Size()
		f.hasSize = true
		return nil
	}
	if err := f.ensureReader(); err != nil {
		return err
	}
	if f.rd.Chunked() || f.rd.Size() == 0 {
		return errors.New("blockcache: remote length unknown")
	}
	f.size = f.rd.Size()
	f.hasSize = true
	return f.local.Truncate(f.size)
}

// SetSize sets the remote length for incomplete files whose server does
// not report one. No effect on complete files.
func (f *File) SetSize(size int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.complete {
		return nil
	}
	f.size = size
	f.hasSize = true
	return f.local.Truncate(size)
}

// Size returns the remote length, fetching it on first use.
func (f *File) Size() (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.getSize(); err != nil {
		return 0, err
	}
	return f.size, nil
}

// Stat returns the local file's info once its size matches the remote.
func (f *File) Stat() (os.FileInfo, error) {
	if _, err := f.Size(); err != nil {
		return nil, err
	}
	return f.local.Stat()
}

// Seek moves the position for the next Read. io.SeekEnd learns the remote
// size first if necessary.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch whence {
	case io.SeekStart:
		if offset < 0 {
			return f.pos, errors.New("blockcache: invalid seek")
		}
		f.pos = offset
	case io.SeekCurrent:
		if f.pos+offset < 0 {
			return f.pos, errors.New("blockcache: invalid seek")
		}
		f.pos += offset
	case io.SeekEnd:
		if err := f.getSize(); err != nil {
			return f.pos, err
		}
		if f.size+offset < 0 {
			return f.pos, errors.New("blockcache: invalid seek")
		}
		f.pos = f.size + offset
	default:
		return f.pos, errors.New("blockcache: invalid seek whence")
	}
	return f.pos, nil
}

// Read reads from the current position after making sure the spanned
// blocks are local.
func (f *File) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	// advance by what was delivered even alongside io.EOF, the os.File way
	n, err := f.readAt(p, f.pos)
	f.pos += int64(n)
	return n, err
}

// ReadAt reads at off after making sure the spanned blocks are local.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.readAt(p, off)
}

func (f *File) readAt(p []byte, off int64) (int, error) {
	if f.complete {
		return f.local.ReadAt(p, off)
	}
	if err := f.getSize(); err != nil {
		return 0, err
	}
	if off >= f.size {
		return 0, io.EOF
	}
	if off+int64(len(p)) > f.size {
		p = p[:f.size-off]
	}

	first := off / f.blkSize
	last := (off + int64(len(p)) - 1) / f.blkSize
	if err := f.ensureBlocks(first, last); err != nil {
		return 0, err
	}

	return f.local.ReadAt(p, off)
}

func (f *File) blockCount() int64 {
	n := f.size / f.blkSize
	if f.size%f.blkSize != 0 {
		n++
	}
	return n
}

// blockLen returns the byte length of block blk; only the final block may
// be short.
func (f *File) blockLen(blk int64) int64 {
	if start := blk * f.blkSize; start+f.blkSize > f.size {
		return f.size - start
	}
	return f.blkSize
}

// ensureReader opens or touches the pooled range reader. Caller holds mu.
func (f *File) ensureReader() error {
	if f.rd == nil {
		rd, err := httpfile.Open(f.url, &httpfile.Options{
			Backend: f.mgr.backend(),
			Headers: f.mgr.Headers,
		})
		if err != nil {
			return err
		}
		f.rd = rd
	}
	f.lastUse = time.Now()
	return nil
}

func (f *File) dropReader() {
	if f.rd != nil {
		f.rd.Close()
		f.rd = nil
	}
}

// dropIdleReader closes the pooled reader when it has not been used since
// before now-readerIdle.
func (f *File) dropIdleReader(now time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rd != nil && now.Sub(f.lastUse) > readerIdle {
		f.mgr.logf("closing idle connection for %s", f.path)
		f.dropReader()
	}
}

// ensureBlocks downloads every missing block in [first, last]. Caller
// holds mu.
func (f *File) ensureBlocks(first, last int64) error {
	if count := f.blockCount(); last >= count {
		last = count - 1
	}
	fetched := false
	for blk := first; blk <= last; {
		if f.status.Contains(uint32(blk)) {
			blk++
			continue
		}
		run := blk
		for run <= last && !f.status.Contains(uint32(run)) {
			run++
		}
		if err := f.fetchBlocks(blk, run-1); err != nil {
			if fetched {
				f.savePart()
			}
			return err
		}
		fetched = true
		blk = run
	}
	if fetched {
		f.isComplete()
		return f.savePart()
	}
	return nil
}

// fetchBlocks downloads the consecutive blocks [first, last] through the
// pooled reader. Short forward repositioning rides the open connection
// (the reader skips by discarding); anything else costs one range request.
func (f *File) fetchBlocks(first, last int64) error {
	if err := f.ensureReader(); err != nil {
		return err
	}
	start := first * f.blkSize
	if _, err := f.rd.Seek(start, io.SeekStart); err != nil {
		f.dropReader()
		return err
	}
	f.mgr.logf("fetching blocks %d-%d of %s", first, last, f.path)

	buf := make([]byte, f.blkSize)
	for blk := first; blk <= last; blk++ {
		n := f.blockLen(blk)
		if _, err := io.ReadFull(f.rd, buf[:n]); err != nil {
			f.dropReader()
			return err
		}
		if _, err := f.local.WriteAt(buf[:n], blk*f.blkSize); err != nil {
			return err
		}
		f.status.Add(uint32(blk))
	}
	return nil
}

// firstMissing returns the offset of the first missing block, or -1 when
// the file is complete. Caller holds mu.
func (f *File) firstMissing() int64 {
	if f.isComplete() {
		return -1
	}
	if err := f.getSize(); err != nil {
		f.mgr.logf("failed to get size of %s: %s", f.url, err)
		return -1
	}
	count := f.blockCount()
	for blk := int64(0); blk < count; blk++ {
		if !f.status.Contains(uint32(blk)) {
			return blk * f.blkSize
		}
	}
	return -1
}

// isComplete checks whether every block is local, latching the complete
// flag and discarding the sidecar when so. Caller holds mu.
func (f *File) isComplete() bool {
	if f.complete {
		return true
	}
	if !f.hasSize || f.status.IsEmpty() {
		return false
	}
	if int64(f.status.GetCardinality()) != f.blockCount() {
		return false
	}
	f.mgr.logf("%s is now complete", f.path)
	f.complete = true
	f.savePart()
	return true
}

// Complete downloads every missing block.
func (f *File) Complete() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.complete {
		return nil
	}
	if err := f.getSize(); err != nil {
		return err
	}
	if err := f.ensureBlocks(0, f.blockCount()-1); err != nil {
		return err
	}
	f.isComplete()
	return nil
}

// Prefetch downloads missing blocks in consecutive runs until the time
// budget is spent or the file is complete. Returns the number of blocks
// fetched. Meant for idle periods.
func (f *File) Prefetch(budget time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	deadline := time.Now().Add(budget)
	fetched := 0
	for time.Now().Before(deadline) {
		off := f.firstMissing()
		if off < 0 {
			break
		}
		first := off / f.blkSize
		last := first + prefetchRun - 1
		if count := f.blockCount(); last >= count {
			last = count - 1
		}
		if err := f.ensureBlocks(first, last); err != nil {
			return fetched, err
		}
		fetched += int(last - first + 1)
	}
	if fetched > 0 {
		f.mgr.logf("prefetched %d blocks of %s", fetched, f.path)
	}
	return fetched, nil
}

// SavePart persists the download status to the .part sidecar immediately.
func (f *File) SavePart() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.savePart()
}

// Close persists partial state and releases the connection and local file.
// If the partial state cannot be saved, the unusable partial data is
// removed.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := f.savePart()
	f.mgr.forget(f)
	f.dropReader()

	if !f.complete && err != nil {
		f.local.Close()
		os.Remove(f.path)
		return err
	}
	return f.local.Close()
}
