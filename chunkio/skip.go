package chunkio

import "io"

// Skip advances r past size bytes without materializing them, preferring a
// native seek and falling back to reading into a scratch buffer of
// chunksize bytes. size < 0 skips to the end of the source. Returns the
// number of bytes actually skipped, which is short only when the source
// ends first.
func Skip(r io.Reader, size int64, chunksize int, progress Progress) (int64, error) {
	if size == 0 {
		return 0, nil
	}
	if s, ok := r.(io.Seeker); ok {
		if n, err := skipSeek(s, size); err == nil {
			if progress != nil && n > 0 {
				progress(n)
			}
			return n, nil
		}
		// seek refused; discard instead
	}
	if chunksize <= 0 {
		chunksize = DefaultChunkSize
	}
	buf := make([]byte, chunksize)
	var total int64
	for size < 0 || total < size {
		b := buf
		if size > 0 && size-total < int64(len(b)) {
			b = b[:size-total]
		}
		n, err := r.Read(b)
		if n > 0 {
			total += int64(n)
			if progress != nil {
				progress(int64(n))
			}
		}
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func skipSeek(s io.Seeker, size int64) (int64, error) {
	cur, err := s.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	end, err := s.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	// seeking past the end succeeds on most sources, so clamp there instead
	// of reporting bytes that do not exist
	target := end
	if size > 0 && cur+size < end {
		target = cur + size
	}
	if target != end {
		if _, err := s.Seek(target, io.SeekStart); err != nil {
			return 0, err
		}
	}
	return target - cur, nil
}
