package blockcache

import (
	"bufio"
	"encoding/binary"
	"os"
)

// The .part sidecar records the block size as a varint followed by the
// roaring bitmap of downloaded blocks. It is written to a .wpart staging
// file and renamed into place so a crash never leaves a torn sidecar.

// savePart writes the sidecar, or removes it when the file is complete.
// Caller holds mu.
func (f *File) savePart() error {
	part, staging := f.path+".part", f.path+".wpart"
	if f.complete {
		os.Remove(part)
		os.Remove(staging)
		return nil
	}
	if err := f.writeStatus(staging); err != nil {
		os.Remove(staging)
		return err
	}
	return os.Rename(staging, part)
}

func (f *File) writeStatus(path string) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := out.Write(binary.AppendVarint(nil, f.blkSize)); err != nil {
		return err
	}
	_, err = f.status.WriteTo(out)
	return err
}

// readPart restores block size and download status from the sidecar.
func (f *File) readPart() error {
	in, err := os.Open(f.path + ".part")
	if err != nil {
		return err
	}
	defer in.Close()

	r := bufio.NewReader(in)
	blkSize, err := binary.ReadVarint(r)
	if err != nil {
		return err
	}
	if _, err := f.status.ReadFrom(r); err != nil {
		f.status.Clear()
		return err
	}
	f.blkSize = blkSize
	return nil
}
