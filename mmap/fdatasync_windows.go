package mmap

import "os"

// fdatasync syncs f only; mapping is not flushed separately.
func fdatasync(f *os.File, _ []byte) error {
	return f.Sync()
}
