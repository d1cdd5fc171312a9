package mmap

import "os"

// Fdatasync flushes the data written to f (and to mapping, an optional
// writable mapping of f) to stable storage, skipping metadata such as
// modification time where the platform allows.
//
// An error here cannot be recovered from: many file systems mark dirty pages
// as clean after a failed sync, so retrying may report success without the
// data ever reaching the disk. Treat the file as lost.
func Fdatasync(f *os.File, mapping []byte) error {
	return fdatasync(f, mapping)
}
