package mmap

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func TestOptionsHas(t *testing.T) {
	var o Options = SequentialAccess | Prefault
	if !o.Has(Prefault) || o.Has(Writable) {
		t.Fatalf("Options.Has returned unexpected results for %v", o)
	}
}

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")
	ensure(os.WriteFile(path, []byte("hello, mapping"), 0o644))

	m := must(Open(path, SequentialAccess))
	if got := string(m.Bytes()); got != "hello, mapping" {
		t.Fatalf("Bytes = %q", got)
	}
	if m.Len() != 14 {
		t.Fatalf("Len = %d, wanted 14", m.Len())
	}
	ensure(m.Close())
	ensure(m.Close())
	if m.Bytes() != nil {
		t.Fatalf("Bytes after Close = %v, wanted nil", m.Bytes())
	}
}

func TestOpen_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.bin")
	ensure(os.WriteFile(path, nil, 0o644))

	m := must(Open(path, 0))
	if m.Len() != 0 {
		t.Fatalf("Len = %d, wanted 0", m.Len())
	}
	ensure(m.Close())
}

func TestOpen_Missing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.bin"), 0)
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("Open = %v, wanted ErrNotExist", err)
	}
}

func TestMmapWritableAndSync(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rw.bin")
	f := must(os.Create(path))
	defer f.Close()

	const size = 4096
	ensure(f.Truncate(size))

	b := must(Mmap(f, size, Writable))
	if len(b) != size {
		t.Fatalf("len(mmap) = %d, wanted %d", len(b), size)
	}
	b[0] = 0x42
	ensure(Fdatasync(f, b))
	ensure(Munmap(b))

	data := must(os.ReadFile(path))
	if data[0] != 0x42 {
		t.Fatalf("byte 0 = %x after sync, wanted 42", data[0])
	}
}

func TestMmap_InvalidSize(t *testing.T) {
	f := must(os.Create(filepath.Join(t.TempDir(), "x.bin")))
	defer f.Close()
	if _, err := Mmap(f, 0, 0); err == nil {
		t.Fatalf("Mmap of 0 bytes succeeded")
	}
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func ensure(err error) {
	if err != nil {
		panic(err)
	}
}
