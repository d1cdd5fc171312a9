// Package datachan implements seekable byte channels and buffered big-endian
// readers and writers on top of them.
//
// A Channel is a resizable, randomly-seekable sequence of bytes. Two
// implementations are provided: Buffer keeps everything in memory (and can
// wrap a read-only memory mapping), File wraps an *os.File.
//
// Reader and Writer add a fixed-size buffer and decode/encode fixed-width
// primitives in big-endian byte order, plus length-prefixed modified UTF-8
// strings (the encoding used by Java's DataOutput.writeUTF).
package datachan

import (
	"errors"
	"fmt"
	"io"
	"os"
)

var (
	ErrStringTooLong   = errors.New("encoded string too long")
	ErrMalformedString = errors.New("malformed modified UTF-8 string")
	ErrNegativeOffset  = errors.New("negative channel offset")
)

// Channel is a byte sequence with a read/write cursor.
//
// Read returns io.EOF when the cursor is at or past Size. Write at a cursor
// past Size extends the channel (the gap reads as zeros).
type Channel interface {
	io.Reader
	io.Writer
	Position() (int64, error)
	SetPosition(pos int64) error
	Size() (int64, error)
	// Truncate cuts the channel to the given size. The cursor is moved to
	// size if it was past it.
	Truncate(size int64) error
}

// Buffer is an in-memory Channel.
type Buffer struct {
	buf []byte
	pos int
}

var _ Channel = (*Buffer)(nil)

func NewBuffer(capacity int) *Buffer {
	return &Buffer{buf: make([]byte, 0, capacity)}
}

// NewBufferFrom returns a Buffer positioned at the beginning of data. The
// slice is used as is; it is only copied if the buffer needs to grow, so it's
// fine to pass a read-only mapping when only reading.
func NewBufferFrom(data []byte) *Buffer {
	return &Buffer{buf: data}
}

func (b *Buffer) Bytes() []byte {
	return b.buf
}

func (b *Buffer) Read(p []byte) (int, error) {
	if b.pos >= len(b.buf) {
		return 0, io.EOF
	}
	n := copy(p, b.buf[b.pos:])
	b.pos += n
	return n, nil
}

func (b *Buffer) Write(p []byte) (int, error) {
	end := b.pos + len(p)
	if end > len(b.buf) {
		b.buf = ensureCapacity(b.buf, end)
		old := len(b.buf)
		b.buf = b.buf[:end]
		if b.pos > old {
			clear(b.buf[old:b.pos])
		}
	}
	copy(b.buf[b.pos:], p)
	b.pos = end
	return len(p), nil
}

func (b *Buffer) Position() (int64, error) {
	return int64(b.pos), nil
}

func (b *Buffer) SetPosition(pos int64) error {
	if pos < 0 {
		return ErrNegativeOffset
	}
	b.pos = int(pos)
	return nil
}

func (b *Buffer) Size() (int64, error) {
	return int64(len(b.buf)), nil
}

func (b *Buffer) Truncate(size int64) error {
	if size < 0 {
		return ErrNegativeOffset
	}
	if int(size) < len(b.buf) {
		b.buf = b.buf[:size]
	}
	if b.pos > int(size) {
		b.pos = int(size)
	}
	return nil
}

// File adapts an *os.File to Channel.
type File struct {
	F *os.File
}

var _ Channel = File{}

func (f File) Read(p []byte) (int, error) {
	return f.F.Read(p)
}

func (f File) Write(p []byte) (int, error) {
	return f.F.Write(p)
}

func (f File) Position() (int64, error) {
	return f.F.Seek(0, io.SeekCurrent)
}

func (f File) SetPosition(pos int64) error {
	if pos < 0 {
		return ErrNegativeOffset
	}
	_, err := f.F.Seek(pos, io.SeekStart)
	return err
}

func (f File) Size() (int64, error) {
	st, err := f.F.Stat()
	if err != nil {
		return 0, err
	}
	return st.Size(), nil
}

func (f File) Truncate(size int64) error {
	pos, err := f.Position()
	if err != nil {
		return err
	}
	if err := f.F.Truncate(size); err != nil {
		return fmt.Errorf("%s: truncate to %d: %w", f.F.Name(), size, err)
	}
	if pos > size {
		return f.SetPosition(size)
	}
	return nil
}

func ensureCapacity(buf []byte, minCap int) []byte {
	c := cap(buf)
	if minCap > c {
		if c < 16 {
			c = 16
		}
		for minCap > c {
			c <<= 1
		}
		old := buf
		buf = make([]byte, len(old), c)
		copy(buf, old)
	}
	return buf
}
