package datachan

import (
	"encoding/binary"
	"math"
)

const DefaultBufferSize = 4096

// Writer buffers writes to a Channel.
//
// The buffer covers the channel window [base, base+len(buf)); the cursor is
// base+off. Seeking inside the window only moves the cursor, so patching a
// count written a few bytes back does not hit the channel.
type Writer struct {
	ch   Channel
	buf  []byte
	base int64
	off  int
}

func NewWriter(ch Channel) *Writer {
	return NewWriterSize(ch, DefaultBufferSize)
}

func NewWriterSize(ch Channel, size int) (w *Writer) {
	if size < 16 {
		size = 16
	}
	w = &Writer{ch: ch, buf: make([]byte, 0, size)}
	w.base, _ = ch.Position()
	return w
}

func (w *Writer) Position() int64 {
	return w.base + int64(w.off)
}

// SetPosition moves the cursor. Positions inside the buffered window are
// handled without flushing.
func (w *Writer) SetPosition(pos int64) error {
	if pos < 0 {
		return ErrNegativeOffset
	}
	if pos >= w.base && pos <= w.base+int64(len(w.buf)) {
		w.off = int(pos - w.base)
		return nil
	}
	if err := w.Flush(); err != nil {
		return err
	}
	w.base = pos
	return nil
}

// Truncate discards everything at and after the cursor.
func (w *Writer) Truncate() error {
	if err := w.Flush(); err != nil {
		return err
	}
	return w.ch.Truncate(w.base)
}

// Flush writes the buffered window to the channel. Afterwards the window is
// empty and starts at the cursor.
func (w *Writer) Flush() error {
	if len(w.buf) == 0 {
		return nil
	}
	if err := w.ch.SetPosition(w.base); err != nil {
		return err
	}
	for data := w.buf; len(data) > 0; {
		n, err := w.ch.Write(data)
		if err != nil {
			return err
		}
		data = data[n:]
	}
	w.base += int64(w.off)
	w.buf = w.buf[:0]
	w.off = 0
	return nil
}

// reserve returns a slice of n writable bytes at the cursor and advances it.
// n must not exceed the buffer capacity.
func (w *Writer) reserve(n int) ([]byte, error) {
	if w.off+n > cap(w.buf) {
		if err := w.Flush(); err != nil {
			return nil, err
		}
	}
	start := w.off
	w.off += n
	if w.off > len(w.buf) {
		w.buf = w.buf[:w.off]
	}
	return w.buf[start:w.off], nil
}

func (w *Writer) Write(p []byte) (int, error) {
	total := len(p)
	for len(p) > 0 {
		if w.off == cap(w.buf) {
			if err := w.Flush(); err != nil {
				return total - len(p), err
			}
		}
		n := min(len(p), cap(w.buf)-w.off)
		b, _ := w.reserve(n)
		copy(b, p[:n])
		p = p[n:]
	}
	return total, nil
}

func (w *Writer) WriteBool(v bool) error {
	if v {
		return w.WriteUint8(1)
	}
	return w.WriteUint8(0)
}

func (w *Writer) WriteUint8(v uint8) error {
	b, err := w.reserve(1)
	if err != nil {
		return err
	}
	b[0] = v
	return nil
}

func (w *Writer) WriteInt8(v int8) error {
	return w.WriteUint8(uint8(v))
}

func (w *Writer) WriteUint16(v uint16) error {
	b, err := w.reserve(2)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint16(b, v)
	return nil
}

func (w *Writer) WriteInt16(v int16) error {
	return w.WriteUint16(uint16(v))
}

func (w *Writer) WriteUint32(v uint32) error {
	b, err := w.reserve(4)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint32(b, v)
	return nil
}

func (w *Writer) WriteInt32(v int32) error {
	return w.WriteUint32(uint32(v))
}

func (w *Writer) WriteUint64(v uint64) error {
	b, err := w.reserve(8)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint64(b, v)
	return nil
}

func (w *Writer) WriteInt64(v int64) error {
	return w.WriteUint64(uint64(v))
}

func (w *Writer) WriteFloat32(v float32) error {
	return w.WriteUint32(math.Float32bits(v))
}

func (w *Writer) WriteFloat64(v float64) error {
	return w.WriteUint64(math.Float64bits(v))
}

// WriteUTF writes a 2-byte length followed by the modified UTF-8 encoding of s.
func (w *Writer) WriteUTF(s string) error {
	enc, err := AppendModifiedUTF8(nil, s)
	if err != nil {
		return err
	}
	if err := w.WriteUint16(uint16(len(enc))); err != nil {
		return err
	}
	_, err = w.Write(enc)
	return err
}
