package datachan

import (
	"encoding/binary"
	"io"
	"math"
)

// Reader buffers reads from a Channel.
//
// The buffer holds the channel window [base, base+len(buf)) and the cursor
// is base+rd. The underlying channel cursor always sits at the end of the
// window.
type Reader struct {
	ch   Channel
	buf  []byte
	base int64
	rd   int
	str  []byte
}

func NewReader(ch Channel) *Reader {
	return NewReaderSize(ch, DefaultBufferSize)
}

func NewReaderSize(ch Channel, size int) *Reader {
	if size < 16 {
		size = 16
	}
	r := &Reader{ch: ch, buf: make([]byte, 0, size)}
	r.base, _ = ch.Position()
	return r
}

func (r *Reader) Position() int64 {
	return r.base + int64(r.rd)
}

// SetPosition moves the cursor, refilling the buffer lazily if pos falls
// outside the buffered window.
func (r *Reader) SetPosition(pos int64) error {
	if pos < 0 {
		return ErrNegativeOffset
	}
	if pos >= r.base && pos < r.base+int64(len(r.buf)) {
		r.rd = int(pos - r.base)
		return nil
	}
	if err := r.ch.SetPosition(pos); err != nil {
		return err
	}
	r.base = pos
	r.buf = r.buf[:0]
	r.rd = 0
	return nil
}

// Remaining returns the number of bytes between the cursor and the end of
// the channel.
func (r *Reader) Remaining() (int64, error) {
	size, err := r.ch.Size()
	if err != nil {
		return 0, err
	}
	return size - r.Position(), nil
}

func (r *Reader) HasRemaining() (bool, error) {
	if r.rd < len(r.buf) {
		return true, nil
	}
	n, err := r.Remaining()
	return n > 0, err
}

// require makes sure at least n bytes are buffered after the cursor. n must
// not exceed the buffer capacity. Returns io.ErrUnexpectedEOF (or io.EOF if
// nothing at all is available) when the channel ends first.
func (r *Reader) require(n int) error {
	avail := len(r.buf) - r.rd
	if avail >= n {
		return nil
	}
	// compact
	copy(r.buf[:avail], r.buf[r.rd:])
	r.base += int64(r.rd)
	r.rd = 0
	r.buf = r.buf[:avail]

	for len(r.buf) < n {
		m, err := r.ch.Read(r.buf[len(r.buf):cap(r.buf)])
		r.buf = r.buf[:len(r.buf)+m]
		if err == io.EOF || (err == nil && m == 0) {
			break
		} else if err != nil {
			return err
		}
	}
	if len(r.buf) < n {
		if len(r.buf) == 0 {
			return io.EOF
		}
		return io.ErrUnexpectedEOF
	}
	return nil
}

func (r *Reader) take(n int) ([]byte, error) {
	if err := r.require(n); err != nil {
		return nil, err
	}
	b := r.buf[r.rd : r.rd+n]
	r.rd += n
	return b, nil
}

// ReadFull fills p entirely or fails with io.ErrUnexpectedEOF.
func (r *Reader) ReadFull(p []byte) error {
	for len(p) > 0 {
		if err := r.require(1); err != nil {
			if err == io.EOF {
				return io.ErrUnexpectedEOF
			}
			return err
		}
		n := copy(p, r.buf[r.rd:])
		r.rd += n
		p = p[n:]
	}
	return nil
}

func (r *Reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := r.require(1); err != nil {
		return 0, err
	}
	n := copy(p, r.buf[r.rd:])
	r.rd += n
	return n, nil
}

// Skip advances the cursor by up to n bytes and returns how many were
// skipped; fewer means the channel ended.
func (r *Reader) Skip(n int64) (int64, error) {
	var skipped int64
	for n > 0 {
		if err := r.require(1); err == io.EOF {
			break
		} else if err != nil {
			return skipped, err
		}
		k := min(n, int64(len(r.buf)-r.rd))
		r.rd += int(k)
		skipped += k
		n -= k
	}
	return skipped, nil
}

func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadUint8()
	return v != 0, err
}

func (r *Reader) ReadUint8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) ReadInt8() (int8, error) {
	v, err := r.ReadUint8()
	return int8(v), err
}

func (r *Reader) ReadUint16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *Reader) ReadInt16() (int16, error) {
	v, err := r.ReadUint16()
	return int16(v), err
}

func (r *Reader) ReadUint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *Reader) ReadInt32() (int32, error) {
	v, err := r.ReadUint32()
	return int32(v), err
}

func (r *Reader) ReadUint64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (r *Reader) ReadInt64() (int64, error) {
	v, err := r.ReadUint64()
	return int64(v), err
}

func (r *Reader) ReadFloat32() (float32, error) {
	v, err := r.ReadUint32()
	return math.Float32frombits(v), err
}

func (r *Reader) ReadFloat64() (float64, error) {
	v, err := r.ReadUint64()
	return math.Float64frombits(v), err
}

// ReadUTF reads a string written by Writer.WriteUTF.
func (r *Reader) ReadUTF() (string, error) {
	n, err := r.ReadUint16()
	if err != nil {
		return "", err
	}
	if cap(r.str) < int(n) {
		r.str = make([]byte, n, int(n)*2)
	}
	b := r.str[:n]
	if err := r.ReadFull(b); err != nil {
		return "", err
	}
	return DecodeModifiedUTF8(b)
}
