package datachan

import (
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestBuffer_ReadWriteSeek(t *testing.T) {
	b := NewBuffer(4)
	must(b.Write([]byte("hello")))
	if got := string(b.Bytes()); got != "hello" {
		t.Fatalf("Bytes = %q, wanted hello", got)
	}

	ensure(b.SetPosition(8))
	must(b.Write([]byte("!")))
	deepEqual(t, b.Bytes(), []byte("hello\x00\x00\x00!"))

	ensure(b.SetPosition(1))
	var p [3]byte
	n := must(b.Read(p[:]))
	if n != 3 || string(p[:]) != "ell" {
		t.Fatalf("Read = %d %q, wanted 3 ell", n, p[:])
	}

	ensure(b.Truncate(2))
	if size := must(b.Size()); size != 2 {
		t.Fatalf("Size after Truncate = %d, wanted 2", size)
	}
	if pos := must(b.Position()); pos != 2 {
		t.Fatalf("Position after Truncate = %d, wanted 2", pos)
	}
	if _, err := b.Read(p[:]); err != io.EOF {
		t.Fatalf("Read at end = %v, wanted io.EOF", err)
	}
	if err := b.SetPosition(-1); !errors.Is(err, ErrNegativeOffset) {
		t.Fatalf("SetPosition(-1) = %v, wanted ErrNegativeOffset", err)
	}
}

func TestReaderWriter_Primitives(t *testing.T) {
	// longer than both buffers to exercise the slow paths
	large := strings.Repeat("QWERTZUIOPLKJHGFDSAYXCVBNM", 50)

	ch := NewBuffer(0)
	w := NewWriterSize(ch, 128)
	ensure(w.WriteBool(true))
	ensure(w.WriteBool(false))
	ensure(w.WriteInt8(1))
	ensure(w.WriteInt8(90))
	ensure(w.WriteUint8(250))
	ensure(w.WriteUint16('a'))
	ensure(w.WriteUint16('ž'))
	ensure(w.WriteInt16(-1000))
	ensure(w.WriteInt32(-1000))
	ensure(w.WriteInt32(math.MaxInt32))
	ensure(w.WriteInt64(math.MinInt64))
	ensure(w.WriteInt64(123456789012345))
	ensure(w.WriteFloat32(1234))
	ensure(w.WriteFloat64(1234.5))
	ensure(w.WriteUTF(large))
	ensure(w.WriteUTF("ž\x00😀"))
	ensure(w.Flush())

	ensure(ch.SetPosition(0))
	r := NewReaderSize(ch, 128)
	eq(t, must(r.ReadBool()), true)
	eq(t, must(r.ReadBool()), false)
	eq(t, must(r.ReadInt8()), int8(1))
	eq(t, must(r.ReadInt8()), int8(90))
	eq(t, must(r.ReadUint8()), uint8(250))
	eq(t, must(r.ReadUint16()), uint16('a'))
	eq(t, must(r.ReadUint16()), uint16('ž'))
	eq(t, must(r.ReadInt16()), int16(-1000))
	eq(t, must(r.ReadInt32()), int32(-1000))
	eq(t, must(r.ReadInt32()), int32(math.MaxInt32))
	eq(t, must(r.ReadInt64()), int64(math.MinInt64))
	eq(t, must(r.ReadInt64()), int64(123456789012345))
	eq(t, must(r.ReadFloat32()), float32(1234))
	eq(t, must(r.ReadFloat64()), 1234.5)
	eq(t, must(r.ReadUTF()), large)
	eq(t, must(r.ReadUTF()), "ž\x00😀")

	if more := must(r.HasRemaining()); more {
		t.Fatalf("HasRemaining = true at end of stream")
	}
	if _, err := r.ReadUint8(); err != io.EOF {
		t.Fatalf("ReadUint8 at end = %v, wanted io.EOF", err)
	}
}

func TestReader_ShortRead(t *testing.T) {
	r := NewReader(NewBufferFrom([]byte{1, 2, 3}))
	if _, err := r.ReadInt32(); err != io.ErrUnexpectedEOF {
		t.Fatalf("ReadInt32 on 3 bytes = %v, wanted io.ErrUnexpectedEOF", err)
	}
}

func TestWriter_PatchAndTruncate(t *testing.T) {
	ch := NewBuffer(0)
	w := NewWriterSize(ch, 16)
	ensure(w.WriteUint16(0))
	countPos := w.Position()
	ensure(w.WriteUint16(3))

	itemPos := w.Position()
	must(w.Write([]byte("this one spans more than one buffer")))
	ensure(w.SetPosition(itemPos))
	ensure(w.Truncate())

	must(w.Write([]byte("ok")))
	end := w.Position()
	ensure(w.SetPosition(countPos))
	ensure(w.WriteUint16(1))
	ensure(w.SetPosition(end))
	ensure(w.Flush())

	deepEqual(t, ch.Bytes(), []byte{0, 0, 0, 1, 'o', 'k'})
}

func TestReader_SetPosition(t *testing.T) {
	data := make([]byte, 100)
	for i := range data {
		data[i] = byte(i)
	}
	r := NewReaderSize(NewBufferFrom(data), 16)
	eq(t, must(r.ReadUint8()), uint8(0))
	ensure(r.SetPosition(10)) // inside window
	eq(t, must(r.ReadUint8()), uint8(10))
	ensure(r.SetPosition(90)) // outside window
	eq(t, must(r.ReadUint8()), uint8(90))
	eq(t, r.Position(), int64(91))
	eq(t, must(r.Skip(100)), int64(9))
	ensure(r.SetPosition(3))
	eq(t, must(r.ReadUint8()), uint8(3))
}

func TestFileChannel(t *testing.T) {
	f := must(os.Create(filepath.Join(t.TempDir(), "chan.bin")))
	defer f.Close()

	w := NewWriter(File{f})
	ensure(w.WriteInt32(7))
	ensure(w.WriteUTF("file"))
	ensure(w.WriteInt64(-1))
	ensure(w.SetPosition(4))
	ensure(w.Truncate())
	ensure(w.Flush())
	if size := must(File{f}.Size()); size != 4 {
		t.Fatalf("Size = %d, wanted 4", size)
	}

	ensure(File{f}.SetPosition(0))
	r := NewReader(File{f})
	eq(t, must(r.ReadInt32()), int32(7))
	if more := must(r.HasRemaining()); more {
		t.Fatalf("HasRemaining = true after truncate")
	}
}

func TestModifiedUTF8(t *testing.T) {
	tests := []struct {
		s   string
		enc []byte
	}{
		{"", nil},
		{"abc", []byte("abc")},
		{"\x00", []byte{0xC0, 0x80}},
		{"ž", []byte{0xC5, 0xBE}},
		{"€", []byte{0xE2, 0x82, 0xAC}},
		{"😀", []byte{0xED, 0xA0, 0xBD, 0xED, 0xB8, 0x80}},
	}
	for _, tt := range tests {
		enc := must(AppendModifiedUTF8(nil, tt.s))
		if len(enc) != len(tt.enc) || string(enc) != string(tt.enc) {
			t.Errorf("AppendModifiedUTF8(%q) = %x, wanted %x", tt.s, enc, tt.enc)
		}
		if n := ModifiedUTF8Len(tt.s); n != len(tt.enc) {
			t.Errorf("ModifiedUTF8Len(%q) = %d, wanted %d", tt.s, n, len(tt.enc))
		}
		if dec := must(DecodeModifiedUTF8(tt.enc)); dec != tt.s {
			t.Errorf("DecodeModifiedUTF8(%x) = %q, wanted %q", tt.enc, dec, tt.s)
		}
	}
}

func TestModifiedUTF8_Errors(t *testing.T) {
	if _, err := AppendModifiedUTF8(nil, strings.Repeat("€", 30000)); !errors.Is(err, ErrStringTooLong) {
		t.Fatalf("encoding 90000 bytes = %v, wanted ErrStringTooLong", err)
	}
	for _, bad := range [][]byte{{0xC5}, {0xC5, 0x20}, {0xE2, 0x82}, {0xF0, 0x80, 0x80}, {0x80}} {
		if _, err := DecodeModifiedUTF8(bad); !errors.Is(err, ErrMalformedString) {
			t.Errorf("DecodeModifiedUTF8(%x) = %v, wanted ErrMalformedString", bad, err)
		}
	}
}

func eq[T comparable](t testing.TB, a, e T) {
	if a != e {
		t.Helper()
		t.Errorf("** got %v, wanted %v", a, e)
	}
}

func deepEqual[T any](t testing.TB, a, e T) {
	if !reflect.DeepEqual(a, e) {
		t.Helper()
		t.Errorf("** got %v, wanted %v", a, e)
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
