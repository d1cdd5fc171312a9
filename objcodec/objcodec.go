// Package objcodec encodes trees of loosely-typed values with a one-byte type
// tag per value.
//
// Supported Go types:
//
//   - nil
//   - bool
//   - int8, Char, int16, int32, int64, float32, float64
//   - string (2-byte length prefixed modified UTF-8)
//   - []any, map[string]any
//   - Serializable, and *Object for opaque self-describing objects
//
// Lists, maps and objects come in two flavours: a "small" one with a 1-byte
// element count (up to 255 elements) and a "large" one with a 4-byte count.
// The encoder picks the smallest one that fits. Map keys are always strings.
//
// Objects are written like maps, with an alias string identifying the
// concrete kind written between the count and the entries. On decode, the
// alias is resolved through a Registry.
package objcodec

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/andreyvit/souldb/datachan"
)

// Tag identifies the kind of an encoded value. Values are part of the file
// format and must never be reordered.
type Tag byte

const (
	TagNull Tag = iota
	TagTrue
	TagFalse
	TagByte
	TagChar
	TagShort
	TagInt
	TagLong
	TagFloat
	TagDouble
	TagString
	TagSmallList
	TagList
	TagSmallMap
	TagMap
	TagSmallObject
	TagObject

	tagCount
)

var tagNames = [tagCount]string{
	"null", "true", "false", "byte", "char", "short", "int", "long", "float",
	"double", "string", "small list", "list", "small map", "map", "small object", "object",
}

func (t Tag) String() string {
	if t < tagCount {
		return tagNames[t]
	}
	return fmt.Sprintf("tag(%d)", byte(t))
}

// Char is a 16-bit unsigned character value, distinct from int16.
type Char uint16

var (
	ErrUnknownTag      = errors.New("unknown type tag")
	ErrUnknownAlias    = errors.New("no decoder registered for alias")
	ErrUnsupportedType = errors.New("unsupported type")
	ErrNegativeCount   = errors.New("negative element count")
)

// Serializable is implemented by values that encode as self-describing
// objects.
type Serializable interface {
	SerializationAlias() string
	SerializeFields() (map[string]any, error)
}

// Object is a self-describing object kept in its serialized form.
type Object struct {
	Alias  string
	Fields map[string]any
}

func (o *Object) SerializationAlias() string {
	return o.Alias
}

func (o *Object) SerializeFields() (map[string]any, error) {
	return o.Fields, nil
}

// Encode writes v to w. On error, w may contain a partially written value;
// the caller is responsible for rewinding.
func Encode(w *datachan.Writer, v any) error {
	switch v := v.(type) {
	case nil:
		return writeTag(w, TagNull)
	case bool:
		if v {
			return writeTag(w, TagTrue)
		}
		return writeTag(w, TagFalse)
	case int8:
		return twoStep(writeTag(w, TagByte), w.WriteInt8, v)
	case Char:
		return twoStep(writeTag(w, TagChar), w.WriteUint16, uint16(v))
	case int16:
		return twoStep(writeTag(w, TagShort), w.WriteInt16, v)
	case int32:
		return twoStep(writeTag(w, TagInt), w.WriteInt32, v)
	case int64:
		return twoStep(writeTag(w, TagLong), w.WriteInt64, v)
	case float32:
		return twoStep(writeTag(w, TagFloat), w.WriteFloat32, v)
	case float64:
		return twoStep(writeTag(w, TagDouble), w.WriteFloat64, v)
	case string:
		return twoStep(writeTag(w, TagString), w.WriteUTF, v)
	case []any:
		if err := writeCount(w, TagSmallList, TagList, len(v)); err != nil {
			return err
		}
		for i, item := range v {
			if err := Encode(w, item); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
		return nil
	case map[string]any:
		if err := writeCount(w, TagSmallMap, TagMap, len(v)); err != nil {
			return err
		}
		return EncodeEntries(w, v)
	case Serializable:
		alias := v.SerializationAlias()
		fields, err := v.SerializeFields()
		if err != nil {
			return fmt.Errorf("%s: %w", alias, err)
		}
		if err := writeCount(w, TagSmallObject, TagObject, len(fields)); err != nil {
			return err
		}
		if err := w.WriteUTF(alias); err != nil {
			return err
		}
		if err := EncodeEntries(w, fields); err != nil {
			return fmt.Errorf("%s%w", alias, err)
		}
		return nil
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedType, v)
	}
}

// EncodeEntries writes the key/value pairs of m (without a count), sorted
// by key so that equal maps produce equal bytes.
func EncodeEntries(w *datachan.Writer, m map[string]any) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if err := w.WriteUTF(k); err != nil {
			return err
		}
		if err := Encode(w, m[k]); err != nil {
			return fmt.Errorf(".%s: %w", k, err)
		}
	}
	return nil
}

func writeTag(w *datachan.Writer, tag Tag) error {
	return w.WriteUint8(byte(tag))
}

func twoStep[T any](err error, write func(T) error, v T) error {
	if err != nil {
		return err
	}
	return write(v)
}

func writeCount(w *datachan.Writer, small, large Tag, n int) error {
	if n <= math.MaxUint8 {
		if err := writeTag(w, small); err != nil {
			return err
		}
		return w.WriteUint8(uint8(n))
	}
	if n > math.MaxInt32 {
		return fmt.Errorf("%w: %d elements", ErrUnsupportedType, n)
	}
	if err := writeTag(w, large); err != nil {
		return err
	}
	return w.WriteInt32(int32(n))
}
