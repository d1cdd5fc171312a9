package objcodec

import (
	"errors"
	"fmt"
	"sync"

	"github.com/andreyvit/souldb/datachan"
)

// DecodeFunc turns the fields of a decoded object into its concrete value.
type DecodeFunc func(fields map[string]any) (any, error)

// Registry maps object aliases to decoders. A nil *Registry knows no
// aliases. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	decoders map[string]DecodeFunc

	// Opaque makes unknown aliases decode as *Object instead of failing.
	Opaque bool
}

func NewRegistry() *Registry {
	return &Registry{decoders: make(map[string]DecodeFunc)}
}

// Register installs the decoder for alias, replacing any previous one.
func (reg *Registry) Register(alias string, fn DecodeFunc) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if reg.decoders == nil {
		reg.decoders = make(map[string]DecodeFunc)
	}
	reg.decoders[alias] = fn
}

func (reg *Registry) Lookup(alias string) DecodeFunc {
	if reg == nil {
		return nil
	}
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return reg.decoders[alias]
}

func (reg *Registry) resolve(alias string, fields map[string]any) (any, error) {
	fn := reg.Lookup(alias)
	if fn == nil {
		if reg != nil && reg.Opaque {
			return &Object{Alias: alias, Fields: fields}, nil
		}
		return nil, &AliasError{Alias: alias, Err: ErrUnknownAlias}
	}
	v, err := fn(fields)
	if err != nil {
		return nil, &AliasError{Alias: alias, Err: err}
	}
	return v, nil
}

// AliasError reports an object whose alias could not be turned into a value.
// The object's bytes have been fully consumed, so the stream stays usable.
type AliasError struct {
	Alias string
	Err   error
}

func (e *AliasError) Error() string {
	return fmt.Sprintf("object %q: %v", e.Alias, e.Err)
}

func (e *AliasError) Unwrap() error {
	return e.Err
}

// StreamIntact reports whether a decoding error left the reader positioned
// right after the failed value, i.e. decoding of subsequent values can
// proceed.
func StreamIntact(err error) bool {
	var ae *AliasError
	return err == nil || errors.As(err, &ae)
}

// Decode reads one value. If an object alias can't be resolved, the whole
// value is still consumed, the unresolved object is replaced by nil, and the
// first such *AliasError is returned alongside the partial value. Any other
// error means the reader position is undefined.
func Decode(r *datachan.Reader, reg *Registry) (any, error) {
	var d decoder
	d.r, d.reg = r, reg
	v, err := d.value()
	if err != nil {
		return nil, err
	}
	return v, d.soft
}

// DecodeEntries reads n key/value pairs, with the same error semantics as
// Decode.
func DecodeEntries(r *datachan.Reader, reg *Registry, n int) (map[string]any, error) {
	var d decoder
	d.r, d.reg = r, reg
	m, err := d.entries(n)
	if err != nil {
		return nil, err
	}
	return m, d.soft
}

type decoder struct {
	r    *datachan.Reader
	reg  *Registry
	soft error
}

func (d *decoder) value() (any, error) {
	b, err := d.r.ReadUint8()
	if err != nil {
		return nil, err
	}
	switch tag := Tag(b); tag {
	case TagNull:
		return nil, nil
	case TagTrue:
		return true, nil
	case TagFalse:
		return false, nil
	case TagByte:
		return d.r.ReadInt8()
	case TagChar:
		v, err := d.r.ReadUint16()
		return Char(v), err
	case TagShort:
		return d.r.ReadInt16()
	case TagInt:
		return d.r.ReadInt32()
	case TagLong:
		return d.r.ReadInt64()
	case TagFloat:
		return d.r.ReadFloat32()
	case TagDouble:
		return d.r.ReadFloat64()
	case TagString:
		return d.r.ReadUTF()
	case TagSmallList, TagList:
		n, err := d.count(tag == TagSmallList)
		if err != nil {
			return nil, err
		}
		list := make([]any, 0, min(n, 1024))
		for i := 0; i < n; i++ {
			v, err := d.value()
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			list = append(list, v)
		}
		return list, nil
	case TagSmallMap, TagMap:
		n, err := d.count(tag == TagSmallMap)
		if err != nil {
			return nil, err
		}
		return d.entries(n)
	case TagSmallObject, TagObject:
		n, err := d.count(tag == TagSmallObject)
		if err != nil {
			return nil, err
		}
		alias, err := d.r.ReadUTF()
		if err != nil {
			return nil, err
		}
		fields, err := d.entries(n)
		if err != nil {
			return nil, fmt.Errorf("%s%w", alias, err)
		}
		v, err := d.reg.resolve(alias, fields)
		if err != nil && d.soft == nil {
			d.soft = err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownTag, b)
	}
}

func (d *decoder) count(small bool) (int, error) {
	if small {
		n, err := d.r.ReadUint8()
		return int(n), err
	}
	n, err := d.r.ReadInt32()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: %d", ErrNegativeCount, n)
	}
	return int(n), nil
}

func (d *decoder) entries(n int) (map[string]any, error) {
	m := make(map[string]any, min(n, 1024))
	for i := 0; i < n; i++ {
		k, err := d.r.ReadUTF()
		if err != nil {
			return nil, err
		}
		v, err := d.value()
		if err != nil {
			return nil, fmt.Errorf(".%s: %w", k, err)
		}
		m[k] = v
	}
	return m, nil
}
