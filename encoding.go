package souldb

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"

	"github.com/andreyvit/souldb/datachan"
	"github.com/andreyvit/souldb/objcodec"
	"github.com/google/uuid"
)

/*
Record layout, big-endian:

	world       2×int64 (the UUID bytes)
	x, y, z     3×float64 (3×int32 in version 0)
	owner       2×int64 (all zero when free)
	createdAt   int64, Unix ms
	xp          int32
	itemCount   uint16
	items       itemCount × (fieldCount uint16, fieldCount × (key UTF, value))

Values are objcodec-encoded. A store file is an int32 version followed by
records until the end of the file. Legacy files have no version and use the
version 0 layout.
*/

const (
	CurrentVersion int32 = 1
	versionIntPos  int32 = 0
)

func writeUUID(w *datachan.Writer, u uuid.UUID) error {
	if err := w.WriteUint64(binary.BigEndian.Uint64(u[:8])); err != nil {
		return err
	}
	return w.WriteUint64(binary.BigEndian.Uint64(u[8:]))
}

func readUUID(r *datachan.Reader) (uuid.UUID, error) {
	var u uuid.UUID
	err := r.ReadFull(u[:])
	return u, err
}

// encoder writes records, dropping items that fail to encode.
type encoder struct {
	ctx    context.Context
	logger *slog.Logger

	failedItems int
}

func (enc *encoder) writeRecord(w *datachan.Writer, r *Record) error {
	if err := writeUUID(w, r.world); err != nil {
		return err
	}
	for _, v := range [3]float64{r.x, r.y, r.z} {
		if err := w.WriteFloat64(v); err != nil {
			return err
		}
	}
	if err := writeUUID(w, r.owner); err != nil {
		return err
	}
	if err := w.WriteInt64(r.createdAt); err != nil {
		return err
	}
	if err := w.WriteInt32(r.xp); err != nil {
		return err
	}

	items := r.items
	if len(items) > math.MaxUint16 {
		enc.logger.LogAttrs(enc.ctx, slog.LevelWarn, "souldb: too many items, dropping the excess", slog.Int("slot", r.slot), slog.Int("items", len(items)))
		enc.failedItems += len(items) - math.MaxUint16
		items = items[:math.MaxUint16]
	}

	countPos := w.Position()
	if err := w.WriteUint16(uint16(len(items))); err != nil {
		return err
	}
	var failed int
	for i, item := range items {
		itemPos := w.Position()
		err := writeItem(w, item)
		if err == nil {
			continue
		}
		enc.logger.LogAttrs(enc.ctx, slog.LevelWarn, "souldb: failed to save item", slog.Int("slot", r.slot), slog.Int("item", i), slog.Any("err", err))
		if err := w.SetPosition(itemPos); err != nil {
			return err
		}
		if err := w.Truncate(); err != nil {
			return err
		}
		failed++
	}
	if failed > 0 {
		enc.failedItems += failed
		end := w.Position()
		if err := w.SetPosition(countPos); err != nil {
			return err
		}
		if err := w.WriteUint16(uint16(len(items) - failed)); err != nil {
			return err
		}
		return w.SetPosition(end)
	}
	return nil
}

func writeItem(w *datachan.Writer, item Item) error {
	if len(item) > math.MaxUint16 {
		return fmt.Errorf("%d fields", len(item))
	}
	if err := w.WriteUint16(uint16(len(item))); err != nil {
		return err
	}
	return objcodec.EncodeEntries(w, item)
}

// decoder reads records of one file.
type decoder struct {
	ctx      context.Context
	logger   *slog.Logger
	reg      *objcodec.Registry
	warnOver int

	placeholders int
}

func (dec *decoder) readRecord(r *datachan.Reader, version int32) (*Record, error) {
	world, err := readUUID(r)
	if err != nil {
		return nil, err
	}
	var pos [3]float64
	for i := range pos {
		if version == versionIntPos {
			v, err := r.ReadInt32()
			if err != nil {
				return nil, err
			}
			pos[i] = float64(v)
		} else {
			pos[i], err = r.ReadFloat64()
			if err != nil {
				return nil, err
			}
		}
	}
	owner, err := readUUID(r)
	if err != nil {
		return nil, err
	}
	createdAt, err := r.ReadInt64()
	if err != nil {
		return nil, err
	}
	xp, err := r.ReadInt32()
	if err != nil {
		return nil, err
	}

	n, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}
	if int(n) > dec.warnOver {
		dec.logger.LogAttrs(dec.ctx, slog.LevelWarn, "souldb: suspiciously high number of items", slog.Int("items", int(n)))
	}
	items := make([]Item, n)
	for i := range items {
		items[i], err = dec.readItem(r, i)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
	}
	return NewRecord(owner, world, pos[0], pos[1], pos[2], createdAt, items, xp), nil
}

func (dec *decoder) readItem(r *datachan.Reader, i int) (Item, error) {
	n, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}
	if int(n) > dec.warnOver {
		dec.logger.LogAttrs(dec.ctx, slog.LevelWarn, "souldb: suspiciously high number of item fields", slog.Int("item", i), slog.Int("fields", int(n)))
	}
	fields, err := objcodec.DecodeEntries(r, dec.reg, int(n))
	if err != nil {
		if !objcodec.StreamIntact(err) {
			return nil, err
		}
		dec.logger.LogAttrs(dec.ctx, slog.LevelWarn, "souldb: failed to load item, replacing with an empty one", slog.Int("item", i), slog.Any("err", err))
		dec.placeholders++
		return Item{}, nil
	}
	return Item(fields), nil
}
