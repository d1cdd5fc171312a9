package souldb

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log/slog"
	"time"

	"github.com/andreyvit/souldb/datachan"
	"github.com/andreyvit/souldb/objcodec"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"
)

var gravesBucket = []byte("graves")

// Grave is a record that left the store, kept in an Archive.
type Grave struct {
	Record   *Record
	Reason   string // "faded" or "removed"
	BuriedAt int64  // Unix ms
}

// Archive keeps removed and faded records in a Bolt database, grouped by
// world and ordered by creation time. Safe for concurrent use.
type Archive struct {
	db       *bbolt.DB
	enc      *zstd.Encoder
	dec      *zstd.Decoder
	registry *objcodec.Registry
	opt      Options
}

// graveValue is the msgpack-encoded Bolt value. Data is the record in the
// store file format (current version), zstd-compressed.
type graveValue struct {
	Reason   string `msgpack:"r"`
	BuriedAt int64  `msgpack:"t"`
	Slot     int    `msgpack:"s"`
	RawSize  int    `msgpack:"n"`
	Data     []byte `msgpack:"d"`
}

func OpenArchive(path string, opt Options) (*Archive, error) {
	opt.setDefaults()
	bdb, err := bbolt.Open(path, 0o666, &bbolt.Options{Timeout: 10 * time.Second})
	if err != nil {
		return nil, err
	}
	err = bdb.Update(func(btx *bbolt.Tx) error {
		_, err := btx.CreateBucketIfNotExists(gravesBucket)
		return err
	})
	if err != nil {
		bdb.Close()
		return nil, err
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		bdb.Close()
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		bdb.Close()
		return nil, err
	}
	return &Archive{db: bdb, enc: enc, dec: dec, registry: opt.Registry, opt: opt}, nil
}

func (a *Archive) Close() error {
	a.dec.Close()
	err := a.enc.Close()
	if e := a.db.Close(); e != nil {
		err = e
	}
	return err
}

// graveKey is world, then createdAt with the sign bit flipped so that keys
// sort chronologically, then a sequence number for uniqueness.
func graveKey(world uuid.UUID, createdAt int64, seq uint64) []byte {
	key := make([]byte, 0, 32)
	key = append(key, world[:]...)
	key = binary.BigEndian.AppendUint64(key, uint64(createdAt)^(1<<63))
	key = binary.BigEndian.AppendUint64(key, seq)
	return key
}

// Bury adds graves to the archive in a single transaction.
func (a *Archive) Bury(graves []Grave) error {
	values := make([][]byte, len(graves))
	for i, g := range graves {
		v, err := a.encodeGrave(g)
		if err != nil {
			return fmt.Errorf("%v: %w", g.Record, err)
		}
		values[i] = v
	}

	return a.db.Update(func(btx *bbolt.Tx) error {
		b := btx.Bucket(gravesBucket)
		for i, g := range graves {
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			if err := b.Put(graveKey(g.Record.world, g.Record.createdAt, seq), values[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (a *Archive) encodeGrave(g Grave) ([]byte, error) {
	buf := datachan.NewBuffer(256)
	w := datachan.NewWriter(buf)
	enc := &encoder{ctx: a.opt.Context, logger: a.opt.Logger}
	if err := enc.writeRecord(w, g.Record); err != nil {
		return nil, err
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}
	raw := buf.Bytes()
	return msgpack.Marshal(&graveValue{
		Reason:   g.Reason,
		BuriedAt: g.BuriedAt,
		Slot:     g.Record.slot,
		RawSize:  len(raw),
		Data:     a.enc.EncodeAll(raw, nil),
	})
}

func (a *Archive) decodeGrave(v []byte) (Grave, error) {
	var gv graveValue
	if err := msgpack.Unmarshal(v, &gv); err != nil {
		return Grave{}, err
	}
	raw, err := a.dec.DecodeAll(gv.Data, make([]byte, 0, gv.RawSize))
	if err != nil {
		return Grave{}, err
	}
	dec := &decoder{
		ctx:      a.opt.Context,
		logger:   a.opt.Logger,
		reg:      a.registry,
		warnOver: a.opt.ItemCountWarnThreshold,
	}
	r, err := dec.readRecord(datachan.NewReader(datachan.NewBufferFrom(raw)), CurrentVersion)
	if err != nil {
		return Grave{}, err
	}
	r.slot = gv.Slot
	return Grave{Record: r, Reason: gv.Reason, BuriedAt: gv.BuriedAt}, nil
}

// Graves calls fn for every grave of world (or of every world, if world is
// not valid), oldest first within a world. An error returned by fn stops the
// iteration and is returned.
func (a *Archive) Graves(world uuid.NullUUID, fn func(g Grave) error) error {
	var prefix []byte
	if world.Valid {
		prefix = world.UUID[:]
	}
	return a.db.View(func(btx *bbolt.Tx) error {
		c := btx.Bucket(gravesBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			g, err := a.decodeGrave(v)
			if err != nil {
				return fmt.Errorf("grave %x: %w", k, err)
			}
			if err := fn(g); err != nil {
				return err
			}
		}
		return nil
	})
}

// Count returns the number of graves.
func (a *Archive) Count() (int, error) {
	var n int
	err := a.db.View(func(btx *bbolt.Tx) error {
		n = btx.Bucket(gravesBucket).Stats().KeyN
		return nil
	})
	return n, err
}

// Prune deletes graves buried before the given Unix ms time and returns how
// many were deleted.
func (a *Archive) Prune(buriedBefore int64) (int, error) {
	var n int
	err := a.db.Update(func(btx *bbolt.Tx) error {
		c := btx.Bucket(gravesBucket).Cursor()
		for k, v := c.First(); k != nil; {
			var gv graveValue
			if err := msgpack.Unmarshal(v, &gv); err != nil {
				return fmt.Errorf("grave %x: %w", k, err)
			}
			if gv.BuriedAt < buriedBefore {
				key := bytes.Clone(k)
				if err := c.Delete(); err != nil {
					return err
				}
				n++
				k, v = c.Seek(key)
				continue
			}
			k, v = c.Next()
		}
		return nil
	})
	return n, err
}

func (s *Store) archiveGraves(graves []Grave) {
	if s.archive == nil || len(graves) == 0 {
		return
	}
	if err := s.archive.Bury(graves); err != nil {
		s.logger.LogAttrs(s.ctx, slog.LevelError, "souldb: failed to archive records, will retry on next save", slog.Int("records", len(graves)), slog.Any("err", err))
		s.requeueGraves(graves)
		return
	}
	s.ArchivedCount.Add(uint64(len(graves)))
}
