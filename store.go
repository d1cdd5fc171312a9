package souldb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andreyvit/souldb/objcodec"
	"github.com/andreyvit/souldb/spatial"
	"github.com/google/uuid"
)

// Store keeps records in a slot table and a spatial index, and persists them
// to a single file.
//
// Mutations return immediately and never fail; they only make the store
// dirty. Durability comes from Save, AutoSave or the background writer
// started by Start.
type Store struct {
	path     string
	ctx      context.Context
	logger   *slog.Logger
	now      func() time.Time
	registry *objcodec.Registry
	archive  *Archive
	warnOver int

	tableMu sync.Mutex
	table   []*Record
	graves  []Grave // removed records waiting to be archived

	// lock order: tableMu, then indexMu
	indexMu sync.RWMutex
	index   spatial.Index[entry]

	modSeq   atomic.Uint64
	savedSeq atomic.Uint64

	saveMu     sync.Mutex
	writtenSeq uint64 // seq of the newest snapshot on disk, guarded by saveMu

	writerMu sync.Mutex
	writer   *writer
	closed   bool

	SaveCount       atomic.Uint64
	FailedSaveCount atomic.Uint64
	FailedItemCount atomic.Uint64
	FadedCount      atomic.Uint64
	ArchivedCount   atomic.Uint64
	lastSave        atomic.Pointer[SaveStats]
}

// Open loads the store at path. A missing file gives an empty store.
//
// A file of an unsupported version fails Open. A file that is corrupted
// somewhere in the middle is moved aside (to path + ".corrupted"), and the
// store opens with whatever records could be read before the corruption,
// marked dirty so that the next save writes them back.
func Open(path string, opt Options) (*Store, error) {
	opt.setDefaults()
	s := &Store{
		path:     path,
		ctx:      opt.Context,
		logger:   opt.Logger,
		now:      opt.Now,
		registry: opt.Registry,
		archive:  opt.Archive,
		warnOver: opt.ItemCountWarnThreshold,
	}

	fc, err := ReadFile(path, opt)
	var de *DataError
	if errors.As(err, &de) {
		aside := path + ".corrupted"
		s.logger.LogAttrs(s.ctx, slog.LevelError, "souldb: store file is corrupted, keeping what could be read", slog.String("file", path), slog.Int("records", len(fc.Records)), slog.String("copy", aside), slog.Any("err", err))
		if err := os.Rename(path, aside); err != nil {
			return nil, fmt.Errorf("moving aside corrupted %s: %w", path, err)
		}
		s.MarkDirty()
	} else if err != nil {
		return nil, err
	}

	for _, r := range fc.Records {
		r.slot = len(s.table)
		s.table = append(s.table, r)
		s.index.Insert(entryOf(r))
	}
	return s, nil
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) nowMs() int64 {
	return s.now().UnixMilli()
}

// MarkDirty records that the in-memory state differs from the saved file.
func (s *Store) MarkDirty() {
	s.modSeq.Add(1)
}

// Dirty reports whether there are changes not yet saved successfully.
func (s *Store) Dirty() bool {
	return s.modSeq.Load() != s.savedSeq.Load()
}

func (s *Store) markSaved(seq uint64) {
	for {
		cur := s.savedSeq.Load()
		if cur >= seq || s.savedSeq.CompareAndSwap(cur, seq) {
			return
		}
	}
}

// Add creates a record at the first free slot. Pass uuid.Nil as owner for a
// record anyone can collect.
func (s *Store) Add(owner, world uuid.UUID, x, y, z float64, items []Item, xp int32) *Record {
	r := NewRecord(owner, world, x, y, z, s.nowMs(), items, xp)
	s.insert(r)
	s.MarkDirty()
	return r
}

func (s *Store) insert(r *Record) {
	s.tableMu.Lock()
	r.slot = -1
	for i, v := range s.table {
		if v == nil {
			s.table[i] = r
			r.slot = i
			break
		}
	}
	if r.slot < 0 {
		r.slot = len(s.table)
		s.table = append(s.table, r)
	}
	// under tableMu, so that Fade never sees a slot without its index entry
	s.indexMu.Lock()
	s.index.Insert(entryOf(r))
	s.indexMu.Unlock()
	s.tableMu.Unlock()
}

// Remove deletes r. Removing a record that isn't in the store is logged and
// otherwise ignored.
func (s *Store) Remove(r *Record) {
	s.remove(r, "removed")
}

func (s *Store) remove(r *Record, reason string) {
	s.tableMu.Lock()
	if r.slot < 0 {
		// never added
		s.tableMu.Unlock()
		return
	}
	if r.slot >= len(s.table) || s.table[r.slot] != r {
		s.logger.LogAttrs(s.ctx, slog.LevelWarn, "souldb: record already removed from table", slog.String("record", r.String()))
	} else {
		s.table[r.slot] = nil
		s.bury(r, reason)
		s.MarkDirty()
	}
	s.tableMu.Unlock()

	s.indexMu.Lock()
	ok := s.index.Remove(entryOf(r))
	s.indexMu.Unlock()
	if !ok {
		s.logger.LogAttrs(s.ctx, slog.LevelWarn, "souldb: record already removed from index", slog.String("record", r.String()))
	}
}

// bury queues r for archival. Must hold tableMu.
func (s *Store) bury(r *Record, reason string) {
	if s.archive == nil {
		return
	}
	cp := *r
	s.graves = append(s.graves, Grave{Record: &cp, Reason: reason, BuriedAt: s.nowMs()})
}

// ByID returns the record at the given slot, or nil.
func (s *Store) ByID(id int) *Record {
	s.tableMu.Lock()
	defer s.tableMu.Unlock()
	if id < 0 || id >= len(s.table) {
		return nil
	}
	return s.table[id]
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.indexMu.RLock()
	defer s.indexMu.RUnlock()
	return s.index.Len()
}

// All returns every record in slot order.
func (s *Store) All() []*Record {
	return s.filter(func(*Record) bool { return true })
}

// OwnedBy returns the records matching both owner and world, where an
// invalid NullUUID matches anything.
func (s *Store) OwnedBy(owner, world uuid.NullUUID) []*Record {
	return s.filter(func(r *Record) bool {
		return (!owner.Valid || r.owner == owner.UUID) && (!world.Valid || r.world == world.UUID)
	})
}

// Faded returns the records older than ttlMs without removing them.
func (s *Store) Faded(ttlMs int64) []*Record {
	now := s.nowMs()
	return s.filter(func(r *Record) bool { return r.Expired(now, ttlMs) })
}

func (s *Store) filter(f func(r *Record) bool) []*Record {
	s.tableMu.Lock()
	defer s.tableMu.Unlock()
	var result []*Record
	for _, r := range s.table {
		if r != nil && f(r) {
			result = append(result, r)
		}
	}
	return result
}

// Query returns the records of world whose tile lies within radius of
// (x, z). The tile grid is coarse, so some results lie a little farther than
// radius; use Nearby for an exact distance check.
func (s *Store) Query(world uuid.UUID, x, z, radius float64) []*Record {
	xMin, xMax := tile(x-radius), tile(x+radius)
	yMin, yMax := tile(z-radius), tile(z+radius)

	s.indexMu.RLock()
	found := s.index.Query(xMin, xMax, yMin, yMax, nil)
	s.indexMu.RUnlock()

	var result []*Record
	for _, e := range found {
		if e.r.world == world {
			result = append(result, e.r)
		}
	}
	return result
}

// Nearby returns the records of world strictly within radius of (x, z),
// measuring horizontal distance only.
func (s *Store) Nearby(world uuid.UUID, x, z, radius float64) []*Record {
	candidates := s.Query(world, x, z, radius)
	result := candidates[:0]
	for _, r := range candidates {
		dx, dz := r.x-x, r.z-z
		if dx*dx+dz*dz < radius*radius {
			result = append(result, r)
		}
	}
	return result
}

// Fade removes every record older than ttlMs and returns how many were
// removed. Never keeps everything.
func (s *Store) Fade(ttlMs int64) int {
	now := s.nowMs()
	var faded []*Record

	s.tableMu.Lock()
	for i, r := range s.table {
		if r != nil && r.Expired(now, ttlMs) {
			s.table[i] = nil
			s.bury(r, "faded")
			faded = append(faded, r)
		}
	}
	if len(faded) > 0 {
		s.indexMu.Lock()
		for _, r := range faded {
			if !s.index.Remove(entryOf(r)) {
				s.logger.LogAttrs(s.ctx, slog.LevelWarn, "souldb: faded record missing from index", slog.String("record", r.String()))
			}
		}
		s.indexMu.Unlock()
		s.MarkDirty()
	}
	s.tableMu.Unlock()

	s.FadedCount.Add(uint64(len(faded)))
	return len(faded)
}

// VerifyIndex checks the internal consistency of the spatial index.
func (s *Store) VerifyIndex() error {
	s.indexMu.RLock()
	defer s.indexMu.RUnlock()
	return s.index.Verify()
}
