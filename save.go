package souldb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/andreyvit/souldb/datachan"
	"github.com/andreyvit/souldb/mmap"
	"github.com/cespare/xxhash/v2"
)

const saveAttempts = 10

// SaveStats describes one successful save.
type SaveStats struct {
	Records     int
	FailedItems int
	Size        int64
	Attempts    int
	Duration    time.Duration
	SavedAt     time.Time
}

// snapshot is a copy of the table taken under tableMu.
type snapshot struct {
	seq     uint64
	records []Record
	graves  []Grave
}

func (s *Store) snapshot() *snapshot {
	s.tableMu.Lock()
	defer s.tableMu.Unlock()
	snap := &snapshot{
		seq:     s.modSeq.Load(),
		records: make([]Record, 0, len(s.table)),
		graves:  s.graves,
	}
	s.graves = nil
	for _, r := range s.table {
		if r != nil {
			snap.records = append(snap.records, *r)
		}
	}
	return snap
}

// Save synchronously writes all records to the store file, replacing it
// atomically. On failure, the previous file is left untouched and the store
// stays dirty.
func (s *Store) Save() error {
	return s.write(s.snapshot())
}

func (s *Store) write(snap *snapshot) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.archiveGraves(snap.graves)
	if snap.seq < s.writtenSeq {
		// a newer snapshot is already on disk
		s.logger.LogAttrs(s.ctx, slog.LevelDebug, "souldb: skipping stale snapshot", slog.String("file", s.path), slog.Uint64("seq", snap.seq), slog.Uint64("written", s.writtenSeq))
		return nil
	}

	start := s.now()
	stats, err := s.writeFile(snap.records)
	if err != nil {
		s.FailedSaveCount.Add(1)
		s.logger.LogAttrs(s.ctx, slog.LevelError, "souldb: save failed", slog.String("file", s.path), slog.Any("err", err))
		return err
	}
	stats.Duration = s.now().Sub(start)
	stats.SavedAt = start

	s.writtenSeq = snap.seq
	s.markSaved(snap.seq)
	s.SaveCount.Add(1)
	s.FailedItemCount.Add(uint64(stats.FailedItems))
	s.lastSave.Store(stats)
	if stats.FailedItems > 0 {
		s.logger.LogAttrs(s.ctx, slog.LevelWarn, "souldb: some items failed to save", slog.String("file", s.path), slog.Int("items", stats.FailedItems))
	}
	return nil
}

func (s *Store) writeFile(records []Record) (*SaveStats, error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		s.logger.LogAttrs(s.ctx, slog.LevelWarn, "souldb: failed to create store directory, saving may fail", slog.String("file", s.path), slog.Any("err", err))
	}

	var lastErr error
	for attempt := 0; attempt < saveAttempts; attempt++ {
		tmp := s.tempPath(s.now(), attempt)
		f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			lastErr = err
			continue
		} else if err != nil {
			return nil, err
		}

		stats, err := s.writeRecords(f, records)
		if err != nil {
			return nil, err
		}
		if err := os.Rename(tmp, s.path); err != nil {
			os.Remove(tmp)
			return nil, err
		}
		stats.Attempts = attempt + 1
		return stats, nil
	}
	return nil, fmt.Errorf("%w after %d attempts: %v", ErrSaveCollision, saveAttempts, lastErr)
}

// tempPath picks a sibling of the store file to write into. The name mixes
// the clock with the process id, so that concurrent writers don't collide
// even with a coarse clock.
func (s *Store) tempPath(now time.Time, attempt int) string {
	var buf [24]byte
	binary.BigEndian.PutUint64(buf[0:], uint64(now.UnixNano()))
	binary.BigEndian.PutUint64(buf[8:], uint64(os.Getpid()))
	binary.BigEndian.PutUint64(buf[16:], uint64(attempt))
	suffix := xxhash.Sum64(buf[:]) & 0xFFFFFF
	return s.path + "." + strconv.FormatUint(suffix, 10)
}

// writeRecords writes, syncs and closes f. Deletes f on failure.
func (s *Store) writeRecords(f *os.File, records []Record) (*SaveStats, error) {
	var ok bool
	defer closeAndDeleteUnlessOK(f, &ok)

	w := datachan.NewWriter(datachan.File{F: f})
	if err := w.WriteInt32(CurrentVersion); err != nil {
		return nil, err
	}
	enc := &encoder{ctx: s.ctx, logger: s.logger}
	for i := range records {
		if err := enc.writeRecord(w, &records[i]); err != nil {
			return nil, fmt.Errorf("record %d: %w", records[i].slot, err)
		}
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}
	size := w.Position()
	if err := mmap.Fdatasync(f, nil); err != nil {
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	ok = true
	return &SaveStats{Records: len(records), FailedItems: enc.failedItems, Size: size}, nil
}

func closeAndDeleteUnlessOK(f *os.File, ok *bool) {
	if *ok {
		return
	}
	f.Close()
	os.Remove(f.Name())
}
