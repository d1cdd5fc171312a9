package souldb

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
)

// WorldResolver maps a world id found in a legacy file to a current world.
// Returning false drops the records of that world.
type WorldResolver func(legacy uuid.UUID) (uuid.UUID, bool)

// MigrateLegacy imports a legacy (unversioned) file into the store, saves the
// store and only then deletes the legacy file. Returns the number of records
// imported. A missing legacy file is not an error.
//
// If the legacy file cannot be fully decoded, nothing is imported. If the save
// fails, the records stay in the (dirty) store and the legacy file is kept,
// so a retry would import them twice; don't retry without restarting.
func (s *Store) MigrateLegacy(path string, resolve WorldResolver) (int, error) {
	fc, err := ReadLegacyFile(path, Options{
		Context:                s.ctx,
		Logger:                 s.logger,
		Now:                    s.now,
		Registry:               s.registry,
		ItemCountWarnThreshold: s.warnOver,
	})
	if err != nil {
		return 0, err
	}
	if fc.Size == 0 {
		if _, err := os.Stat(path); err != nil {
			return 0, nil
		}
	}

	var n int
	for _, r := range fc.Records {
		if resolve != nil {
			world, ok := resolve(r.world)
			if !ok {
				s.logger.LogAttrs(s.ctx, slog.LevelWarn, "souldb: dropping legacy record of unknown world", slog.String("world", r.world.String()), slog.String("record", r.String()))
				continue
			}
			r.world = world
		}
		s.insert(r)
		n++
	}
	s.MarkDirty()

	if err := s.Save(); err != nil {
		return n, fmt.Errorf("saving migrated records: %w", err)
	}
	if err := os.Remove(path); err != nil {
		return n, fmt.Errorf("deleting migrated %s: %w", path, err)
	}
	s.logger.LogAttrs(s.ctx, slog.LevelInfo, "souldb: migrated legacy file", slog.String("file", path), slog.Int("records", n))
	return n, nil
}
