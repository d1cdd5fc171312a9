package souldb

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/andreyvit/souldb/datachan"
	"github.com/andreyvit/souldb/mmap"
	"github.com/cespare/xxhash/v2"
)

// FileContents is what ReadFile and ReadLegacyFile found in a file.
type FileContents struct {
	Version int32
	Records []*Record
	Size    int64
	Digest  uint64 // xxhash of the whole file

	// Placeholders counts items replaced by empty ones because their
	// payload referenced an unknown object alias.
	Placeholders int
}

// ReadFile decodes a store file. A missing file yields empty contents and no
// error. A file with a version this package doesn't know fails with
// ErrUnsupportedVersion. A corrupted record fails with a *DataError, and the
// records decoded before it are still returned.
func ReadFile(path string, opt Options) (*FileContents, error) {
	return readFile(path, opt, false)
}

// ReadLegacyFile decodes a file in the unversioned legacy format. Same error
// semantics as ReadFile.
func ReadLegacyFile(path string, opt Options) (*FileContents, error) {
	return readFile(path, opt, true)
}

func readFile(path string, opt Options, legacy bool) (*FileContents, error) {
	opt.setDefaults()
	fc := &FileContents{Version: CurrentVersion}

	m, err := mmap.Open(path, mmap.SequentialAccess)
	if errors.Is(err, fs.ErrNotExist) {
		return fc, nil
	} else if err != nil {
		return fc, err
	}
	defer m.Close()

	data := m.Bytes()
	fc.Size = int64(len(data))
	fc.Digest = xxhash.Sum64(data)

	r := datachan.NewReader(datachan.NewBufferFrom(data))
	if legacy {
		fc.Version = versionIntPos
	} else {
		fc.Version, err = r.ReadInt32()
		if err != nil {
			return fc, dataErrf(path, 0, err, "cannot read version")
		}
		if fc.Version < 0 || fc.Version > CurrentVersion {
			return fc, fmt.Errorf("%s: %w %d", path, ErrUnsupportedVersion, fc.Version)
		}
	}

	dec := &decoder{
		ctx:      opt.Context,
		logger:   opt.Logger,
		reg:      opt.Registry,
		warnOver: opt.ItemCountWarnThreshold,
	}
	defer func() {
		fc.Placeholders = dec.placeholders
	}()
	for {
		more, err := r.HasRemaining()
		if err != nil {
			return fc, dataErrf(path, r.Position(), err, "read failed")
		}
		if !more {
			break
		}
		off := r.Position()
		rec, err := dec.readRecord(r, fc.Version)
		if err != nil {
			return fc, dataErrf(path, off, err, "corrupted record %d", len(fc.Records))
		}
		fc.Records = append(fc.Records, rec)
	}

	opt.Logger.LogAttrs(opt.Context, slog.LevelInfo, "souldb: loaded", slog.String("file", path), slog.Int("records", len(fc.Records)), slog.Int("version", int(fc.Version)), slog.Bool("legacy", legacy))
	return fc, nil
}
