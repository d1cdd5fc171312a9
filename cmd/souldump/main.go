// Command souldump prints the contents of a soul store file, a legacy file or
// a grave archive.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/google/uuid"

	"github.com/andreyvit/souldb"
	"github.com/andreyvit/souldb/objcodec"
)

var args struct {
	Path    string `arg:"positional,required" help:"store file (or archive, with --archive)"`
	Legacy  bool   `help:"read an unversioned legacy file"`
	Archive bool   `help:"list graves of a Bolt archive"`
	World   string `help:"only show records of this world UUID"`
	Items   bool   `help:"print item payloads"`
	Verify  bool   `help:"check spatial index consistency after loading"`
	Faded   string `help:"only show records older than this, e.g. 7d or 12h"`
	Prune   string `help:"with --archive, delete graves buried longer ago than this"`
	Verbose bool   `arg:"-v" help:"log debug messages"`
}

func main() {
	arg.MustParse(&args)

	level := slog.LevelWarn
	if args.Verbose {
		level = slog.LevelDebug
	}
	opt := souldb.Options{
		Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})),
		// keep whatever the file holds, even aliases nobody registered
		Registry: &objcodec.Registry{Opaque: true},
	}

	var world uuid.NullUUID
	if args.World != "" {
		u, err := uuid.Parse(args.World)
		if err != nil {
			fail(fmt.Errorf("--world: %w", err))
		}
		world = uuid.NullUUID{UUID: u, Valid: true}
	}

	flags := souldb.DumpAll
	if !args.Items {
		flags &^= souldb.DumpItems
	}

	var err error
	switch {
	case args.Archive:
		err = dumpArchive(opt, world, flags)
	case args.Legacy:
		err = dumpFile(opt, world, flags, souldb.ReadLegacyFile)
	default:
		err = dumpStore(opt, world, flags)
	}
	if err != nil {
		fail(err)
	}
}

func dumpStore(opt souldb.Options, world uuid.NullUUID, flags souldb.DumpFlags) error {
	// Open moves corrupted files aside; read-only inspection must not
	if _, err := souldb.ReadFile(args.Path, opt); err != nil {
		var de *souldb.DataError
		if errors.As(err, &de) {
			return dumpFile(opt, world, flags, souldb.ReadFile)
		}
		return err
	}

	s, err := souldb.Open(args.Path, opt)
	if err != nil {
		return err
	}
	if args.Verify {
		if err := s.VerifyIndex(); err != nil {
			return fmt.Errorf("index: %w", err)
		}
	}
	if !world.Valid && args.Faded == "" {
		fmt.Print(s.Dump(flags))
		return nil
	}
	fmt.Print(s.Dump(flags &^ souldb.DumpRecords))
	records := s.OwnedBy(uuid.NullUUID{}, world)
	if args.Faded != "" {
		ttl, err := souldb.ParseTTL(args.Faded, souldb.Never)
		if err != nil {
			return fmt.Errorf("--faded: %w", err)
		}
		now := time.Now().UnixMilli()
		records = filter(records, func(r *souldb.Record) bool { return r.Expired(now, ttl) })
	}
	fmt.Print(souldb.DumpRecordList(flags, records))
	return nil
}

func dumpFile(opt souldb.Options, world uuid.NullUUID, flags souldb.DumpFlags, read func(string, souldb.Options) (*souldb.FileContents, error)) error {
	fc, err := read(args.Path, opt)
	if fc == nil {
		return err
	}
	fmt.Printf("%s: version %d, %d records, %d bytes, digest %016x, %d placeholder items\n",
		args.Path, fc.Version, len(fc.Records), fc.Size, fc.Digest, fc.Placeholders)
	records := fc.Records
	if world.Valid {
		records = filter(records, func(r *souldb.Record) bool { return r.World() == world.UUID })
	}
	fmt.Print(souldb.DumpRecordList(flags, records))
	return err
}

func dumpArchive(opt souldb.Options, world uuid.NullUUID, flags souldb.DumpFlags) error {
	arch, err := souldb.OpenArchive(args.Path, opt)
	if err != nil {
		return err
	}
	defer arch.Close()

	if args.Prune != "" {
		ttl, err := souldb.ParseTTL(args.Prune, souldb.Never)
		if err != nil {
			return fmt.Errorf("--prune: %w", err)
		}
		if ttl != souldb.Never {
			n, err := arch.Prune(time.Now().UnixMilli() - ttl)
			if err != nil {
				return err
			}
			fmt.Printf("pruned %d graves\n", n)
		}
	}

	n, err := arch.Count()
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d graves\n", args.Path, n)
	return arch.Graves(world, func(g souldb.Grave) error {
		fmt.Printf("%s at %s: ", g.Reason, time.UnixMilli(g.BuriedAt).UTC().Format(time.RFC3339))
		fmt.Print(souldb.DumpRecordList(flags, []*souldb.Record{g.Record}))
		return nil
	})
}

func filter(records []*souldb.Record, keep func(r *souldb.Record) bool) []*souldb.Record {
	var result []*souldb.Record
	for _, r := range records {
		if keep(r) {
			result = append(result, r)
		}
	}
	return result
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "** %v\n", err)
	os.Exit(1)
}
