package souldb

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type DumpFlags uint64

const (
	DumpHeader = DumpFlags(1 << iota)
	DumpStats
	DumpRecords
	DumpItems

	DumpAll = DumpFlags(0xFFFFFFFFFFFFFFFF)
)

var (
	dumpSep1 = strings.Repeat("=", 80)
	dumpSep2 = strings.Repeat("-", 60)
)

func (f DumpFlags) Contains(v DumpFlags) bool {
	return (f & v) == v
}

// Dump renders the store as text, for debugging and the souldump tool.
func (s *Store) Dump(f DumpFlags) string {
	var buf strings.Builder
	st := s.Stats()
	if f.Contains(DumpHeader) {
		fmt.Fprintln(&buf, dumpSep1)
		fmt.Fprintf(&buf, "%s (%d records)\n", s.path, st.Records)
	}
	if f.Contains(DumpStats) {
		fmt.Fprintf(&buf, "stats: slots = %d, free_slots = %d, buckets = %d, dirty = %v, saves = %d, failed_saves = %d, failed_items = %d, faded = %d, archived = %d\n",
			st.Slots, st.FreeSlots(), st.Buckets, st.Dirty, st.Saves, st.FailedSaves, st.FailedItems, st.Faded, st.Archived)
		if ls := st.LastSave; ls != nil {
			fmt.Fprintf(&buf, "last_save: at = %s, records = %d, size = %d, attempts = %d, took = %v\n",
				ls.SavedAt.Format(time.RFC3339), ls.Records, ls.Size, ls.Attempts, ls.Duration)
		}
	}
	if f.Contains(DumpRecords) {
		if f.Contains(DumpStats) {
			fmt.Fprintln(&buf, dumpSep2)
		}
		for _, r := range s.All() {
			dumpRecord(&buf, f, r)
		}
	}
	return buf.String()
}

// DumpRecordList renders records the same way Dump does.
func DumpRecordList(f DumpFlags, records []*Record) string {
	var buf strings.Builder
	for _, r := range records {
		dumpRecord(&buf, f, r)
	}
	return buf.String()
}

func dumpRecord(w *strings.Builder, f DumpFlags, r *Record) {
	owner := "free"
	if !r.IsFree() {
		owner = r.owner.String()
	}
	fmt.Fprintf(w, "%d = world %s at (%g, %g, %g) owner %s created %s xp %d items %d\n",
		r.slot, r.world, r.x, r.y, r.z, owner, r.CreatedTime().UTC().Format(time.RFC3339), r.xp, len(r.items))
	if f.Contains(DumpItems) {
		for i, item := range r.items {
			fmt.Fprintf(w, "%d.%d = %s\n", r.slot, i, loggableItem(item))
		}
	}
}

func loggableItem(item Item) string {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Sprintf("%v", map[string]any(item))
	}
	return string(data)
}
