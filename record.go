package souldb

import (
	"fmt"
	"time"

	"github.com/andreyvit/souldb/spatial"
	"github.com/google/uuid"
)

// StoreScale is the number of world blocks per spatial index tile.
const StoreScale = 16

// Item is one serialized item of a record's payload. Values are anything
// objcodec can encode. Items are treated as immutable once handed to a Store.
type Item map[string]any

// Record is a world-anchored drop ("soul"). Position, world and creation
// time never change. Owner, items and experience change only through Store
// methods.
type Record struct {
	slot int

	owner     uuid.UUID
	world     uuid.UUID
	x, y, z   float64
	createdAt int64
	items     []Item
	xp        int32
}

// NewRecord builds a record that doesn't belong to any store yet. Owner
// uuid.Nil means the record is free for anyone.
func NewRecord(owner, world uuid.UUID, x, y, z float64, createdAt int64, items []Item, xp int32) *Record {
	return &Record{
		slot:      -1,
		owner:     owner,
		world:     world,
		x:         x,
		y:         y,
		z:         z,
		createdAt: createdAt,
		items:     items,
		xp:        xp,
	}
}

// Slot returns the table slot the record occupies (or last occupied), or -1
// if it was never added to a store. Slots are reused and don't identify a
// record over time.
func (r *Record) Slot() int { return r.slot }

// Owner returns the owning player, or uuid.Nil if the record is free.
func (r *Record) Owner() uuid.UUID { return r.owner }

func (r *Record) IsFree() bool { return r.owner == uuid.Nil }

func (r *Record) World() uuid.UUID { return r.world }

func (r *Record) X() float64 { return r.x }
func (r *Record) Y() float64 { return r.y }
func (r *Record) Z() float64 { return r.z }

// CreatedAt returns the creation time in Unix milliseconds.
func (r *Record) CreatedAt() int64 { return r.createdAt }

func (r *Record) CreatedTime() time.Time { return time.UnixMilli(r.createdAt) }

// Items returns the payload. The slice must not be modified.
func (r *Record) Items() []Item { return r.items }

func (r *Record) Experience() int32 { return r.xp }

// Depleted reports whether nothing is left to collect. Depleted records are
// not removed automatically.
func (r *Record) Depleted() bool {
	return r.xp == 0 && len(r.items) == 0
}

// Expired reports whether ttlMs has elapsed since creation as of nowMs.
func (r *Record) Expired(nowMs, ttlMs int64) bool {
	return elapsed(r.createdAt, ttlMs, nowMs)
}

func (r *Record) ownedBy(player uuid.UUID) bool {
	return r.owner != uuid.Nil && r.owner == player
}

func (r *Record) String() string {
	owner := "free"
	if r.owner != uuid.Nil {
		owner = r.owner.String()
	}
	return fmt.Sprintf("Record{slot=%d world=%s pos=(%g, %g, %g) owner=%s created=%d items=%d xp=%d}",
		r.slot, r.world, r.x, r.y, r.z, owner, r.createdAt, len(r.items), r.xp)
}

// tileX and tileY map the horizontal position onto the spatial index grid.
func (r *Record) tileX() int32 { return tile(r.x) }
func (r *Record) tileY() int32 { return tile(r.z) }

func tile(v float64) int32 {
	return spatial.FloorDiv(spatial.Clamp(v), StoreScale)
}

// entry is what the spatial index stores. Tile coordinates are fixed at
// insertion, so removal always finds the entry where it was put.
type entry struct {
	r    *Record
	x, y int32
}

func entryOf(r *Record) entry {
	return entry{r, r.tileX(), r.tileY()}
}

func (e entry) X() int32 { return e.x }
func (e entry) Y() int32 { return e.y }
