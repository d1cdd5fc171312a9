package souldb

import (
	"github.com/google/uuid"
)

// FreePermissions are the rights of whoever asks FreeByID to release a
// record.
type FreePermissions struct {
	Own bool // may free records they own
	All bool // may free anybody's records
}

type FreeResult int

const (
	NotFound FreeResult = iota
	AlreadyFree
	NotYours
	CannotFreeOwn
	Freed
)

var freeResultNames = [...]string{"not found", "already free", "not yours", "cannot free own", "freed"}

func (fr FreeResult) String() string {
	if int(fr) < len(freeResultNames) {
		return freeResultNames[fr]
	}
	return "invalid"
}

// Free makes r collectable by anyone. Returns false if it was already free.
func (s *Store) Free(r *Record) bool {
	s.tableMu.Lock()
	defer s.tableMu.Unlock()
	if r.owner == uuid.Nil {
		return false
	}
	r.owner = uuid.Nil
	s.MarkDirty()
	return true
}

// AccessibleBy reports whether player may collect r. Somebody else's record
// becomes free (and thus accessible) once freeAfterMs has passed since its
// creation.
func (s *Store) AccessibleBy(r *Record, player uuid.UUID, freeAfterMs int64) bool {
	now := s.nowMs()
	s.tableMu.Lock()
	defer s.tableMu.Unlock()
	if r.owner == uuid.Nil || r.owner == player {
		return true
	}
	if r.Expired(now, freeAfterMs) {
		r.owner = uuid.Nil
		s.MarkDirty()
		return true
	}
	return false
}

// FreeByID frees the record at slot id on behalf of requester (uuid.Nil for
// a requester that isn't a player, like the server console).
//
// A record whose ownership had already expired on its own is freed as well,
// but reported as AlreadyFree.
func (s *Store) FreeByID(id int, requester uuid.UUID, perm FreePermissions, freeAfterMs int64) FreeResult {
	now := s.nowMs()
	s.tableMu.Lock()
	defer s.tableMu.Unlock()

	if id < 0 || id >= len(s.table) || s.table[id] == nil {
		return NotFound
	}
	r := s.table[id]
	if r.owner == uuid.Nil {
		return AlreadyFree
	}
	if !perm.All {
		if !r.ownedBy(requester) {
			return NotYours
		}
		if !perm.Own {
			return CannotFreeOwn
		}
	}

	r.owner = uuid.Nil
	s.MarkDirty()
	if r.Expired(now, freeAfterMs) {
		return AlreadyFree
	}
	return Freed
}

// SetItems replaces the payload of r, e.g. after a partial pickup.
func (s *Store) SetItems(r *Record, items []Item) {
	s.tableMu.Lock()
	r.items = items
	s.tableMu.Unlock()
	s.MarkDirty()
}

func (s *Store) SetExperience(r *Record, xp int32) {
	s.tableMu.Lock()
	r.xp = max(xp, 0)
	s.tableMu.Unlock()
	s.MarkDirty()
}

// Collect takes everything out of r, leaving it depleted, and returns what
// was there. The record stays in the store until removed.
func (s *Store) Collect(r *Record) ([]Item, int32) {
	s.tableMu.Lock()
	items, xp := r.items, r.xp
	r.items, r.xp = nil, 0
	s.tableMu.Unlock()
	s.MarkDirty()
	return items, xp
}
