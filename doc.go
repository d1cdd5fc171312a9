/*
Package souldb stores world-anchored drops ("souls"): records with an owner,
a world, a position, a creation time, a payload of serialized items and some
experience points.

We implement:

1. A slot table. Every record lives at a small integer slot; removing a
record frees its slot, and the next added record takes the lowest free one.

2. A spatial index (see package spatial) over the horizontal position, for
“what's near this point” queries.

3. Persistence into a single file, replaced atomically on every save.

4. Background autosave and time-based fading of old records.

5. An optional archive of removed and faded records, kept in Bolt.

# Technical Details

**Tiles.**
The index works on tiles of StoreScale×StoreScale blocks, computed with floor
division of the floored coordinates. Query results are therefore approximate;
Nearby does the exact distance check.

**Dirty tracking.**
Each mutation bumps a modification sequence number. A save records the
sequence number of the snapshot it wrote, so a mutation racing with a save
keeps the store dirty.

**Saving.**
The table is copied under the lock, then written to a new sibling file named
after the store file plus a random-ish numeric suffix (created exclusively,
with up to 10 attempts), synced, and renamed over the store file. Items that
fail to encode are left out of that save and logged.

**Loading.**
The file is mapped into memory and decoded record by record. Items referencing
unknown object aliases load as empty items. A corrupted record ends the
load; the records before it are kept.

## File format

	version  int32, currently 1
	record*  see encoding.go

Legacy files are a bare sequence of version 0 records, migrated once via
MigrateLegacy.
*/
package souldb
