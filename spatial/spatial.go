// Package spatial implements a bucketed quadtree over 2D integer coordinates.
//
// The plane is cut into square buckets of BucketSize×BucketSize cells. Each
// bucket that holds at least one entry is the root of its own quadtree, which
// splits a leaf into four quadrants once it holds LeafCapacity entries (down
// to 1×1 quadrants, which hold any number of entries). Buckets are kept in a
// slice sorted by Key, so that a query walks consecutive runs of it.
//
// Removing entries never joins quadrants back together, and empty buckets
// are kept around. Queries and Verify don't mind.
package spatial

import (
	"fmt"
	"math"
	"sort"
)

const (
	BucketLevel  = 7
	BucketSize   = 1 << BucketLevel
	LeafCapacity = 16
)

// Entry is anything with fixed integer coordinates. Entries are compared with
// ==, so pointer types are compared by identity.
type Entry interface {
	comparable
	X() int32
	Y() int32
}

// Key orders buckets by x, then y. y is shifted by 2^31 so that negative
// values sort before positive ones.
func Key(x, y int32) int64 {
	return int64(x)<<32 | int64(uint32(y)^0x8000_0000)
}

func KeyX(key int64) int32 {
	return int32(key >> 32)
}

func KeyY(key int64) int32 {
	return int32(uint32(key) ^ 0x8000_0000)
}

// Index is not safe for concurrent use. The zero value is an empty index.
type Index[E Entry] struct {
	buckets []*bucket[E]
	count   int
}

type bucket[E Entry] struct {
	key int64
	quad[E]
}

// quad is a leaf while quads is nil.
type quad[E Entry] struct {
	entries []E
	quads   *[4]*quad[E]
}

func (idx *Index[E]) find(key int64) (int, bool) {
	return sort.Find(len(idx.buckets), func(i int) int {
		switch k := idx.buckets[i].key; {
		case key < k:
			return -1
		case key > k:
			return 1
		default:
			return 0
		}
	})
}

// Len returns the number of entries.
func (idx *Index[E]) Len() int {
	return idx.count
}

// Buckets returns the number of allocated buckets, including empty ones.
func (idx *Index[E]) Buckets() int {
	return len(idx.buckets)
}

// Insert adds e. Entries with equal coordinates (or even equal entries)
// coexist.
func (idx *Index[E]) Insert(e E) {
	x, y := e.X(), e.Y()
	key := Key(x>>BucketLevel, y>>BucketLevel)

	i, found := idx.find(key)
	if !found {
		idx.buckets = append(idx.buckets, nil)
		copy(idx.buckets[i+1:], idx.buckets[i:])
		idx.buckets[i] = &bucket[E]{key: key}
	}
	idx.buckets[i].insert(x, y, BucketSize, e)
	idx.count++
}

// Remove deletes one occurrence of e, looking it up by e's current
// coordinates. Returns false if there is none.
func (idx *Index[E]) Remove(e E) bool {
	x, y := e.X(), e.Y()
	i, found := idx.find(Key(x>>BucketLevel, y>>BucketLevel))
	if !found {
		return false
	}
	if !idx.buckets[i].remove(x, y, BucketSize, e) {
		return false
	}
	idx.count--
	return true
}

// Query appends every entry with xMin <= X <= xMax and yMin <= Y <= yMax to
// out and returns the extended slice.
func (idx *Index[E]) Query(xMin, xMax, yMin, yMax int32, out []E) []E {
	if xMin > xMax || yMin > yMax {
		return out
	}
	n := len(idx.buckets)
	for bx := int64(xMin >> BucketLevel); bx <= int64(xMax>>BucketLevel); bx++ {
		minKey := Key(int32(bx), yMin>>BucketLevel)
		maxKey := Key(int32(bx), yMax>>BucketLevel)
		i, _ := idx.find(minKey)
		if i == n {
			break
		}
		if next := int64(KeyX(idx.buckets[i].key)); next > bx {
			// no buckets in this column, skip to the next populated one
			bx = next - 1
			continue
		}
		for ; i < n; i++ {
			b := idx.buckets[i]
			if b.key > maxKey {
				break
			}
			qx := int64(KeyX(b.key)) << BucketLevel
			qy := int64(KeyY(b.key)) << BucketLevel
			out = b.query(xMin, xMax, yMin, yMax, qx, qy, BucketSize, out)
		}
	}
	return out
}

// All appends every entry to out in bucket order.
func (idx *Index[E]) All(out []E) []E {
	for _, b := range idx.buckets {
		out = b.all(out)
	}
	return out
}

// Verify checks the structural invariants of the tree: entries lie within
// the bounds of their quadrants, every inner node has at least one child,
// buckets are sorted and the entry count is right.
func (idx *Index[E]) Verify() error {
	var total int
	for i, b := range idx.buckets {
		if i > 0 && idx.buckets[i-1].key >= b.key {
			return fmt.Errorf("bucket %d out of order: %x after %x", i, b.key, idx.buckets[i-1].key)
		}
		minX := int64(KeyX(b.key)) << BucketLevel
		minY := int64(KeyY(b.key)) << BucketLevel
		n, err := b.verify(minX, minX+BucketSize-1, minY, minY+BucketSize-1)
		if err != nil {
			return fmt.Errorf("bucket (%d,%d): %w", KeyX(b.key), KeyY(b.key), err)
		}
		total += n
	}
	if total != idx.count {
		return fmt.Errorf("found %d entries, expected %d", total, idx.count)
	}
	return nil
}

func quadIndex(x, y int32, size int32) int {
	bit := size >> 1
	var i int
	if x&bit != 0 {
		i |= 2
	}
	if y&bit != 0 {
		i |= 1
	}
	return i
}

func (q *quad[E]) insert(x, y int32, size int32, e E) {
	for q.quads == nil {
		if size <= 1 || len(q.entries) < LeafCapacity {
			q.entries = append(q.entries, e)
			return
		}
		q.split(size)
	}
	q.child(quadIndex(x, y, size)).insert(x, y, size>>1, e)
}

func (q *quad[E]) child(i int) *quad[E] {
	c := q.quads[i]
	if c == nil {
		c = new(quad[E])
		q.quads[i] = c
	}
	return c
}

func (q *quad[E]) split(size int32) {
	entries := q.entries
	q.entries = nil
	q.quads = new([4]*quad[E])
	for _, e := range entries {
		x, y := e.X(), e.Y()
		q.child(quadIndex(x, y, size)).insert(x, y, size>>1, e)
	}
}

func (q *quad[E]) remove(x, y int32, size int32, e E) bool {
	for q.quads != nil {
		q = q.quads[quadIndex(x, y, size)]
		if q == nil {
			return false
		}
		size >>= 1
	}
	for i, v := range q.entries {
		if v == e {
			last := len(q.entries) - 1
			q.entries[i] = q.entries[last]
			var zero E
			q.entries[last] = zero
			q.entries = q.entries[:last]
			return true
		}
	}
	return false
}

func (q *quad[E]) query(xMin, xMax, yMin, yMax int32, qx, qy int64, size int64, out []E) []E {
	if q.quads == nil {
		for _, e := range q.entries {
			if x, y := e.X(), e.Y(); x >= xMin && x <= xMax && y >= yMin && y <= yMax {
				out = append(out, e)
			}
		}
		return out
	}
	sub := size >> 1
	for i, c := range q.quads {
		if c == nil {
			continue
		}
		minX := qx + int64(i>>1&1)*sub
		minY := qy + int64(i&1)*sub
		if !overlaps(minX, minX+sub, xMin, xMax) || !overlaps(minY, minY+sub, yMin, yMax) {
			continue
		}
		out = c.query(xMin, xMax, yMin, yMax, minX, minY, sub, out)
	}
	return out
}

func overlaps(lo, hi int64, qMin, qMax int32) bool {
	return int64(qMin) <= hi && int64(qMax) >= lo
}

func (q *quad[E]) all(out []E) []E {
	if q.quads == nil {
		return append(out, q.entries...)
	}
	for _, c := range q.quads {
		if c != nil {
			out = c.all(out)
		}
	}
	return out
}

func (q *quad[E]) verify(minX, maxX, minY, maxY int64) (int, error) {
	if q.quads == nil {
		for _, e := range q.entries {
			x, y := int64(e.X()), int64(e.Y())
			if x < minX || x > maxX || y < minY || y > maxY {
				return 0, fmt.Errorf("entry at (%d,%d) outside of [%d..%d]×[%d..%d]", x, y, minX, maxX, minY, maxY)
			}
		}
		return len(q.entries), nil
	}

	midX := (minX + maxX + 1) >> 1
	midY := (minY + maxY + 1) >> 1
	var children, total int
	for i, c := range q.quads {
		if c == nil {
			continue
		}
		children++
		cMinX, cMaxX := minX, midX-1
		if i&2 != 0 {
			cMinX, cMaxX = midX, maxX
		}
		cMinY, cMaxY := minY, midY-1
		if i&1 != 0 {
			cMinY, cMaxY = midY, maxY
		}
		n, err := c.verify(cMinX, cMaxX, cMinY, cMaxY)
		if err != nil {
			return 0, fmt.Errorf("quadrant %d: %w", i, err)
		}
		total += n
	}
	if children == 0 {
		return 0, fmt.Errorf("inner node of [%d..%d]×[%d..%d] has no children", minX, maxX, minY, maxY)
	}
	return total, nil
}

// Clamp converts a float coordinate into the int32 range, rounding down.
// NaN becomes 0.
func Clamp(v float64) int32 {
	switch {
	case v != v:
		return 0
	case v <= math.MinInt32:
		return math.MinInt32
	case v >= math.MaxInt32:
		return math.MaxInt32
	default:
		return int32(math.Floor(v))
	}
}

// FloorDiv divides rounding towards negative infinity.
func FloorDiv(a, b int32) int32 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
