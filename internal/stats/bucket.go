package stats

import (
	"sync/atomic"
	"unsafe"

	"github.com/brimd/brimd/internal/config"
)

// Bucket is one worker's (or daemon's) view onto its own slots within a
// shared Region. All operations are lock-free atomic reads/writes on the
// mmap'd memory, so a crashing worker can never hold the region locked for
// the parent's aggregator or siblings.
type Bucket struct {
	words []uint64 // unsafe view over this bucket's byte range
	slots map[string]int
	decls map[string]config.StatDeclaration
}

func newBucket(region *Region, b bucketLayout) *Bucket {
	width := len(b.decls)
	byteOff := b.offset
	raw := region.data[byteOff : byteOff+width*slotSize]
	words := unsafe.Slice((*uint64)(unsafe.Pointer(&raw[0])), width)
	if width == 0 {
		words = nil
	}
	decls := make(map[string]config.StatDeclaration, len(b.decls))
	for _, d := range b.decls {
		decls[d.Name] = d
	}
	return &Bucket{words: words, slots: b.slots, decls: decls}
}

// Get implements factory.StatsWriter. Unknown names read back as 0.
func (b *Bucket) Get(name string) uint64 {
	i, ok := b.slots[name]
	if !ok {
		return 0
	}
	return atomic.LoadUint64(&b.words[i])
}

// Set implements factory.StatsWriter. A write to an undeclared name is a
// silent no-op: a handler may reference a name the factory never
// declared, and it simply never surfaces in aggregation.
func (b *Bucket) Set(name string, v uint64) {
	i, ok := b.slots[name]
	if !ok {
		return
	}
	decl := b.decls[name]
	if decl.Kind == config.AggMin && decl.TimeTrait {
		// "0 means never set": the first write wins and is permanent.
		// Once cur != 0, every later Set is a no-op regardless of v,
		// so a start-time-like stat can never move once recorded.
		for {
			cur := atomic.LoadUint64(&b.words[i])
			if cur != 0 {
				return
			}
			if atomic.CompareAndSwapUint64(&b.words[i], cur, v) {
				return
			}
		}
	}
	atomic.StoreUint64(&b.words[i], v)
}

// Incr implements factory.StatsWriter: an atomic +1, the common case for
// every AggSum counter (request_count, status_Nxx_count, ...).
func (b *Bucket) Incr(name string) {
	i, ok := b.slots[name]
	if !ok {
		return
	}
	atomic.AddUint64(&b.words[i], 1)
}
