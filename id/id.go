// Package id holds the monotonic per-slab identifiers and counters from
// spec.md component A, ported from
// _examples/original_source/src/slab/counter.rs (SlabCounter's AtomicU32
// fields).
package id

import "sync/atomic"

// SlabID identifies a slab, unique within a Network.
type SlabID uint32

// MemoID identifies a memo, unique within its originating slab. Memo
// equality is by (originating slab, MemoID) in the abstract model; in this
// implementation every MemoID is additionally prefixed by its owning slab
// at allocation time so MemoIDs are globally unique without a central
// authority (see Counter.NextMemoID).
type MemoID uint64

// SubjectID identifies a subject, unique within the network.
type SubjectID uint64

// Counter is a slab's source of monotonic ids and receive-path tallies.
// The initial values (5001/9001) mirror the original's SlabCounter::new,
// kept so test fixtures that assume low, human-distinguishable ids from one
// slab and the next remain legible across a multi-slab scenario.
type Counter struct {
	slabID                    SlabID
	nextMemoID                uint64
	nextSubjectID             uint64
	peerSlabs                 uint32
	memosReceived             uint64
	memosRedundantlyReceived  uint64
}

// NewCounter returns a Counter scoped to slabID.
func NewCounter(slabID SlabID) *Counter {
	return &Counter{
		slabID:        slabID,
		nextMemoID:    5001,
		nextSubjectID: 9001,
	}
}

// NextMemoID allocates the next MemoID for this slab. The high 32 bits carry
// the owning slab id so MemoIDs minted by different slabs never collide.
func (c *Counter) NextMemoID() MemoID {
	n := atomic.AddUint64(&c.nextMemoID, 1) - 1
	return MemoID(uint64(c.slabID)<<32 | (n & 0xffffffff))
}

// NextSubjectID allocates the next SubjectID for this slab, same scheme as
// NextMemoID.
func (c *Counter) NextSubjectID() SubjectID {
	n := atomic.AddUint64(&c.nextSubjectID, 1) - 1
	return SubjectID(uint64(c.slabID)<<32 | (n & 0xffffffff))
}

// HackSetNextMemoID reseeds the memo counter, for test harnesses that need
// deterministic, non-colliding ids across slabs in one process (spec.md §6
// "test harnesses can seed the counter").
func (c *Counter) HackSetNextMemoID(n uint64) { atomic.StoreUint64(&c.nextMemoID, n) }

// HackSetNextSubjectID reseeds the subject counter; see HackSetNextMemoID.
func (c *Counter) HackSetNextSubjectID(n uint64) { atomic.StoreUint64(&c.nextSubjectID, n) }

func (c *Counter) IncrementMemosReceived() {
	atomic.AddUint64(&c.memosReceived, 1)
}

func (c *Counter) IncrementMemosRedundantlyReceived() {
	atomic.AddUint64(&c.memosRedundantlyReceived, 1)
}

func (c *Counter) MemosReceived() uint64 {
	return atomic.LoadUint64(&c.memosReceived)
}

func (c *Counter) MemosRedundantlyReceived() uint64 {
	return atomic.LoadUint64(&c.memosRedundantlyReceived)
}

func (c *Counter) SetPeerSlabs(n uint32) { atomic.StoreUint32(&c.peerSlabs, n) }
func (c *Counter) PeerSlabs() uint32      { return atomic.LoadUint32(&c.peerSlabs) }
