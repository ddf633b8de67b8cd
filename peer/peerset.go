package peer

import (
	tmsync "github.com/dnorman/unbase-sub001/libs/sync"
)

// MemoPeerStatus is a peer's known relationship to a memo (spec.md §3).
type MemoPeerStatus uint8

const (
	StatusUnknown MemoPeerStatus = iota
	StatusNonParticipating
	StatusParticipating
	StatusResident
)

func (s MemoPeerStatus) String() string {
	switch s {
	case StatusResident:
		return "Resident"
	case StatusParticipating:
		return "Participating"
	case StatusNonParticipating:
		return "NonParticipating"
	default:
		return "Unknown"
	}
}

// rank gives MemoPeerStatus a total order to compare against, matching
// invariant 4 in spec.md §8: "once Resident, not downgraded without
// evidence." We treat a higher rank as stronger evidence of residency.
func (s MemoPeerStatus) rank() int {
	switch s {
	case StatusResident:
		return 3
	case StatusParticipating:
		return 2
	case StatusNonParticipating:
		return 1
	default:
		return 0
	}
}

// MemoPeerState is one peer's status for a given memo.
type MemoPeerState struct {
	SlabRef *SlabRef
	Status  MemoPeerStatus
}

// MemoPeerSet is the per-memo routing table (spec.md §4.D), a set keyed by
// SlabRef where status updates overwrite (spec invariant: "each slabref
// appears once; status updates overwrite").
type MemoPeerSet struct {
	mu   tmsync.RWMutex
	list []MemoPeerState
}

// NewMemoPeerSet constructs a peer set from an initial list.
func NewMemoPeerSet(list []MemoPeerState) *MemoPeerSet {
	return &MemoPeerSet{list: append([]MemoPeerState(nil), list...)}
}

// ApplyPeerState merges a single peer state, honoring the monotonic-status
// rule: a downgrade (e.g. Resident -> Unknown) is only applied if the
// existing status hasn't already reached a higher rank, same as
// peerstate.rs's "same slabref... status != my_peerstate.status" branch
// extended with the monotonicity invariant from spec.md §8 #4.
func (p *MemoPeerSet) ApplyPeerState(state MemoPeerState) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.applyLocked(state)
}

func (p *MemoPeerSet) applyLocked(state MemoPeerState) bool {
	for i := range p.list {
		if p.list[i].SlabRef.ID() == state.SlabRef.ID() {
			if state.Status == p.list[i].Status {
				return false
			}
			if state.Status.rank() < p.list[i].Status.rank() {
				// Don't silently downgrade; a fresher Unknown reading
				// doesn't prove the peer lost the memo.
				return false
			}
			p.list[i].Status = state.Status
			return true
		}
	}
	p.list = append(p.list, state)
	return true
}

// ApplyPeerSet merges every state from other into p, returning whether
// anything changed. Idempotent: applying the same set twice in a row is a
// no-op the second time (spec.md §8 invariant 4).
func (p *MemoPeerSet) ApplyPeerSet(other *MemoPeerSet) bool {
	if other == nil {
		return false
	}
	other.mu.RLock()
	states := append([]MemoPeerState(nil), other.list...)
	other.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	acted := false
	for _, s := range states {
		if p.applyLocked(s) {
			acted = true
		}
	}
	return acted
}

// SlabRefs returns the set of SlabRefs known to this peer set.
func (p *MemoPeerSet) SlabRefs() []*SlabRef {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*SlabRef, len(p.list))
	for i, s := range p.list {
		out[i] = s.SlabRef
	}
	return out
}

// States returns a snapshot of this peer set's entries.
func (p *MemoPeerSet) States() []MemoPeerState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]MemoPeerState(nil), p.list...)
}

// WithStatus returns the slabrefs currently at or above the given status
// rank, e.g. Participating peers for gossip fanout (spec.md §4.G step 4).
func (p *MemoPeerSet) WithStatus(min MemoPeerStatus) []*SlabRef {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []*SlabRef
	for _, s := range p.list {
		if s.Status.rank() >= min.rank() && min != StatusUnknown {
			out = append(out, s.SlabRef)
		}
	}
	return out
}

// CountStatus returns how many peers currently hold exactly the given
// status, used by peering remediation (spec.md §4.G step 5) to decide
// whether more pushes are needed.
func (p *MemoPeerSet) CountStatus(status MemoPeerStatus) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := 0
	for _, s := range p.list {
		if s.Status == status {
			n++
		}
	}
	return n
}

// ExcludingSlabRef returns a copy of this peer set with the given slabref
// removed, matching peerstate.rs's for_slabref: "never tell a peer about
// itself" (spec.md §4.F get_peerset).
func (p *MemoPeerSet) ExcludingSlabRef(excl *SlabRef) *MemoPeerSet {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]MemoPeerState, 0, len(p.list))
	for _, s := range p.list {
		if excl == nil || s.SlabRef.ID() != excl.ID() {
			out = append(out, s)
		}
	}
	return NewMemoPeerSet(out)
}

// Clone returns an independent copy of the peer set.
func (p *MemoPeerSet) Clone() *MemoPeerSet {
	return p.ExcludingSlabRef(nil)
}
