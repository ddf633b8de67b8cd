package memo

import (
	"context"

	"github.com/dnorman/unbase-sub001/id"
)

// DefaultDescendsDepthLimit bounds the BFS descends() performs over a
// memo's transitive parents (spec.md §4.C: "a bounded BFS over a.parents up
// to a configurable depth limit").
const DefaultDescendsDepthLimit = 64

// Resolver fetches a memo body for a ref that doesn't have one locally yet,
// standing in for the slab's lazy parent-resolution path (spec.md §4.C:
// "unresolved parents are fetched lazily through the slab").
type Resolver interface {
	ResolveMemo(ctx context.Context, ref *MemoRef) (*Memo, error)
}

// ResolverFunc adapts a plain function to Resolver.
type ResolverFunc func(ctx context.Context, ref *MemoRef) (*Memo, error)

func (f ResolverFunc) ResolveMemo(ctx context.Context, ref *MemoRef) (*Memo, error) {
	return f(ctx, ref)
}

// MemoRefHead (MRH) is an antichain of MemoRefs: the causal frontier of a
// subject (spec.md §3). The empty MemoRefHead (zero value) is ⊥.
type MemoRefHead struct {
	refs []*MemoRef
}

// Empty returns the bottom MemoRefHead, ⊥.
func Empty() MemoRefHead { return MemoRefHead{} }

// IsEmpty reports whether this head is ⊥.
func (h MemoRefHead) IsEmpty() bool { return len(h.refs) == 0 }

// Refs returns the head's MemoRefs. The caller must not mutate the
// returned slice.
func (h MemoRefHead) Refs() []*MemoRef { return h.refs }

// MemoIDs returns the head's member MemoIDs, for logging/comparison.
func (h MemoRefHead) MemoIDs() []id.MemoID {
	out := make([]id.MemoID, len(h.refs))
	for i, r := range h.refs {
		out[i] = r.ID()
	}
	return out
}

// Contains reports whether memoID is a direct member of this head.
func (h MemoRefHead) Contains(memoID id.MemoID) bool {
	for _, r := range h.refs {
		if r.ID() == memoID {
			return true
		}
	}
	return false
}

// Clone returns a shallow copy (the MemoRefs themselves are shared, as per
// spec.md §3 Ownership: "MemoRef is shared").
func (h MemoRefHead) Clone() MemoRefHead {
	return MemoRefHead{refs: append([]*MemoRef(nil), h.refs...)}
}

// Equal reports set equality by MemoID (spec.md §3: "Equality is set
// equality by memo_id").
func (h MemoRefHead) Equal(other MemoRefHead) bool {
	if len(h.refs) != len(other.refs) {
		return false
	}
	for _, r := range h.refs {
		if !other.Contains(r.ID()) {
			return false
		}
	}
	return true
}

// ancestry is tri-state because bounded BFS can fail to reach a conclusion
// (spec.md §4.C: "If resolution cannot complete, descends returns
// unknown").
type ancestry int

const (
	ancestryNo ancestry = iota
	ancestryYes
	ancestryUnknown
)

// isAncestorOf performs a bounded BFS over of's transitive parents looking
// for candidateID, resolving unfetched parent bodies via resolver
// (spec.md §4.C algorithm step 2/3: "new's transitive parents include h").
func isAncestorOf(ctx context.Context, resolver Resolver, candidateID id.MemoID, of *MemoRef, depthLimit int) (ancestry, error) {
	if of.ID() == candidateID {
		return ancestryNo, nil // a memo is not its own ancestor
	}

	type frontierEntry struct {
		ref   *MemoRef
		depth int
	}

	visited := map[id.MemoID]bool{of.ID(): true}
	frontier := []frontierEntry{{ref: of, depth: 0}}
	sawUnknown := false

	for len(frontier) > 0 {
		cur := frontier[0]
		frontier = frontier[1:]

		if cur.depth >= depthLimit {
			sawUnknown = true
			continue
		}

		m, ok := cur.ref.Memo()
		if !ok {
			if resolver == nil {
				sawUnknown = true
				continue
			}
			fetched, err := resolver.ResolveMemo(ctx, cur.ref)
			if err != nil {
				sawUnknown = true
				continue
			}
			cur.ref.SetMemo(fetched)
			m = fetched
		}

		for _, p := range m.Parents.refs {
			if p.ID() == candidateID {
				return ancestryYes, nil
			}
			if visited[p.ID()] {
				continue
			}
			visited[p.ID()] = true
			frontier = append(frontier, frontierEntry{ref: p, depth: cur.depth + 1})
		}
	}

	if sawUnknown {
		return ancestryUnknown, nil
	}
	return ancestryNo, nil
}

// Apply implements apply_memoref (spec.md §4.C): deterministic,
// associative-commutative so concurrent applications converge. Returns
// whether the head changed.
func (h *MemoRefHead) Apply(ctx context.Context, resolver Resolver, newRef *MemoRef) (bool, error) {
	return h.ApplyWithDepthLimit(ctx, resolver, newRef, DefaultDescendsDepthLimit)
}

// ApplyWithDepthLimit is Apply with an explicit BFS depth limit, exposed for
// tests exercising the "unknown -> incomparable" fallback.
func (h *MemoRefHead) ApplyWithDepthLimit(ctx context.Context, resolver Resolver, newRef *MemoRef, depthLimit int) (bool, error) {
	if h.Contains(newRef.ID()) {
		return false, nil
	}

	var toRemove []id.MemoID
	for _, existing := range h.refs {
		anc, err := isAncestorOf(ctx, resolver, existing.ID(), newRef, depthLimit)
		if err != nil {
			return false, err
		}
		if anc == ancestryYes {
			toRemove = append(toRemove, existing.ID())
		}
	}

	for _, existing := range h.refs {
		removing := false
		for _, r := range toRemove {
			if r == existing.ID() {
				removing = true
				break
			}
		}
		if removing {
			continue
		}
		anc, err := isAncestorOf(ctx, resolver, newRef.ID(), existing, depthLimit)
		if err != nil {
			return false, err
		}
		if anc == ancestryYes {
			// some existing head descends new: new is already subsumed.
			return false, nil
		}
	}

	kept := h.refs[:0:0]
	for _, existing := range h.refs {
		removed := false
		for _, r := range toRemove {
			if r == existing.ID() {
				removed = true
				break
			}
		}
		if !removed {
			kept = append(kept, existing)
		}
	}
	kept = append(kept, newRef)
	h.refs = kept
	return true, nil
}

// Merge folds other into h via successive Apply calls (spec.md §4.C:
// "Merge H1 ⊔ H2 is successive apply_memoref").
func (h *MemoRefHead) Merge(ctx context.Context, resolver Resolver, other MemoRefHead) error {
	for _, r := range other.refs {
		if _, err := h.Apply(ctx, resolver, r); err != nil {
			return err
		}
	}
	return nil
}

// Union returns a new head formed by merging a and b, without mutating
// either (used by contexts reconciling two independently-derived heads,
// spec.md §8 scenario S6).
func Union(ctx context.Context, resolver Resolver, a, b MemoRefHead) (MemoRefHead, error) {
	out := a.Clone()
	if err := out.Merge(ctx, resolver, b); err != nil {
		return MemoRefHead{}, err
	}
	return out, nil
}
