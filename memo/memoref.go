package memo

import (
	tmsync "github.com/dnorman/unbase-sub001/libs/sync"

	"github.com/dnorman/unbase-sub001/id"
	"github.com/dnorman/unbase-sub001/peer"
)

// MemoRef is a lazy handle to a memo: its body (see Memo) is nil if the memo
// is only referenced, not locally held (spec.md §3). PeerSet is mutated in place
// under the owning slab's storage discipline (spec.md §5 "Shared
// resources").
type MemoRef struct {
	mu        tmsync.RWMutex
	id        id.MemoID
	subjectID *id.SubjectID
	peerSet   *peer.MemoPeerSet
	memo      *Memo
}

// NewMemoRef constructs a body-less ref (spec.md §4.F put_memoref).
func NewMemoRef(memoID id.MemoID, subjectID *id.SubjectID, peerSet *peer.MemoPeerSet) *MemoRef {
	if peerSet == nil {
		peerSet = peer.NewMemoPeerSet(nil)
	}
	return &MemoRef{id: memoID, subjectID: subjectID, peerSet: peerSet}
}

// NewResolvedMemoRef constructs a ref that already holds its memo body,
// e.g. immediately after a local write.
func NewResolvedMemoRef(m *Memo, peerSet *peer.MemoPeerSet) *MemoRef {
	r := NewMemoRef(m.ID, m.Subject, peerSet)
	r.memo = m
	return r
}

func (r *MemoRef) ID() id.MemoID           { return r.id }
func (r *MemoRef) SubjectID() *id.SubjectID { return r.subjectID }
func (r *MemoRef) PeerSet() *peer.MemoPeerSet { return r.peerSet }

// Memo returns the locally held memo body, if any.
func (r *MemoRef) Memo() (*Memo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.memo, r.memo != nil
}

// SetMemo attaches a resolved memo body to this ref (called after a fetch).
// The caller must have already verified (via MemoID equality) that body
// matches this ref's id, per the data-model invariant that two memos
// sharing an id have identical bodies.
func (r *MemoRef) SetMemo(m *Memo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.memo = m
}

// Remotize drops the locally held body, keeping the ref and its peerset
// (spec.md §3 Lifecycles: "A memo may be remotized... when peerset shows
// sufficient residency elsewhere").
func (r *MemoRef) Remotize() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.memo = nil
}

// ToHead wraps this ref in a singleton MemoRefHead.
func (r *MemoRef) ToHead() MemoRefHead {
	return MemoRefHead{refs: []*MemoRef{r}}
}
