// Package memo implements spec.md components B and C: the immutable Memo/
// MemoBody payload types and the MemoRef/MemoRefHead causal-frontier algebra
// that sits directly on top of them. They share a package because Memo.Parents
// is a MemoRefHead and a MemoRef holds an optional *Memo body — the same mutual
// recursion the original Rust crate has within a single module
// (_examples/original_source/src/network/packet/mod.rs imports both from
// "slab::prelude::*").
package memo

import (
	"fmt"

	"github.com/dnorman/unbase-sub001/id"
	"github.com/dnorman/unbase-sub001/peer"
)

// SubjectType distinguishes an ordinary record subject from an index-tree
// node subject (spec.md §4.K: "Subject types: Record, IndexNode").
type SubjectType uint8

const (
	SubjectTypeRecord SubjectType = iota
	SubjectTypeIndexNode
)

func (t SubjectType) String() string {
	if t == SubjectTypeIndexNode {
		return "IndexNode"
	}
	return "Record"
}

// RelationSlotID indexes into a subject's relation/edge slots.
type RelationSlotID uint32

// RelationSet is a patch of slot -> subject id relations (spec.md §3,
// MemoBody::Relation).
type RelationSet map[RelationSlotID]id.SubjectID

// Clone returns an independent copy.
func (r RelationSet) Clone() RelationSet {
	out := make(RelationSet, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// EdgeSet is a patch of slot -> MemoRefHead edges (spec.md §3, MemoBody::Edge).
// Edges let a reader resolve a relation's target head across contexts
// without consulting the target context's own stash (spec.md §4.K).
type EdgeSet map[RelationSlotID]MemoRefHead

// Clone returns an independent copy; the inner heads are themselves
// immutable sets of MemoRefs so a shallow copy of each is sufficient.
func (e EdgeSet) Clone() EdgeSet {
	out := make(EdgeSet, len(e))
	for k, v := range e {
		out[k] = v.Clone()
	}
	return out
}

// Memo is the immutable, append-only unit of replication (spec.md §3).
// Once written it is bit-identical on every slab that holds it; two memos
// sharing a MemoID must have identical bodies (spec invariant).
type Memo struct {
	ID      id.MemoID
	Subject *id.SubjectID // nil when the memo has no associated subject
	Parents MemoRefHead
	Body    Body
}

// HasSubject reports whether the memo is associated with a subject.
func (m *Memo) HasSubject() bool { return m.Subject != nil }

func (m *Memo) String() string {
	subj := "none"
	if m.Subject != nil {
		subj = fmt.Sprintf("%d", *m.Subject)
	}
	return fmt.Sprintf("Memo{id=%d subject=%s parents=%v body=%T}", m.ID, subj, m.Parents.MemoIDs(), m.Body)
}

// BodyKind is the wire discriminant for a MemoBody variant (spec.md §6:
// "byte-exact agreement on the MemoBody variant discriminants").
type BodyKind uint8

const (
	BodyKindFullyMaterialized BodyKind = iota
	BodyKindEdit
	BodyKindRelation
	BodyKindEdge
	BodyKindPeering
	BodyKindSlabPresence
	BodyKindMemoRequest
)

// Body is the tagged union of memo payloads (spec.md §3).
type Body interface {
	Kind() BodyKind
}

// FullyMaterializedBody is a complete snapshot of a subject's state.
type FullyMaterializedBody struct {
	Values      map[string]string
	Relations   RelationSet
	Edges       EdgeSet
	SubjectType SubjectType
}

func (FullyMaterializedBody) Kind() BodyKind { return BodyKindFullyMaterialized }

// EditBody is a patch to a subject's values.
type EditBody struct {
	Values map[string]string
}

func (EditBody) Kind() BodyKind { return BodyKindEdit }

// RelationBody is a patch to a subject's slot->subject relations.
type RelationBody struct {
	Relations RelationSet
}

func (RelationBody) Kind() BodyKind { return BodyKindRelation }

// EdgeBody is a patch to a subject's slot->head edges.
type EdgeBody struct {
	Edges EdgeSet
}

func (EdgeBody) Kind() BodyKind { return BodyKindEdge }

// PeeringBody announces peer state for another memo (spec.md §4.G step 1:
// "If the memo is a Peering body, apply its referenced peerset to the
// target memo").
type PeeringBody struct {
	MemoID  id.MemoID
	PeerSet *peer.MemoPeerSet
}

func (PeeringBody) Kind() BodyKind { return BodyKindPeering }

// SlabPresenceBody introduces a slab to the network, optionally carrying
// the root index seed for a new slab to adopt verbatim (spec.md §6
// "Environment").
type SlabPresenceBody struct {
	Presence      peer.SlabPresence
	RootIndexSeed MemoRefHead
}

func (SlabPresenceBody) Kind() BodyKind { return BodyKindSlabPresence }

// MemoRequestBody is a pull request for one or more memos by id.
type MemoRequestBody struct {
	MemoIDs        []id.MemoID
	ReturnSlabRef  peer.SlabRef
}

func (MemoRequestBody) Kind() BodyKind { return BodyKindMemoRequest }
