// Wire encoding for Memo, grounded on encoding/int64.go's hand-rolled
// binary.LittleEndian Encode/Decode/Size style, generalized per spec.md §3.1
// to a tagged union with length-prefixed variable sequences (spec.md §6:
// "deterministic binary encoding... byte-exact agreement on the MemoBody
// variant discriminants and field order"). Map-valued fields (values,
// relations, edges) are written in Go map iteration order, so two encodings
// of the same memo can differ in entry order; Decode accepts any order.
package memo

import (
	"encoding/binary"
	"fmt"

	"github.com/dnorman/unbase-sub001/id"
	"github.com/dnorman/unbase-sub001/peer"
)

type encoder struct {
	buf []byte
}

func (e *encoder) byte(b byte) { e.buf = append(e.buf, b) }

func (e *encoder) u32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	e.buf = append(e.buf, tmp[:]...)
}

func (e *encoder) u64(v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	e.buf = append(e.buf, tmp[:]...)
}

func (e *encoder) bytes(b []byte) {
	e.u32(uint32(len(b)))
	e.buf = append(e.buf, b...)
}

func (e *encoder) str(s string) { e.bytes([]byte(s)) }

func (e *encoder) memoIDs(ids []id.MemoID) {
	e.u32(uint32(len(ids)))
	for _, i := range ids {
		e.u64(uint64(i))
	}
}

func (e *encoder) head(h MemoRefHead) { e.memoIDs(h.MemoIDs()) }

func (e *encoder) stringMap(m map[string]string) {
	e.u32(uint32(len(m)))
	for k, v := range m {
		e.str(k)
		e.str(v)
	}
}

func (e *encoder) relationSet(r RelationSet) {
	e.u32(uint32(len(r)))
	for slot, subj := range r {
		e.u32(uint32(slot))
		e.u64(uint64(subj))
	}
}

func (e *encoder) edgeSet(edges EdgeSet) {
	e.u32(uint32(len(edges)))
	for slot, h := range edges {
		e.u32(uint32(slot))
		e.head(h)
	}
}

func (e *encoder) peerSet(p *peer.MemoPeerSet) {
	if p == nil {
		e.u32(0)
		return
	}
	states := p.States()
	e.u32(uint32(len(states)))
	for _, s := range states {
		e.u64(uint64(s.SlabRef.ID()))
		e.byte(byte(s.Status))
	}
}

func (e *encoder) address(a peer.TransportAddress) {
	e.byte(byte(a.Kind))
	e.str(a.HostPort)
}

func (e *encoder) presence(p peer.SlabPresence) {
	e.u64(uint64(p.SlabID))
	e.address(p.Address)
	e.byte(byte(p.Lifetime))
}

// Encode serializes m to the wire format described in spec.md §6.
func Encode(m *Memo) []byte {
	e := &encoder{}
	e.u64(uint64(m.ID))
	if m.Subject != nil {
		e.byte(1)
		e.u64(uint64(*m.Subject))
	} else {
		e.byte(0)
	}
	e.head(m.Parents)
	e.byte(byte(m.Body.Kind()))

	switch b := m.Body.(type) {
	case FullyMaterializedBody:
		e.stringMap(b.Values)
		e.relationSet(b.Relations)
		e.edgeSet(b.Edges)
		e.byte(byte(b.SubjectType))
	case EditBody:
		e.stringMap(b.Values)
	case RelationBody:
		e.relationSet(b.Relations)
	case EdgeBody:
		e.edgeSet(b.Edges)
	case PeeringBody:
		e.u64(uint64(b.MemoID))
		e.peerSet(b.PeerSet)
	case SlabPresenceBody:
		e.presence(b.Presence)
		e.head(b.RootIndexSeed)
	case MemoRequestBody:
		e.memoIDs(b.MemoIDs)
		e.u64(uint64(b.ReturnSlabRef.ID()))
		presences := b.ReturnSlabRef.Presences()
		e.u32(uint32(len(presences)))
		for _, p := range presences {
			e.presence(p)
		}
	default:
		panic(fmt.Sprintf("memo: unknown body type %T", b))
	}
	return e.buf
}

type decoder struct {
	buf []byte
	off int
}

// ErrShortBuffer is returned when the input is truncated mid-field. Inbound
// packets that fail to decode are dropped and logged, never poisoning slab
// state (spec.md §7).
type ErrShortBuffer struct{ Field string }

func (e *ErrShortBuffer) Error() string { return "memo: short buffer decoding " + e.Field }

// ErrUnknownBodyKind is returned for a discriminant byte this build doesn't
// recognize (e.g. a newer peer's additive field, spec.md §1 Non-goals:
// "schema evolution of memo payloads beyond additive fields" is the one
// schema change this wire format must tolerate at the edges — an unknown
// body kind instead fails loudly rather than silently misinterpreting
// bytes).
type ErrUnknownBodyKind struct{ Kind byte }

func (e *ErrUnknownBodyKind) Error() string {
	return fmt.Sprintf("memo: unknown body kind %d", e.Kind)
}

func (d *decoder) need(n int, field string) error {
	if d.off+n > len(d.buf) {
		return &ErrShortBuffer{Field: field}
	}
	return nil
}

func (d *decoder) byteVal(field string) (byte, error) {
	if err := d.need(1, field); err != nil {
		return 0, err
	}
	b := d.buf[d.off]
	d.off++
	return b, nil
}

func (d *decoder) u32(field string) (uint32, error) {
	if err := d.need(4, field); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(d.buf[d.off:])
	d.off += 4
	return v, nil
}

func (d *decoder) u64(field string) (uint64, error) {
	if err := d.need(8, field); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(d.buf[d.off:])
	d.off += 8
	return v, nil
}

func (d *decoder) bytesVal(field string) ([]byte, error) {
	n, err := d.u32(field)
	if err != nil {
		return nil, err
	}
	if err := d.need(int(n), field); err != nil {
		return nil, err
	}
	out := append([]byte(nil), d.buf[d.off:d.off+int(n)]...)
	d.off += int(n)
	return out, nil
}

func (d *decoder) strVal(field string) (string, error) {
	b, err := d.bytesVal(field)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *decoder) memoIDs(field string) ([]id.MemoID, error) {
	n, err := d.u32(field)
	if err != nil {
		return nil, err
	}
	out := make([]id.MemoID, n)
	for i := range out {
		v, err := d.u64(field)
		if err != nil {
			return nil, err
		}
		out[i] = id.MemoID(v)
	}
	return out, nil
}

// decodedHead builds a MemoRefHead of body-less MemoRefs from a decoded id
// list; the receiving slab resolves bodies lazily through its storage
// backend (spec.md §4.F get_memo allow_remote path).
func decodedHead(ids []id.MemoID) MemoRefHead {
	refs := make([]*MemoRef, len(ids))
	for i, mid := range ids {
		refs[i] = NewMemoRef(mid, nil, nil)
	}
	return MemoRefHead{refs: refs}
}

func (d *decoder) head(field string) (MemoRefHead, error) {
	ids, err := d.memoIDs(field)
	if err != nil {
		return MemoRefHead{}, err
	}
	return decodedHead(ids), nil
}

func (d *decoder) stringMap(field string) (map[string]string, error) {
	n, err := d.u32(field)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, n)
	for i := uint32(0); i < n; i++ {
		k, err := d.strVal(field)
		if err != nil {
			return nil, err
		}
		v, err := d.strVal(field)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

func (d *decoder) relationSet(field string) (RelationSet, error) {
	n, err := d.u32(field)
	if err != nil {
		return nil, err
	}
	out := make(RelationSet, n)
	for i := uint32(0); i < n; i++ {
		slot, err := d.u32(field)
		if err != nil {
			return nil, err
		}
		subj, err := d.u64(field)
		if err != nil {
			return nil, err
		}
		out[RelationSlotID(slot)] = id.SubjectID(subj)
	}
	return out, nil
}

func (d *decoder) edgeSet(field string) (EdgeSet, error) {
	n, err := d.u32(field)
	if err != nil {
		return nil, err
	}
	out := make(EdgeSet, n)
	for i := uint32(0); i < n; i++ {
		slot, err := d.u32(field)
		if err != nil {
			return nil, err
		}
		h, err := d.head(field)
		if err != nil {
			return nil, err
		}
		out[RelationSlotID(slot)] = h
	}
	return out, nil
}

func (d *decoder) peerSet(field string) (*peer.MemoPeerSet, error) {
	n, err := d.u32(field)
	if err != nil {
		return nil, err
	}
	states := make([]peer.MemoPeerState, n)
	for i := uint32(0); i < n; i++ {
		sid, err := d.u64(field)
		if err != nil {
			return nil, err
		}
		status, err := d.byteVal(field)
		if err != nil {
			return nil, err
		}
		states[i] = peer.MemoPeerState{
			SlabRef: peer.NewSlabRef(id.SlabID(sid), nil),
			Status:  peer.MemoPeerStatus(status),
		}
	}
	return peer.NewMemoPeerSet(states), nil
}

func (d *decoder) address(field string) (peer.TransportAddress, error) {
	kind, err := d.byteVal(field)
	if err != nil {
		return peer.TransportAddress{}, err
	}
	hostPort, err := d.strVal(field)
	if err != nil {
		return peer.TransportAddress{}, err
	}
	return peer.TransportAddress{Kind: peer.TransportAddressKind(kind), HostPort: hostPort}, nil
}

func (d *decoder) presence(field string) (peer.SlabPresence, error) {
	sid, err := d.u64(field)
	if err != nil {
		return peer.SlabPresence{}, err
	}
	addr, err := d.address(field)
	if err != nil {
		return peer.SlabPresence{}, err
	}
	lifetime, err := d.byteVal(field)
	if err != nil {
		return peer.SlabPresence{}, err
	}
	return peer.SlabPresence{SlabID: id.SlabID(sid), Address: addr, Lifetime: peer.AnticipatedLifetime(lifetime)}, nil
}

// Decode deserializes a Memo previously produced by Encode. Decode errors
// are always recoverable: the caller drops the packet and logs, per
// spec.md §7 ("Serialization errors on inbound packets... never poison the
// slab").
func Decode(buf []byte) (*Memo, error) {
	d := &decoder{buf: buf}

	midVal, err := d.u64("memo.id")
	if err != nil {
		return nil, err
	}
	hasSubject, err := d.byteVal("memo.has_subject")
	if err != nil {
		return nil, err
	}
	var subj *id.SubjectID
	if hasSubject != 0 {
		sv, err := d.u64("memo.subject_id")
		if err != nil {
			return nil, err
		}
		s := id.SubjectID(sv)
		subj = &s
	}
	parents, err := d.head("memo.parents")
	if err != nil {
		return nil, err
	}
	kind, err := d.byteVal("memo.body.kind")
	if err != nil {
		return nil, err
	}

	var body Body
	switch BodyKind(kind) {
	case BodyKindFullyMaterialized:
		values, err := d.stringMap("memo.body.values")
		if err != nil {
			return nil, err
		}
		relations, err := d.relationSet("memo.body.relations")
		if err != nil {
			return nil, err
		}
		edges, err := d.edgeSet("memo.body.edges")
		if err != nil {
			return nil, err
		}
		st, err := d.byteVal("memo.body.subject_type")
		if err != nil {
			return nil, err
		}
		body = FullyMaterializedBody{Values: values, Relations: relations, Edges: edges, SubjectType: SubjectType(st)}
	case BodyKindEdit:
		values, err := d.stringMap("memo.body.values")
		if err != nil {
			return nil, err
		}
		body = EditBody{Values: values}
	case BodyKindRelation:
		relations, err := d.relationSet("memo.body.relations")
		if err != nil {
			return nil, err
		}
		body = RelationBody{Relations: relations}
	case BodyKindEdge:
		edges, err := d.edgeSet("memo.body.edges")
		if err != nil {
			return nil, err
		}
		body = EdgeBody{Edges: edges}
	case BodyKindPeering:
		targetID, err := d.u64("memo.body.memo_id")
		if err != nil {
			return nil, err
		}
		ps, err := d.peerSet("memo.body.peerset")
		if err != nil {
			return nil, err
		}
		body = PeeringBody{MemoID: id.MemoID(targetID), PeerSet: ps}
	case BodyKindSlabPresence:
		presence, err := d.presence("memo.body.presence")
		if err != nil {
			return nil, err
		}
		seed, err := d.head("memo.body.root_index_seed")
		if err != nil {
			return nil, err
		}
		body = SlabPresenceBody{Presence: presence, RootIndexSeed: seed}
	case BodyKindMemoRequest:
		ids, err := d.memoIDs("memo.body.memo_ids")
		if err != nil {
			return nil, err
		}
		retID, err := d.u64("memo.body.return_slab_id")
		if err != nil {
			return nil, err
		}
		n, err := d.u32("memo.body.return_presences")
		if err != nil {
			return nil, err
		}
		presences := make([]peer.SlabPresence, n)
		for i := uint32(0); i < n; i++ {
			p, err := d.presence("memo.body.return_presences")
			if err != nil {
				return nil, err
			}
			presences[i] = p
		}
		returnRef := peer.NewSlabRef(id.SlabID(retID), presences)
		body = MemoRequestBody{MemoIDs: ids, ReturnSlabRef: *returnRef}
	default:
		return nil, &ErrUnknownBodyKind{Kind: kind}
	}

	return &Memo{ID: id.MemoID(midVal), Subject: subj, Parents: parents, Body: body}, nil
}
