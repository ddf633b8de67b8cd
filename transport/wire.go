package transport

import (
	"encoding/binary"
	"fmt"

	"github.com/dnorman/unbase-sub001/id"
	"github.com/dnorman/unbase-sub001/memo"
	"github.com/dnorman/unbase-sub001/peer"
)

// EncodePacket serializes a Packet to the format carried over UDP (spec.md
// §6: "body is a serialized Packet{from_slab_id, to_slab_id, memo,
// peerlist}"), reusing memo.Encode for the embedded memo.
func EncodePacket(p Packet) []byte {
	var buf []byte
	var tmp [8]byte

	binary.LittleEndian.PutUint64(tmp[:], uint64(p.FromSlabID))
	buf = append(buf, tmp[:]...)
	binary.LittleEndian.PutUint64(tmp[:], uint64(p.ToSlabID))
	buf = append(buf, tmp[:]...)

	memoBytes := memo.Encode(p.Memo)
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(memoBytes)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, memoBytes...)

	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(p.PeerList)))
	buf = append(buf, lenBuf[:]...)
	for _, state := range p.PeerList {
		binary.LittleEndian.PutUint64(tmp[:], uint64(state.SlabRef.ID()))
		buf = append(buf, tmp[:]...)
		buf = append(buf, byte(state.Status))
	}
	return buf
}

// DecodePacket is the inverse of EncodePacket. Decode errors are always
// recoverable: the UDP transport drops and logs rather than propagating a
// failure into slab state (spec.md §7).
func DecodePacket(buf []byte) (Packet, error) {
	off := 0
	need := func(n int) error {
		if off+n > len(buf) {
			return fmt.Errorf("transport: short packet buffer at offset %d, need %d more bytes", off, n)
		}
		return nil
	}

	if err := need(8); err != nil {
		return Packet{}, err
	}
	fromSlab := id.SlabID(binary.LittleEndian.Uint64(buf[off:]))
	off += 8

	if err := need(8); err != nil {
		return Packet{}, err
	}
	toSlab := id.SlabID(binary.LittleEndian.Uint64(buf[off:]))
	off += 8

	if err := need(4); err != nil {
		return Packet{}, err
	}
	memoLen := int(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	if err := need(memoLen); err != nil {
		return Packet{}, err
	}
	decodedMemo, err := memo.Decode(buf[off : off+memoLen])
	if err != nil {
		return Packet{}, err
	}
	off += memoLen

	if err := need(4); err != nil {
		return Packet{}, err
	}
	n := int(binary.LittleEndian.Uint32(buf[off:]))
	off += 4

	peerList := make([]peer.MemoPeerState, n)
	for i := 0; i < n; i++ {
		if err := need(8); err != nil {
			return Packet{}, err
		}
		slabID := id.SlabID(binary.LittleEndian.Uint64(buf[off:]))
		off += 8
		if err := need(1); err != nil {
			return Packet{}, err
		}
		status := peer.MemoPeerStatus(buf[off])
		off++
		peerList[i] = peer.MemoPeerState{SlabRef: peer.NewSlabRef(slabID, nil), Status: status}
	}

	return Packet{FromSlabID: fromSlab, ToSlabID: toSlab, Memo: decodedMemo, PeerList: peerList}, nil
}
