package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dnorman/unbase-sub001/id"
	"github.com/dnorman/unbase-sub001/memo"
	"github.com/dnorman/unbase-sub001/peer"
)

func testMemo(n uint64) *memo.Memo {
	return &memo.Memo{ID: id.MemoID(n), Parents: memo.Empty(), Body: memo.EditBody{Values: map[string]string{"k": "v"}}}
}

func TestBlackholeDropsSilently(t *testing.T) {
	b := NewBlackhole()
	tx, ok := b.MakeTransmitter(peer.BlackholeAddress())
	require.True(t, ok)
	err := tx.Send(context.Background(), Packet{FromSlabID: 1, ToSlabID: 2, Memo: testMemo(1)})
	require.NoError(t, err)
}

type fakeLocalHandle struct {
	received chan Packet
}

func (f *fakeLocalHandle) ReceivePacket(ctx context.Context, p Packet) error {
	f.received <- p
	return nil
}

type fakeResolver struct {
	slabs map[id.SlabID]LocalSlabHandle
}

func (f *fakeResolver) LocalSlab(slabID id.SlabID) (LocalSlabHandle, bool) {
	h, ok := f.slabs[slabID]
	return h, ok
}

func TestLocalDirectDeliversSynchronously(t *testing.T) {
	handle := &fakeLocalHandle{received: make(chan Packet, 1)}
	resolver := &fakeResolver{slabs: map[id.SlabID]LocalSlabHandle{id.SlabID(2): handle}}

	ld := NewLocalDirect()
	ld.BindNetwork(resolver)

	tx, ok := ld.MakeTransmitter(peer.LocalAddress())
	require.True(t, ok)

	m := testMemo(5)
	err := tx.Send(context.Background(), Packet{FromSlabID: 1, ToSlabID: 2, Memo: m})
	require.NoError(t, err)

	select {
	case got := <-handle.received:
		require.Equal(t, m.ID, got.Memo.ID)
	default:
		t.Fatal("local-direct delivery must be synchronous")
	}
}

func TestLocalDirectUnknownSlabFails(t *testing.T) {
	ld := NewLocalDirect()
	ld.BindNetwork(&fakeResolver{slabs: map[id.SlabID]LocalSlabHandle{}})
	tx, ok := ld.MakeTransmitter(peer.LocalAddress())
	require.True(t, ok)

	err := tx.Send(context.Background(), Packet{FromSlabID: 1, ToSlabID: 99, Memo: testMemo(1)})
	require.Error(t, err)
}

func TestLocalDirectRejectsUDPAddress(t *testing.T) {
	ld := NewLocalDirect()
	_, ok := ld.MakeTransmitter(peer.UDPAddress("127.0.0.1:1234"))
	require.False(t, ok)
}

func TestPacketWireRoundTrip(t *testing.T) {
	ref := peer.NewSlabRef(id.SlabID(9), nil)
	p := Packet{
		FromSlabID: id.SlabID(1),
		ToSlabID:   id.SlabID(2),
		Memo:       testMemo(3),
		PeerList:   []peer.MemoPeerState{{SlabRef: ref, Status: peer.StatusResident}},
	}
	buf := EncodePacket(p)
	got, err := DecodePacket(buf)
	require.NoError(t, err)
	require.Equal(t, p.FromSlabID, got.FromSlabID)
	require.Equal(t, p.ToSlabID, got.ToSlabID)
	require.Equal(t, p.Memo.ID, got.Memo.ID)
	require.Len(t, got.PeerList, 1)
	require.Equal(t, ref.ID(), got.PeerList[0].SlabRef.ID())
	require.Equal(t, peer.StatusResident, got.PeerList[0].Status)
}

func TestUDPTransportLoopback(t *testing.T) {
	server, err := NewUDP("127.0.0.1:0", nil)
	require.NoError(t, err)
	defer server.Close()

	client, err := NewUDP("127.0.0.1:0", nil)
	require.NoError(t, err)
	defer client.Close()

	tx, ok := client.MakeTransmitter(peer.UDPAddress(server.LocalAddr()))
	require.True(t, ok)

	m := testMemo(42)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, tx.Send(ctx, Packet{FromSlabID: 1, ToSlabID: 2, Memo: m}))

	select {
	case got := <-server.Inbound():
		require.Equal(t, m.ID, got.Memo.ID)
	case <-time.After(time.Second):
		t.Fatal("udp packet never arrived")
	}
}
