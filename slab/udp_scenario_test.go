//go:build udp_scenario

package slab

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dnorman/unbase-sub001/memo"
	"github.com/dnorman/unbase-sub001/network"
	"github.com/dnorman/unbase-sub001/peer"
	"github.com/dnorman/unbase-sub001/transport"
)

// pumpUDP drains a UDP transport's decoded packets into resolver's
// locally-registered slabs, standing in for the always-on packet loop a
// real process runs (cmd/unbase's run command does the same thing).
func pumpUDP(ctx context.Context, resolver transport.LocalSlabResolver, u *transport.UDP) {
	for {
		select {
		case <-ctx.Done():
			return
		case p := <-u.Inbound():
			if handle, ok := resolver.LocalSlab(p.ToSlabID); ok {
				_ = handle.ReceivePacket(ctx, p)
			}
		}
	}
}

// TestScenarioS3UDPEndToEnd is spec.md §8 S3: two slabs bound to real UDP
// sockets at 127.0.0.1:12021/:12022; slab B, already aware (via a peering
// pointer, the role a gossip/index layer would otherwise supply) that slab
// A holds a given memo, fetches it across the wire and reads the value.
//
// Requires binding real loopback sockets, hence the build tag.
func TestScenarioS3UDPEndToEnd(t *testing.T) {
	udpA, err := transport.NewUDP("127.0.0.1:12021", nil)
	require.NoError(t, err)
	defer udpA.Close()

	udpB, err := transport.NewUDP("127.0.0.1:12022", nil)
	require.NoError(t, err)
	defer udpB.Close()

	netA := network.New(udpA)
	netB := network.New(udpB)

	a := New(netA, Config{})
	b := New(netB, Config{})

	pumpCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pumpUDP(pumpCtx, netA, udpA)
	go pumpUDP(pumpCtx, netB, udpB)

	b.self.MergePresences([]peer.SlabPresence{{SlabID: b.ID(), Address: peer.UDPAddress(udpB.LocalAddr())}})

	subjectID := a.GenerateSubjectID()
	ref, err := a.NewMemo(context.Background(), &subjectID, memo.Empty(),
		memo.EditBody{Values: map[string]string{"beast": "Lion", "sound": "Roar"}}, nil)
	require.NoError(t, err)

	aRefFromB := b.AssertSlabRef(a.ID(), []peer.SlabPresence{{SlabID: a.ID(), Address: peer.UDPAddress(udpA.LocalAddr())}})
	_, err = b.store.PutMemoRef(context.Background(), ref.ID(), &subjectID,
		peer.NewMemoPeerSet([]peer.MemoPeerState{{SlabRef: aRefFromB, Status: peer.StatusResident}}))
	require.NoError(t, err)

	got, err := b.GetMemoByID(context.Background(), ref.ID(), true, 2*time.Second)
	require.NoError(t, err)
	require.Equal(t, ref.ID(), got.ID)

	editBody, ok := got.Body.(memo.EditBody)
	require.True(t, ok)
	require.Equal(t, "Lion", editBody.Values["beast"])
	require.Equal(t, "Roar", editBody.Values["sound"])
}
