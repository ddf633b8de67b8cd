// Package transport implements spec.md §4.I: the pluggable Transport/
// Transmitter abstraction with three concrete transports (blackhole,
// local-direct, UDP). Grounded on original_source's
// network/transport/{blackhole,local_direct,udp}.rs for the three concrete
// transports' semantics, and on the teacher's narrow-interface style (e.g.
// proxy.AppConnMempool in proxy/mocks) for keeping Transport/Transmitter
// small and swappable.
package transport

import (
	"context"

	"github.com/dnorman/unbase-sub001/id"
	"github.com/dnorman/unbase-sub001/memo"
	"github.com/dnorman/unbase-sub001/peer"
)

// Packet is the unit exchanged between slabs (spec.md §6): a single memo
// plus the sender's view of its peerset, addressed by slab id.
type Packet struct {
	FromSlabID id.SlabID
	ToSlabID   id.SlabID
	Memo       *memo.Memo
	PeerList   []peer.MemoPeerState
}

// LocalSlabHandle is the narrow capability local-direct delivery needs from
// a slab: just enough to hand it an inbound packet (spec.md §4.H handle
// operation "receive_packet").
type LocalSlabHandle interface {
	ReceivePacket(ctx context.Context, p Packet) error
}

// LocalSlabResolver maps a SlabId to its LocalSlabHandle within one
// process's network registry (spec.md §4.I: "The registry maps
// SlabId -> LocalSlabHandle for local delivery").
type LocalSlabResolver interface {
	LocalSlab(slabID id.SlabID) (LocalSlabHandle, bool)
}

// Transmitter delivers packets to one specific destination. Transports build
// a new Transmitter on every MakeTransmitter call; neither the transports
// nor the network registry cache them.
type Transmitter interface {
	Send(ctx context.Context, p Packet) error
}

// TransmitterFunc adapts a plain function to Transmitter.
type TransmitterFunc func(ctx context.Context, p Packet) error

func (f TransmitterFunc) Send(ctx context.Context, p Packet) error { return f(ctx, p) }

// Transport is the pluggable delivery mechanism a Network binds over
// (spec.md §4.I).
type Transport interface {
	// IsLocal reports whether this transport only ever delivers within the
	// current process (true for local-direct and blackhole, false for UDP).
	IsLocal() bool

	// MakeTransmitter returns a Transmitter able to reach dest, or false if
	// this transport cannot address it (e.g. UDP given a Local address).
	MakeTransmitter(dest peer.TransportAddress) (Transmitter, bool)

	// BindNetwork wires this transport to a local slab resolver, enabling
	// local-direct delivery; transports that don't need one (UDP) may no-op.
	BindNetwork(resolver LocalSlabResolver)

	// UnbindNetwork reverses BindNetwork, e.g. during slab Draining.
	UnbindNetwork()

	// GetReturnAddress maps an incoming address to what the sender should
	// use when replying (spec.md §6: "identity for UDP, Local for Local,
	// Blackhole for unknown").
	GetReturnAddress(addr peer.TransportAddress) peer.TransportAddress
}
