package transport

import (
	"context"

	"github.com/dnorman/unbase-sub001/peer"
)

// Blackhole drops every packet handed to it, used for simulating an
// unreachable peer in tests (original_source: network/transport/blackhole.rs).
type Blackhole struct{}

func NewBlackhole() *Blackhole { return &Blackhole{} }

func (b *Blackhole) IsLocal() bool { return true }

func (b *Blackhole) MakeTransmitter(dest peer.TransportAddress) (Transmitter, bool) {
	return TransmitterFunc(func(ctx context.Context, p Packet) error {
		return nil
	}), true
}

func (b *Blackhole) BindNetwork(resolver LocalSlabResolver) {}
func (b *Blackhole) UnbindNetwork()                          {}

func (b *Blackhole) GetReturnAddress(addr peer.TransportAddress) peer.TransportAddress {
	return peer.BlackholeAddress()
}
