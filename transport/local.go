package transport

import (
	"context"

	"github.com/dnorman/unbase-sub001/errs"
	tmsync "github.com/dnorman/unbase-sub001/libs/sync"
	"github.com/dnorman/unbase-sub001/peer"
)

// LocalDirect delivers packets synchronously to another slab registered in
// the same process's network registry (original_source:
// network/transport/local_direct.rs). It's the transport scenario S1/S2 use
// before any UDP socket is involved.
type LocalDirect struct {
	mu       tmsync.RWMutex
	resolver LocalSlabResolver
}

func NewLocalDirect() *LocalDirect { return &LocalDirect{} }

func (l *LocalDirect) IsLocal() bool { return true }

func (l *LocalDirect) BindNetwork(resolver LocalSlabResolver) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resolver = resolver
}

func (l *LocalDirect) UnbindNetwork() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resolver = nil
}

func (l *LocalDirect) MakeTransmitter(dest peer.TransportAddress) (Transmitter, bool) {
	if dest.Kind != peer.AddressLocal && dest.Kind != peer.AddressSimulator {
		return nil, false
	}
	return TransmitterFunc(func(ctx context.Context, p Packet) error {
		l.mu.RLock()
		resolver := l.resolver
		l.mu.RUnlock()
		if resolver == nil {
			return errs.ErrTransmitterNotFound
		}
		handle, ok := resolver.LocalSlab(p.ToSlabID)
		if !ok {
			return errs.ErrSlabNotFound
		}
		return handle.ReceivePacket(ctx, p)
	}), true
}

func (l *LocalDirect) GetReturnAddress(addr peer.TransportAddress) peer.TransportAddress {
	return peer.LocalAddress()
}
