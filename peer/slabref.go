// Package peer implements spec.md components D and E: per-memo routing
// state (MemoPeerSet) and remote-slab identity/reachability (SlabRef,
// SlabPresence). Grounded on
// _examples/original_source/src/slab/memo/peerstate.rs and
// src/slab/convenience.rs.
package peer

import (
	"fmt"

	"github.com/dnorman/unbase-sub001/id"
	tmsync "github.com/dnorman/unbase-sub001/libs/sync"
)

// TransportAddressKind tags a TransportAddress variant (spec.md §6).
type TransportAddressKind uint8

const (
	AddressLocal TransportAddressKind = iota
	AddressSimulator
	AddressUDP
	AddressBlackhole
)

// TransportAddress is the tagged address type from spec.md §6: "Local
// (in-process), Simulator (test), UDP(addr:port), Blackhole".
type TransportAddress struct {
	Kind     TransportAddressKind
	HostPort string // only meaningful when Kind == AddressUDP
}

func LocalAddress() TransportAddress      { return TransportAddress{Kind: AddressLocal} }
func SimulatorAddress() TransportAddress  { return TransportAddress{Kind: AddressSimulator} }
func BlackholeAddress() TransportAddress  { return TransportAddress{Kind: AddressBlackhole} }
func UDPAddress(hostPort string) TransportAddress {
	return TransportAddress{Kind: AddressUDP, HostPort: hostPort}
}

func (a TransportAddress) String() string {
	switch a.Kind {
	case AddressLocal:
		return "Local"
	case AddressSimulator:
		return "Simulator"
	case AddressUDP:
		return "UDP(" + a.HostPort + ")"
	default:
		return "Blackhole"
	}
}

// AnticipatedLifetime describes how long a slab expects to be reachable.
// The beacon-clock-driven liveness scoring described in spec.md §9 is
// stubbed (wall-clock deadlines only); this is carried for forward
// compatibility with that, per the original's SlabAnticipatedLifetime.
type AnticipatedLifetime uint8

const (
	LifetimeUnknown AnticipatedLifetime = iota
	LifetimeEphemeral
	LifetimeLasting
)

// SlabRef is a canonical, shared handle identifying a remote (or local)
// slab. assert_slabref (spec.md §4.H) returns the same *SlabRef for a given
// SlabID across callers and merges new presences into it in place.
type SlabRef struct {
	mu        tmsync.RWMutex
	id        id.SlabID
	presences []SlabPresence
}

// NewSlabRef constructs a SlabRef seeded with an initial presence list.
func NewSlabRef(slabID id.SlabID, presences []SlabPresence) *SlabRef {
	return &SlabRef{id: slabID, presences: append([]SlabPresence(nil), presences...)}
}

func (r *SlabRef) ID() id.SlabID { return r.id }

// MergePresences folds new presences into the ref's known set, one per
// distinct TransportAddress, newest status wins.
func (r *SlabRef) MergePresences(presences []SlabPresence) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range presences {
		found := false
		for i, existing := range r.presences {
			if existing.Address == p.Address {
				r.presences[i] = p
				found = true
				break
			}
		}
		if !found {
			r.presences = append(r.presences, p)
		}
	}
}

// Presences returns a snapshot of the ref's known presences.
func (r *SlabRef) Presences() []SlabPresence {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]SlabPresence(nil), r.presences...)
}

// ReturnAddress picks a presence address to use when replying to this slab,
// preferring a non-Blackhole, non-Simulator address (spec.md §6:
// "get_return_address maps an incoming address to what the sender should
// use when replying").
func (r *SlabRef) ReturnAddress() (TransportAddress, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.presences {
		if p.Address.Kind != AddressBlackhole && p.Address.Kind != AddressSimulator {
			return p.Address, true
		}
	}
	if len(r.presences) > 0 {
		return r.presences[0].Address, true
	}
	return TransportAddress{}, false
}

func (r *SlabRef) String() string {
	return fmt.Sprintf("SlabRef{%d}", r.id)
}

// SlabPresence announces a slab's reachability at a transport address
// (spec.md §3, MemoBody::SlabPresence).
type SlabPresence struct {
	SlabID   id.SlabID
	Address  TransportAddress
	Lifetime AnticipatedLifetime
}
