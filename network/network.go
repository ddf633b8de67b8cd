// Package network implements spec.md §4.I's registry half (the Network
// type binds transports to local slabs and maps SlabId -> LocalSlabHandle)
// plus the §2.2 supplemented root-index-seed origination logic ported from
// original_source's util/system_creator.rs and
// slab/storage/memory/basic.rs's Memory::new/conditionally_generate_root_index_seed.
package network

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/dnorman/unbase-sub001/id"
	"github.com/dnorman/unbase-sub001/memo"
	"github.com/dnorman/unbase-sub001/transport"
)

// RootSeedGenerator is the narrow capability Network needs from a slab to
// originate a root index seed: mint a subject id and write a no-parent
// FullyMaterialized memo for it (spec.md §2.2's
// SystemCreator.generate_root_index_seed).
type RootSeedGenerator interface {
	GenerateSubjectID() id.SubjectID
	NewMemoNoParent(subjectID id.SubjectID, body memo.Body) (*memo.MemoRef, error)
}

// Network is a process-local registry of slabs and transports (spec.md
// §4.I). Exactly one Network exists per simulated "machine"; multiple
// slabs in one process (common in tests, scenario S1/S2) share one.
type Network struct {
	mu sync.RWMutex

	transports []transport.Transport
	localSlabs map[id.SlabID]transport.LocalSlabHandle

	nextSlabID   uint32
	rootSeedOnce uint32 // atomic: 0 = not yet generated, 1 = generated
	rootSeed     memo.MemoRefHead
	rootSeedMu   sync.RWMutex
}

// New constructs an empty Network bound to the given transports. At least
// one transport (LocalDirect is the common default) should be supplied so
// slabs in the same process can reach each other.
func New(transports ...transport.Transport) *Network {
	n := &Network{
		transports: transports,
		localSlabs: make(map[id.SlabID]transport.LocalSlabHandle),
		nextSlabID: 1,
	}
	for _, t := range n.transports {
		t.BindNetwork(n)
	}
	return n
}

// GenerateSlabID mints the next slab id for this network (process-local
// counter; global uniqueness isn't required since slab ids only need to be
// unique within the set of peers that ever talk to each other).
func (n *Network) GenerateSlabID() id.SlabID {
	return id.SlabID(atomic.AddUint32(&n.nextSlabID, 1) - 1)
}

// HackSetNextSlabID seeds the slab id counter for deterministic test
// scenarios (spec.md §2.2 "hack_set_next_slab_id").
func (n *Network) HackSetNextSlabID(next uint32) {
	atomic.StoreUint32(&n.nextSlabID, next)
}

// RegisterLocalSlab adds slab to this network's local registry, making it
// reachable via LocalDirect transport and eligible to receive a root index
// seed if it's the first slab registered.
func (n *Network) RegisterLocalSlab(slabID id.SlabID, handle transport.LocalSlabHandle) {
	n.mu.Lock()
	n.localSlabs[slabID] = handle
	n.mu.Unlock()
}

// DeregisterLocalSlab removes slab from the registry (spec.md §4.L slab
// boot state machine's Draining step: "deregisters from the network").
func (n *Network) DeregisterLocalSlab(slabID id.SlabID) {
	n.mu.Lock()
	delete(n.localSlabs, slabID)
	n.mu.Unlock()
}

// LocalSlab implements transport.LocalSlabResolver.
func (n *Network) LocalSlab(slabID id.SlabID) (transport.LocalSlabHandle, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	h, ok := n.localSlabs[slabID]
	return h, ok
}

// Transports returns the transports bound to this network, in registration
// order; callers pick the first that can address a given peer.
func (n *Network) Transports() []transport.Transport {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return append([]transport.Transport(nil), n.transports...)
}

// ConditionallyGenerateRootIndexSeed originates a root index seed if (and
// only if) this network hasn't generated one yet, i.e. gen is the first
// slab to register (spec.md §2.2; original: Network::conditionally_generate_root_index_seed
// called from Memory::new right after register_local_slab).
//
// Later slabs call this too — it's a no-op for them; they instead adopt the
// seed conveyed via a SlabPresence memo from whichever slab generated it.
func (n *Network) ConditionallyGenerateRootIndexSeed(gen RootSeedGenerator) {
	if !atomic.CompareAndSwapUint32(&n.rootSeedOnce, 0, 1) {
		return
	}
	seed := GenerateRootIndexSeed(gen)
	n.rootSeedMu.Lock()
	n.rootSeed = seed
	n.rootSeedMu.Unlock()
}

// AdoptRootIndexSeed records a root index seed conveyed by a peer over
// SlabPresenceBody, for a slab that joined after the system originator.
func (n *Network) AdoptRootIndexSeed(seed memo.MemoRefHead) {
	n.rootSeedMu.Lock()
	defer n.rootSeedMu.Unlock()
	if n.rootSeed.IsEmpty() {
		n.rootSeed = seed
	}
}

// RootIndexSeed returns the network's root index seed, if generated or
// adopted yet.
func (n *Network) RootIndexSeed() (memo.MemoRefHead, bool) {
	n.rootSeedMu.RLock()
	defer n.rootSeedMu.RUnlock()
	return n.rootSeed, !n.rootSeed.IsEmpty()
}

// GenerateRootIndexSeed materializes a tier-0 IndexNode subject with no
// parents (spec.md §2.2, ported from SystemCreator.generate_root_index_seed
// "in spirit": a tier-0 IndexNode subject with no parents, materialized via
// MemoBody.FullyMaterialized").
func GenerateRootIndexSeed(gen RootSeedGenerator) memo.MemoRefHead {
	subjectID := gen.GenerateSubjectID()
	body := memo.FullyMaterializedBody{
		Values:      map[string]string{"tier": "0"},
		Relations:   memo.RelationSet{},
		Edges:       memo.EdgeSet{},
		SubjectType: memo.SubjectTypeIndexNode,
	}
	ref, err := gen.NewMemoNoParent(subjectID, body)
	if err != nil {
		// Root seed origination happens once at system bootstrap against a
		// local, just-constructed slab; a failure here means the slab's own
		// storage layer is broken, which no caller can recover from.
		panic(err)
	}
	return ref.ToHead()
}

// Broadcast sends a packet to every local slab except originator — used by
// tests that want to fan a memo out to every slab in a simulated network
// without going through a single slab's own peerset.
func (n *Network) Broadcast(ctx context.Context, originator id.SlabID, p transport.Packet) {
	n.mu.RLock()
	targets := make(map[id.SlabID]transport.LocalSlabHandle, len(n.localSlabs))
	for sid, h := range n.localSlabs {
		if sid != originator {
			targets[sid] = h
		}
	}
	n.mu.RUnlock()
	for sid, h := range targets {
		pp := p
		pp.ToSlabID = sid
		_ = h.ReceivePacket(ctx, pp)
	}
}
