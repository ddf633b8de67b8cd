// Package slab implements spec.md §4.H: a single logical Slab instance
// holding storage, peer tracking, dispatch, and transport bindings, exposed
// to client code as a *Slab pointer. Grounded on
// _examples/original_source/src/slab/{convenience.rs,counter.rs,handle.rs}
// and slab/storage/memory/basic.rs's Memory::new wiring sequence
// (register_local_slab then conditionally_generate_root_index_seed).
package slab

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dnorman/unbase-sub001/context"
	"github.com/dnorman/unbase-sub001/dispatch"
	"github.com/dnorman/unbase-sub001/errs"
	"github.com/dnorman/unbase-sub001/id"
	"github.com/dnorman/unbase-sub001/libs/log"
	"github.com/dnorman/unbase-sub001/memo"
	"github.com/dnorman/unbase-sub001/metrics"
	"github.com/dnorman/unbase-sub001/network"
	"github.com/dnorman/unbase-sub001/peer"
	"github.com/dnorman/unbase-sub001/store"
	"github.com/dnorman/unbase-sub001/transport"
)

// BootState is the slab lifecycle state machine from spec.md §4.L:
// "Initial -> AwaitingRootSeed -> Ready -> Draining -> Terminated".
type BootState int32

const (
	BootAwaitingRootSeed BootState = iota
	BootReady
	BootDraining
	BootTerminated
)

func (s BootState) String() string {
	switch s {
	case BootAwaitingRootSeed:
		return "AwaitingRootSeed"
	case BootReady:
		return "Ready"
	case BootDraining:
		return "Draining"
	case BootTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// Slab is a single logical node: the owner of a memo store, a dispatcher,
// and a peer-tracking table, reachable by one or more transports (spec.md
// §4.H). Slab is not itself cheap to copy; client code shares a *Slab.
type Slab struct {
	id      id.SlabID
	net     *network.Network
	counter *id.Counter
	store   store.SlabStore
	dsp     *dispatch.Dispatcher
	logger  log.Logger

	self *peer.SlabRef

	bootState int32 // atomic BootState

	mu                  sync.RWMutex
	slabRefs            map[id.SlabID]*peer.SlabRef
	rootIndexSeedWaiter chan struct{}
	rootIndexSeedOnce   sync.Once
}

// Config bundles what New needs beyond the network.
type Config struct {
	Store        store.SlabStore // nil constructs an in-memory default
	MinResidents int
	Logger       log.Logger
	Metrics      *metrics.Metrics // nil installs NopMetrics
}

// New constructs a Slab, registers it with net, and — if it is the first
// slab registered with net — originates the root index seed (spec.md §2.2,
// §4.L AwaitingRootSeed).
func New(net *network.Network, cfg Config) *Slab {
	slabID := net.GenerateSlabID()
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	dcfg := dispatch.DefaultConfig()
	if cfg.MinResidents > 0 {
		dcfg.MinResidents = cfg.MinResidents
	}

	s := &Slab{
		id:                  slabID,
		net:                 net,
		counter:             id.NewCounter(slabID),
		store:               cfg.Store,
		logger:              logger,
		slabRefs:            make(map[id.SlabID]*peer.SlabRef),
		rootIndexSeedWaiter: make(chan struct{}),
		bootState:           int32(BootAwaitingRootSeed),
	}
	if s.store == nil {
		s.store = store.New(nil, logger)
	}
	s.self = s.assertSlabRefLocked(slabID, nil)

	sender := &networkSender{net: net, logger: logger}
	s.dsp = dispatch.New(s.self, s.store, sender, dcfg, logger)
	if cfg.Metrics != nil {
		s.dsp.SetMetrics(cfg.Metrics)
	}

	net.RegisterLocalSlab(slabID, s)
	s.dsp.Start(context.Background())

	net.ConditionallyGenerateRootIndexSeed(rootSeedAdapter{s})
	if seed, ok := net.RootIndexSeed(); ok {
		s.completeRootSeed(seed)
	}

	return s
}

// ID returns this slab's identifier.
func (s *Slab) ID() id.SlabID { return s.id }

// CreateContext returns a new, empty Context bound to this slab (spec.md
// §6.1 client surface: "ctx := s.CreateContext()"). *Slab satisfies
// context.Host structurally; the context package never imports slab back,
// avoiding a cycle.
func (s *Slab) CreateContext() *context.Context { return context.New(s) }

// BootState reports the current lifecycle state.
func (s *Slab) BootState() BootState { return BootState(atomic.LoadInt32(&s.bootState)) }

func (s *Slab) completeRootSeed(seed memo.MemoRefHead) {
	s.rootIndexSeedOnce.Do(func() {
		atomic.StoreInt32(&s.bootState, int32(BootReady))
		close(s.rootIndexSeedWaiter)
		s.logger.Info("slab ready", "slab_id", s.id, "root_index_head", seed.MemoIDs())
	})
}

// AwaitReady blocks until this slab has left AwaitingRootSeed, or ctx is
// done.
func (s *Slab) AwaitReady(ctx context.Context) error {
	select {
	case <-s.rootIndexSeedWaiter:
		return nil
	case <-ctx.Done():
		return errs.NewRetrieveError(errs.NotFoundByDeadline, ctx.Err())
	}
}

// AdoptRootIndexSeed accepts a root index seed conveyed by a SlabPresence
// memo from a peer that already originated or adopted one.
func (s *Slab) AdoptRootIndexSeed(seed memo.MemoRefHead) {
	s.net.AdoptRootIndexSeed(seed)
	if resolved, ok := s.net.RootIndexSeed(); ok {
		s.completeRootSeed(resolved)
	}
}

// RootIndexSeed returns this system's root index seed once available.
func (s *Slab) RootIndexSeed() (memo.MemoRefHead, bool) { return s.net.RootIndexSeed() }

// GenerateSubjectID implements network.RootSeedGenerator and the handle's
// generate_subject_id operation (spec.md §4.H).
func (s *Slab) GenerateSubjectID() id.SubjectID { return s.counter.NextSubjectID() }

// NewMemoNoParent implements network.RootSeedGenerator: write a body with
// no parents and no peerset merge (used only at bootstrap, before any peer
// exists to merge from).
func (s *Slab) NewMemoNoParent(subjectID id.SubjectID, body memo.Body) (*memo.MemoRef, error) {
	return s.NewMemo(context.Background(), &subjectID, memo.Empty(), body, nil)
}

// NewMemo writes a new memo owned by this slab: mints a memo id, stores it,
// and posts it to the dispatcher (spec.md §4.H handle operation "new_memo").
func (s *Slab) NewMemo(ctx context.Context, subjectID *id.SubjectID, parents memo.MemoRefHead, body memo.Body, fromSlabRef *peer.SlabRef) (*memo.MemoRef, error) {
	m := &memo.Memo{ID: s.counter.NextMemoID(), Subject: subjectID, Parents: parents, Body: body}
	ref, isNew, err := s.store.PutMemo(ctx, m, nil)
	if err != nil {
		return nil, err
	}
	if isNew {
		s.counter.IncrementMemosReceived()
		s.dsp.Post(dispatch.Event{Ref: ref, FromSlabRef: fromSlabRef})
	} else {
		s.counter.IncrementMemosRedundantlyReceived()
	}
	return ref, nil
}

// GetMemoByID resolves memoID, optionally reaching out to remote peers when
// it isn't held locally (spec.md §4.F get_memo allow_remote path).
func (s *Slab) GetMemoByID(ctx context.Context, memoID id.MemoID, allowRemote bool, deadline time.Duration) (*memo.Memo, error) {
	m, ok, err := s.store.GetMemo(ctx, memoID)
	if err != nil {
		return nil, errs.NewRetrieveError(errs.SlabError, err)
	}
	if ok {
		return m, nil
	}
	if !allowRemote {
		return nil, errs.NewRetrieveError(errs.NotFound, nil)
	}

	peerSets, err := s.store.GetPeerSet(ctx, []id.MemoID{memoID}, s.self)
	if err != nil {
		return nil, errs.NewRetrieveError(errs.SlabError, err)
	}
	var candidates []*peer.SlabRef
	if len(peerSets) > 0 {
		candidates = append(peerSets[0].WithStatus(peer.StatusResident), peerSets[0].WithStatus(peer.StatusParticipating)...)
	}
	if len(candidates) == 0 {
		return nil, errs.NewRetrieveError(errs.NotFound, nil)
	}

	reqCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	requestBody := memo.MemoRequestBody{MemoIDs: []id.MemoID{memoID}, ReturnSlabRef: *s.self}
	if _, err := s.NewMemo(reqCtx, nil, memo.Empty(), requestBody, nil); err != nil {
		s.logger.Error("get_memo: failed to post memo request", "memo_id", memoID, "err", err)
	}
	for _, c := range candidates {
		go s.sendMemoRequest(reqCtx, c, requestBody)
	}

	got, err := s.store.WaitForMemo(reqCtx, memoID)
	if err != nil {
		return nil, errs.NewRetrieveError(errs.NotFoundByDeadline, err)
	}
	return got, nil
}

func (s *Slab) sendMemoRequest(ctx context.Context, dest *peer.SlabRef, body memo.MemoRequestBody) {
	requestMemo := &memo.Memo{ID: s.counter.NextMemoID(), Parents: memo.Empty(), Body: body}
	if err := s.sendPacket(ctx, dest, requestMemo, nil); err != nil {
		s.logger.Debug("get_memo: request send failed", "to", dest.ID(), "err", err)
	}
}

// SubscribeSubject registers fn against fanout for subjectID (spec.md §4.H
// handle operation "subscribe_subject").
func (s *Slab) SubscribeSubject(subjectID id.SubjectID, fn dispatch.SubjectSubscriberFunc) func() {
	return s.dsp.SubscribeSubject(subjectID, fn)
}

// SubscribeIndex registers fn against index-node fanout for subjectID
// (spec.md §4.H handle operation "subscribe_index").
func (s *Slab) SubscribeIndex(subjectID id.SubjectID, fn dispatch.SubjectSubscriberFunc) func() {
	return s.dsp.SubscribeIndex(subjectID, fn)
}

// PresenceForOrigin reports the address a remote slab should use to reach
// this slab, given the slabref it originally contacted us through (spec.md
// §4.H handle operation "presence_for_origin"; ported from convenience.rs's
// presence_for_origin).
func (s *Slab) PresenceForOrigin(origin *peer.SlabRef) peer.SlabPresence {
	addr, _ := origin.ReturnAddress()
	return peer.SlabPresence{SlabID: s.id, Address: addr, Lifetime: peer.LifetimeUnknown}
}

// AssertSlabRef returns the canonical SlabRef for slabID, creating it if
// necessary and merging in any new presences (spec.md §4.H: "assert_slabref
// is idempotent... merges new presences into the existing record").
func (s *Slab) AssertSlabRef(slabID id.SlabID, presences []peer.SlabPresence) *peer.SlabRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assertSlabRefLocked(slabID, presences)
}

func (s *Slab) assertSlabRefLocked(slabID id.SlabID, presences []peer.SlabPresence) *peer.SlabRef {
	if ref, ok := s.slabRefs[slabID]; ok {
		ref.MergePresences(presences)
		return ref
	}
	ref := peer.NewSlabRef(slabID, presences)
	s.slabRefs[slabID] = ref
	return ref
}

// ReceivePacket implements transport.LocalSlabHandle: the entry point for
// an inbound packet from any transport (spec.md §4.H handle operation
// "receive_packet").
func (s *Slab) ReceivePacket(ctx context.Context, p transport.Packet) error {
	fromRef := s.AssertSlabRef(p.FromSlabID, nil)
	peerSet := peer.NewMemoPeerSet(p.PeerList)

	if reqBody, isRequest := p.Memo.Body.(memo.MemoRequestBody); isRequest {
		return s.handleMemoRequest(ctx, fromRef, reqBody)
	}

	if presenceBody, isPresence := p.Memo.Body.(memo.SlabPresenceBody); isPresence {
		if !presenceBody.RootIndexSeed.IsEmpty() {
			s.AdoptRootIndexSeed(presenceBody.RootIndexSeed)
		}
		if err := s.store.PutSlabPresence(ctx, presenceBody.Presence); err != nil {
			return err
		}
	}

	ref, isNew, err := s.store.PutMemo(ctx, p.Memo, peerSet)
	if err != nil {
		return errs.NewWriteError(errs.WriteUnknown, err)
	}
	if isNew {
		s.counter.IncrementMemosReceived()
		s.dsp.Post(dispatch.Event{Ref: ref, PeerSet: peerSet, FromSlabRef: fromRef})
	} else {
		s.counter.IncrementMemosRedundantlyReceived()
	}
	return nil
}

func (s *Slab) handleMemoRequest(ctx context.Context, fromRef *peer.SlabRef, body memo.MemoRequestBody) error {
	// The packet's FromSlabID alone carries no reachability info; merge in
	// whatever presences the requester advertised about itself so the reply
	// below has an address to send to.
	fromRef = s.AssertSlabRef(fromRef.ID(), body.ReturnSlabRef.Presences())
	for _, memoID := range body.MemoIDs {
		m, ok, err := s.store.GetMemo(ctx, memoID)
		if err != nil || !ok {
			continue
		}
		if err := s.sendPacket(ctx, fromRef, m, nil); err != nil {
			s.logger.Debug("receive_packet: failed answering memo request", "memo_id", memoID, "err", err)
		}
	}
	return nil
}

func (s *Slab) sendPacket(ctx context.Context, dest *peer.SlabRef, m *memo.Memo, peerList []peer.MemoPeerState) error {
	addr, ok := dest.ReturnAddress()
	if !ok {
		return errs.ErrAddressNotFound
	}
	for _, t := range s.net.Transports() {
		tx, ok := t.MakeTransmitter(addr)
		if !ok {
			continue
		}
		return tx.Send(ctx, transport.Packet{FromSlabID: s.id, ToSlabID: dest.ID(), Memo: m, PeerList: peerList})
	}
	return errs.ErrTransmitterNotFound
}

// Drain begins graceful shutdown: it stops the dispatcher once inflight
// dispatches settle and deregisters from the network (spec.md §4.L
// "Draining waits for inflight dispatches to settle, deregisters from the
// network").
func (s *Slab) Drain() {
	atomic.StoreInt32(&s.bootState, int32(BootDraining))
	s.dsp.Stop()
	s.net.DeregisterLocalSlab(s.id)
	if err := s.store.Close(); err != nil {
		s.logger.Error("slab: store close failed", "err", err)
	}
	atomic.StoreInt32(&s.bootState, int32(BootTerminated))
}

// rootSeedAdapter satisfies network.RootSeedGenerator using a Slab.
type rootSeedAdapter struct{ s *Slab }

func (r rootSeedAdapter) GenerateSubjectID() id.SubjectID { return r.s.GenerateSubjectID() }
func (r rootSeedAdapter) NewMemoNoParent(subjectID id.SubjectID, body memo.Body) (*memo.MemoRef, error) {
	return r.s.NewMemoNoParent(subjectID, body)
}

// networkSender adapts network.Network transport selection to
// dispatch.Sender.
type networkSender struct {
	net    *network.Network
	logger log.Logger
}

func (n *networkSender) Send(ctx context.Context, dest *peer.SlabRef, m *memo.Memo, peerSet *peer.MemoPeerSet) error {
	addr, ok := dest.ReturnAddress()
	if !ok {
		return errs.ErrAddressNotFound
	}
	var peerList []peer.MemoPeerState
	if peerSet != nil {
		peerList = peerSet.States()
	}
	for _, t := range n.net.Transports() {
		tx, ok := t.MakeTransmitter(addr)
		if !ok {
			continue
		}
		return tx.Send(ctx, transport.Packet{ToSlabID: dest.ID(), Memo: m, PeerList: peerList})
	}
	return fmt.Errorf("network: no transport can address %s", addr)
}
