// Package dispatch implements spec.md §4.G: the per-slab, single-consumer
// dispatcher that runs the five post-storage steps for every accepted memo
// (peer-state update, subscription fanout, wait-channel wakeup, peering
// gossip, peering remediation). Grounded on the teacher's reactor event
// loop shape (mempool/reactor.go's OnStart goroutine reading off a channel
// until Quit(), blockchain/v2/scheduler.go's single-consumer event queue)
// generalized from tx broadcast to memo causal-merge fanout.
package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/dnorman/unbase-sub001/id"
	"github.com/dnorman/unbase-sub001/libs/log"
	tmsync "github.com/dnorman/unbase-sub001/libs/sync"
	"github.com/dnorman/unbase-sub001/memo"
	"github.com/dnorman/unbase-sub001/metrics"
	"github.com/dnorman/unbase-sub001/peer"
	"github.com/dnorman/unbase-sub001/store"
)

// Sender is the narrow capability a dispatcher needs from a transport, kept
// local to avoid a wide capability surface (spec.md §6: "Define a narrow
// capability set... avoid wide capability surfaces that would force
// reflection"). slab's networkSender satisfies this over a network's
// transports.
type Sender interface {
	Send(ctx context.Context, dest *peer.SlabRef, m *memo.Memo, peerSet *peer.MemoPeerSet) error
}

// SubjectSubscriberFunc receives a subject's newly-applied causal frontier.
// Local Contexts register one of these to learn about writes as they land.
type SubjectSubscriberFunc func(ctx context.Context, subjectID id.SubjectID, head memo.MemoRefHead)

// Event is posted to the dispatcher once a memo has been durably stored.
type Event struct {
	Ref         *memo.MemoRef
	PeerSet     *peer.MemoPeerSet
	FromSlabRef *peer.SlabRef // nil when the memo originated locally
}

// Config tunes dispatcher behavior.
type Config struct {
	// MinResidents is the replication floor: when fewer than this many peers
	// report Resident, peering remediation (step 5) pushes the memo once to
	// each known non-Resident peer.
	MinResidents int
	// QueueDepth bounds the event channel; a full queue applies backpressure
	// to Post rather than growing unbounded.
	QueueDepth int
}

// DefaultConfig matches spec.md §9's suggested replication floor of 3.
func DefaultConfig() Config {
	return Config{MinResidents: 3, QueueDepth: 1024}
}

// Dispatcher is the single-consumer queue described in spec.md §4.G. One
// Dispatcher serves exactly one slab.
type Dispatcher struct {
	logger  log.Logger
	config  Config
	metrics *metrics.Metrics

	self    *peer.SlabRef
	store   store.SlabStore
	sender  Sender

	queue chan Event
	quit  chan struct{}
	wg    sync.WaitGroup

	mu              tmsync.RWMutex
	subjectSubs     map[id.SubjectID][]SubjectSubscriberFunc
	indexSubs       map[id.SubjectID][]SubjectSubscriberFunc
	subjectPeerSubs map[id.SubjectID][]*peer.SlabRef
}

// New constructs a Dispatcher bound to self (this slab's own SlabRef),
// backed by s for storage and sender for outbound transport.
func New(self *peer.SlabRef, s store.SlabStore, sender Sender, cfg Config, logger log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 1024
	}
	return &Dispatcher{
		logger:          logger,
		config:          cfg,
		metrics:         metrics.NopMetrics(),
		self:            self,
		store:           s,
		sender:          sender,
		queue:           make(chan Event, cfg.QueueDepth),
		quit:            make(chan struct{}),
		subjectSubs:     make(map[id.SubjectID][]SubjectSubscriberFunc),
		indexSubs:       make(map[id.SubjectID][]SubjectSubscriberFunc),
		subjectPeerSubs: make(map[id.SubjectID][]*peer.SlabRef),
	}
}

// SetMetrics wires m in place of the default no-op metrics. Call before
// Start; not safe for concurrent use with a running dispatcher.
func (d *Dispatcher) SetMetrics(m *metrics.Metrics) {
	if m != nil {
		d.metrics = m
	}
}

// Start launches the consumer goroutine. Call Stop to drain and terminate.
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go d.run(ctx)
}

// Stop signals the consumer loop to exit and waits for it to drain.
func (d *Dispatcher) Stop() {
	close(d.quit)
	d.wg.Wait()
}

// Post enqueues an accepted memo for dispatch. Blocks if the queue is full,
// applying natural backpressure to the slab's write path.
func (d *Dispatcher) Post(ev Event) {
	select {
	case d.queue <- ev:
	case <-d.quit:
	}
}

func (d *Dispatcher) run(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case ev := <-d.queue:
			d.metrics.DispatchQueueDepth.Set(float64(len(d.queue)))
			d.handle(ctx, ev)
		case <-d.quit:
			// Dispatch whatever was already queued before exiting.
			for {
				select {
				case ev := <-d.queue:
					d.handle(ctx, ev)
				default:
					return
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

// handle runs the five post-storage steps from spec.md §4.G for one
// accepted memo. Subscription fanout and wait-channel wakeup happen
// synchronously (the dispatcher is serialized per slab to give a single
// linearization of notifications); outbound sends in step 4 are concurrent.
func (d *Dispatcher) handle(ctx context.Context, ev Event) {
	m, ok := ev.Ref.Memo()
	if !ok {
		d.logger.Error("dispatch: event with body-less ref", "memo_id", ev.Ref.ID())
		return
	}
	d.metrics.MemosStored.Add(1)
	if ev.FromSlabRef != nil {
		d.metrics.MemosReceived.With("from_slab_id", fmt.Sprintf("%d", ev.FromSlabRef.ID())).Add(1)
	}

	// Step 1: peer state update.
	if ev.PeerSet != nil {
		ev.Ref.PeerSet().ApplyPeerSet(ev.PeerSet)
	}
	if pb, isPeering := m.Body.(memo.PeeringBody); isPeering {
		targetRef, err := d.store.PutMemoRef(ctx, pb.MemoID, nil, pb.PeerSet)
		if err != nil {
			d.logger.Error("dispatch: applying peering body failed", "memo_id", pb.MemoID, "err", err)
		} else if pb.PeerSet != nil {
			targetRef.PeerSet().ApplyPeerSet(pb.PeerSet)
		}
	}

	// Step 2: subscription fanout.
	if m.Subject != nil {
		subjectID := *m.Subject
		head := ev.Ref.ToHead()
		subs := d.subjectSubscribers(subjectID)
		for _, fn := range subs {
			if fn != nil {
				fn(ctx, subjectID, head)
			}
		}
		for _, fn := range d.indexSubscribers(subjectID) {
			if fn != nil {
				fn(ctx, subjectID, head)
			}
		}
	}

	// Step 3: wait channels.
	d.store.NotifyMemoReady(m.ID, m)

	// Step 4: peering gossip.
	targets := d.gossipTargets(ev)
	peerSet := ev.Ref.PeerSet()
	for _, target := range targets {
		target := target
		filtered := peerSet.ExcludingSlabRef(target)
		go func() {
			if err := d.sender.Send(ctx, target, m, filtered); err != nil {
				d.metrics.TransmitErrors.With("kind", "gossip").Add(1)
				d.logger.Debug("dispatch: gossip send failed", "memo_id", m.ID, "to", target.ID(), "err", err)
				return
			}
			d.metrics.MemosSent.With("to_slab_id", fmt.Sprintf("%d", target.ID())).Add(1)
		}()
	}

	// Step 5: peering remediation.
	if gap := d.config.MinResidents - peerSet.CountStatus(peer.StatusResident); gap > 0 {
		d.metrics.ResidentPeersBelowFloor.Set(float64(gap))
		go d.remediate(ctx, ev.Ref, peerSet)
	} else {
		d.metrics.ResidentPeersBelowFloor.Set(0)
	}
}

// gossipTargets selects peers from the memo's own peerset with status
// Participating, plus any slab actively subscribed to the memo's subject,
// deduplicated and never including self.
func (d *Dispatcher) gossipTargets(ev Event) []*peer.SlabRef {
	seen := map[id.SlabID]bool{}
	var out []*peer.SlabRef

	add := func(ref *peer.SlabRef) {
		if ref == nil || (d.self != nil && ref.ID() == d.self.ID()) || seen[ref.ID()] {
			return
		}
		seen[ref.ID()] = true
		out = append(out, ref)
	}

	for _, ref := range ev.Ref.PeerSet().WithStatus(peer.StatusParticipating) {
		add(ref)
	}
	if m, ok := ev.Ref.Memo(); ok && m.Subject != nil {
		d.mu.RLock()
		subs := append([]*peer.SlabRef(nil), d.subjectPeerSubs[*m.Subject]...)
		d.mu.RUnlock()
		for _, ref := range subs {
			add(ref)
		}
	}
	return out
}

// remediate pushes to additional peers when replication is below the
// configured floor (spec.md §4.G step 5). It picks from peers already known
// to this memo's peerset that aren't yet Resident; a real membership
// directory would widen this search, which is future work this slab alone
// can't do without a network-level peer directory.
func (d *Dispatcher) remediate(ctx context.Context, ref *memo.MemoRef, peerSet *peer.MemoPeerSet) {
	m, ok := ref.Memo()
	if !ok {
		return
	}
	for _, state := range peerSet.States() {
		if state.Status == peer.StatusResident || (d.self != nil && state.SlabRef.ID() == d.self.ID()) {
			continue
		}
		filtered := peerSet.ExcludingSlabRef(state.SlabRef)
		if err := d.sender.Send(ctx, state.SlabRef, m, filtered); err != nil {
			d.metrics.TransmitErrors.With("kind", "remediation").Add(1)
			d.logger.Debug("dispatch: remediation send failed", "memo_id", m.ID, "to", state.SlabRef.ID(), "err", err)
			continue
		}
		d.metrics.MemosSent.With("to_slab_id", fmt.Sprintf("%d", state.SlabRef.ID())).Add(1)
	}
}

func (d *Dispatcher) subjectSubscribers(subjectID id.SubjectID) []SubjectSubscriberFunc {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]SubjectSubscriberFunc(nil), d.subjectSubs[subjectID]...)
}

func (d *Dispatcher) indexSubscribers(subjectID id.SubjectID) []SubjectSubscriberFunc {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]SubjectSubscriberFunc(nil), d.indexSubs[subjectID]...)
}

// SubscribeSubject registers fn to be called with the subject's new head
// every time a memo for it is accepted. Returns an unsubscribe func.
func (d *Dispatcher) SubscribeSubject(subjectID id.SubjectID, fn SubjectSubscriberFunc) func() {
	d.mu.Lock()
	d.subjectSubs[subjectID] = append(d.subjectSubs[subjectID], fn)
	idx := len(d.subjectSubs[subjectID]) - 1
	d.mu.Unlock()
	d.metrics.SubjectSubscriptions.Add(1)
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		subs := d.subjectSubs[subjectID]
		if idx < len(subs) {
			subs[idx] = nil
		}
		d.metrics.SubjectSubscriptions.Add(-1)
	}
}

// SubscribeIndex registers fn against index-node fanout for subjectID.
func (d *Dispatcher) SubscribeIndex(subjectID id.SubjectID, fn SubjectSubscriberFunc) func() {
	d.mu.Lock()
	d.indexSubs[subjectID] = append(d.indexSubs[subjectID], fn)
	idx := len(d.indexSubs[subjectID]) - 1
	d.mu.Unlock()
	d.metrics.IndexSubscriptions.Add(1)
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		subs := d.indexSubs[subjectID]
		if idx < len(subs) {
			subs[idx] = nil
		}
		d.metrics.IndexSubscriptions.Add(-1)
	}
}

// SubscribeRemotePeer records that ref has an active subscription to
// subjectID, so peering gossip (step 4) includes it as a fanout target even
// when it isn't already Participating in the memo's own peerset.
func (d *Dispatcher) SubscribeRemotePeer(subjectID id.SubjectID, ref *peer.SlabRef) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subjectPeerSubs[subjectID] = append(d.subjectPeerSubs[subjectID], ref)
}

// UnsubscribeRemotePeer reverses SubscribeRemotePeer.
func (d *Dispatcher) UnsubscribeRemotePeer(subjectID id.SubjectID, ref *peer.SlabRef) {
	d.mu.Lock()
	defer d.mu.Unlock()
	subs := d.subjectPeerSubs[subjectID]
	for i, r := range subs {
		if r.ID() == ref.ID() {
			d.subjectPeerSubs[subjectID] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}
