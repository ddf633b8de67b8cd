// Package context implements spec.md §4.J: the per-client causal frontier
// (the "stash") plus the monotonic-read / read-your-write guarantees built
// on top of it. Grounded on
// _examples/original_source/src/context/internal.rs (apply_subject_head ->
// stash.apply_head) and src/context/JUNK_core.rs (subscribe/unsubscribe,
// whose commented-out deadlock note this package's EnsureSubscribed/Close
// pair resolves by never holding the stash lock while a subscriber callback
// or host.SubscribeSubject runs).
//
// Package name shadows the standard library's context package within this
// file; stdctx is the alias used throughout for `context.Context` deadlines.
package context

import (
	stdctx "context"
	"time"

	"github.com/dnorman/unbase-sub001/dispatch"
	"github.com/dnorman/unbase-sub001/errs"
	"github.com/dnorman/unbase-sub001/id"
	"github.com/dnorman/unbase-sub001/libs/log"
	tmsync "github.com/dnorman/unbase-sub001/libs/sync"
	"github.com/dnorman/unbase-sub001/memo"
	"github.com/dnorman/unbase-sub001/peer"
)

// Host is the narrow capability a Context needs from its owning slab,
// kept local per spec.md §6's "avoid wide capability surfaces" guidance;
// *slab.Slab satisfies this structurally, letting slab.CreateContext
// construct a Context without this package ever importing slab (which
// would cycle back, since slab imports context for CreateContext's return
// type).
type Host interface {
	ID() id.SlabID
	GenerateSubjectID() id.SubjectID
	NewMemo(ctx stdctx.Context, subjectID *id.SubjectID, parents memo.MemoRefHead, body memo.Body, fromSlabRef *peer.SlabRef) (*memo.MemoRef, error)
	GetMemoByID(ctx stdctx.Context, memoID id.MemoID, allowRemote bool, deadline time.Duration) (*memo.Memo, error)
	SubscribeSubject(subjectID id.SubjectID, fn dispatch.SubjectSubscriberFunc) func()
	RootIndexSeed() (memo.MemoRefHead, bool)
}

// stashEntry is one subject's causal frontier as known to this context, plus
// whether it has been found reachable from materialized index structure
// (spec.md §4.J: "augmented by an index participation bit per entry").
type stashEntry struct {
	head               memo.MemoRefHead
	indexParticipating bool
}

// Context is a per-client causal frontier plus slab binding (spec.md §3
// "Ownership/Lifecycles": "Context: a per-client causal frontier (the
// stash) + slab binding").
type Context struct {
	host   Host
	logger log.Logger

	mu         tmsync.RWMutex
	stash      map[id.SubjectID]*stashEntry
	subscribed map[id.SubjectID]func()
}

// New constructs a Context bound to host. Client code normally reaches this
// through slab.Slab.CreateContext rather than calling New directly.
func New(host Host) *Context {
	return &Context{
		host:       host,
		logger:     log.NewNopLogger(),
		stash:      make(map[id.SubjectID]*stashEntry),
		subscribed: make(map[id.SubjectID]func()),
	}
}

// Host returns the slab this context is bound to.
func (c *Context) Host() Host { return c.host }

// Context returns a base standard-library context for callers that need one
// to pass into a blocking operation but don't already have one at hand
// (spec.md §6.1's client-surface example calls this ctx.Context()).
func (c *Context) Context() stdctx.Context { return stdctx.Background() }

func (c *Context) resolver() memo.Resolver { return memoResolver{c.host} }

// memoResolver adapts a Host into memo.Resolver, fetching through the slab
// (allowing remote fallback) when a ref's body isn't already held.
type memoResolver struct{ host Host }

func (r memoResolver) ResolveMemo(ctx stdctx.Context, ref *memo.MemoRef) (*memo.Memo, error) {
	if m, ok := ref.Memo(); ok {
		return m, nil
	}
	return r.host.GetMemoByID(ctx, ref.ID(), true, 2*time.Second)
}

// ApplyHead merges newHead into the stash entry for subjectID via MRH ⊔
// (spec.md §4.J apply_head), returning whether the stash's head actually
// changed. Called by the Slab's subscription fanout whenever a memo for a
// subscribed subject lands (internal.rs's apply_subject_head), and directly
// by Subject after a local write.
func (c *Context) ApplyHead(ctx stdctx.Context, subjectID id.SubjectID, newHead memo.MemoRefHead) (bool, error) {
	resolver := c.resolver()

	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.stash[subjectID]
	if !ok {
		entry = &stashEntry{}
		c.stash[subjectID] = entry
	}
	before := entry.head.Clone()
	if err := entry.head.Merge(ctx, resolver, newHead); err != nil {
		return false, err
	}
	return !entry.head.Equal(before), nil
}

// GetHead returns the stash's current head for subjectID, or ⊥ if this
// context has never seen it (spec.md §4.J get_head).
func (c *Context) GetHead(subjectID id.SubjectID) memo.MemoRefHead {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e, ok := c.stash[subjectID]; ok {
		return e.head.Clone()
	}
	return memo.Empty()
}

// HasSubject reports whether this context has ever applied a head for
// subjectID.
func (c *Context) HasSubject(subjectID id.SubjectID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.stash[subjectID]
	return ok
}

// KnownSubjects returns a snapshot of every subject this context currently
// carries a stash entry for.
func (c *Context) KnownSubjects() []id.SubjectID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]id.SubjectID, 0, len(c.stash))
	for sid := range c.stash {
		out = append(out, sid)
	}
	return out
}

// HackSendContext conveys this context's entire stash to dest, standing in
// for real peer conveyance across a network boundary in tests (spec.md §6
// "environment... HackSendContext for scenario S2"). After this call,
// dest's reads observe every write this context had already observed.
func (c *Context) HackSendContext(ctx stdctx.Context, dest *Context) error {
	c.mu.RLock()
	snapshot := make(map[id.SubjectID]memo.MemoRefHead, len(c.stash))
	for sid, entry := range c.stash {
		snapshot[sid] = entry.head.Clone()
	}
	c.mu.RUnlock()

	for sid, head := range snapshot {
		if _, err := dest.ApplyHead(ctx, sid, head); err != nil {
			return err
		}
	}
	return nil
}

// EnsureSubscribed registers this context for the owning slab's
// subscription fanout on subjectID, if it hasn't already. Subsequent memos
// for subjectID are folded into the stash automatically via ApplyHead.
// Idempotent; safe to call on every Subject construction/lookup.
func (c *Context) EnsureSubscribed(subjectID id.SubjectID) {
	c.mu.Lock()
	if _, ok := c.subscribed[subjectID]; ok {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	unsub := c.host.SubscribeSubject(subjectID, func(ctx stdctx.Context, sid id.SubjectID, head memo.MemoRefHead) {
		if _, err := c.ApplyHead(ctx, sid, head); err != nil {
			c.logger.Error("context: apply_subject_head failed", "subject_id", sid, "err", err)
		}
	})

	c.mu.Lock()
	if _, exists := c.subscribed[subjectID]; exists {
		c.mu.Unlock()
		unsub()
		return
	}
	c.subscribed[subjectID] = unsub
	c.mu.Unlock()
}

// Close unsubscribes from every subject this context registered interest
// in. The original's subscribe/unsubscribe pair was disabled due to a
// self-deadlock (JUNK_core.rs); calling the unsubscribe funcs outside of
// any stash lock avoids that here.
func (c *Context) Close() {
	c.mu.Lock()
	unsubs := make([]func(), 0, len(c.subscribed))
	for sid, unsub := range c.subscribed {
		unsubs = append(unsubs, unsub)
		delete(c.subscribed, sid)
	}
	c.mu.Unlock()
	for _, unsub := range unsubs {
		unsub()
	}
}

// Compress walks the index tree rooted at the slab's root index seed and
// drops stash entries whose causal content is already subsumed by
// materialized index structure (spec.md §4.J compress: "this is the
// compression mechanism that prevents the stash from growing unboundedly").
// A no-op until the network has a root index seed.
func (c *Context) Compress(ctx stdctx.Context) error {
	root, ok := c.host.RootIndexSeed()
	if !ok {
		return nil
	}
	resolver := c.resolver()
	indexed, err := collectIndexHeads(ctx, resolver, root, memo.DefaultDescendsDepthLimit)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for subjectID, entry := range c.stash {
		indexHead, known := indexed[subjectID]
		if !known {
			continue
		}
		merged := indexHead.Clone()
		if err := merged.Merge(ctx, resolver, entry.head); err != nil {
			continue
		}
		if merged.Equal(indexHead) {
			entry.indexParticipating = true
			delete(c.stash, subjectID)
		}
	}
	return nil
}

// FetchKVWait polls this context's known subjects for one whose resolved
// value at key equals value, returning once found or when deadline elapses
// (spec.md §6.1 client surface: "context.fetch_kv_wait(key, value,
// deadline_ms)"). Intended for tests exercising cross-slab convergence
// within a bounded time budget (scenario S2).
func (c *Context) FetchKVWait(ctx stdctx.Context, key, value string, deadline time.Duration) (id.SubjectID, error) {
	deadlineCtx, cancel := stdctx.WithTimeout(ctx, deadline)
	defer cancel()

	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for {
		if sid, ok, err := c.scanForKV(deadlineCtx, key, value); err != nil {
			return 0, err
		} else if ok {
			return sid, nil
		}
		select {
		case <-ticker.C:
		case <-deadlineCtx.Done():
			return 0, errs.NewRetrieveError(errs.NotFoundByDeadline, deadlineCtx.Err())
		}
	}
}

func (c *Context) scanForKV(ctx stdctx.Context, key, value string) (id.SubjectID, bool, error) {
	resolver := c.resolver()

	c.mu.RLock()
	subjects := make([]id.SubjectID, 0, len(c.stash))
	heads := make([]memo.MemoRefHead, 0, len(c.stash))
	for sid, entry := range c.stash {
		subjects = append(subjects, sid)
		heads = append(heads, entry.head.Clone())
	}
	c.mu.RUnlock()

	for i, sid := range subjects {
		values, _, _, err := memo.ResolveState(ctx, resolver, heads[i])
		if err != nil {
			continue
		}
		if v, ok := values[key]; ok && v == value {
			return sid, true, nil
		}
	}
	return 0, false, nil
}

// ResolveSubjectState folds subjectID's current stash head into flattened
// value/relation/edge state (spec.md §4.K get_value/get_relation), fetching
// any unresolved parent memos through this context's resolver. Used by the
// subject package so Subject.GetValue/GetRelation never need access to this
// package's unexported resolver.
func (c *Context) ResolveSubjectState(ctx stdctx.Context, subjectID id.SubjectID) (map[string]string, memo.RelationSet, memo.EdgeSet, error) {
	head := c.GetHead(subjectID)
	return memo.ResolveState(ctx, c.resolver(), head)
}

// RelationWalker steps a single relation slot outward from a root subject,
// one hop per Next call (original: tests/topological_subject_iter.rs's
// commented-out topo_subject_head_iter). It holds no lock between calls;
// each hop resolves fresh state through the owning Context.
type RelationWalker struct {
	ctx  *Context
	slot memo.RelationSlotID
	cur  id.SubjectID
	done bool
}

// WalkRelations returns a RelationWalker that starts at root and follows
// slot outward one hop per Next call, stopping once a subject has no
// relation recorded at slot.
func (c *Context) WalkRelations(root id.SubjectID, slot memo.RelationSlotID) *RelationWalker {
	return &RelationWalker{ctx: c, slot: slot, cur: root}
}

// Next resolves the relation at w's slot from the current subject and
// advances to it, returning (next, true, nil). Once the chain ends, it
// returns (zero value, false, nil) on every subsequent call.
func (w *RelationWalker) Next(ctx stdctx.Context) (id.SubjectID, bool, error) {
	if w.done {
		return 0, false, nil
	}
	_, relations, _, err := w.ctx.ResolveSubjectState(ctx, w.cur)
	if err != nil {
		return 0, false, err
	}
	next, ok := relations[w.slot]
	if !ok {
		w.done = true
		return 0, false, nil
	}
	w.cur = next
	return next, true, nil
}

// collectIndexHeads walks the DAG reachable from root (through memo parents
// and, for edge-bearing bodies, edge targets), folding every memo it finds
// for a given subject into that subject's accumulated head (spec.md §4.L:
// "edges are the standard edge memos ... the index is itself subject to
// causal merge").
func collectIndexHeads(ctx stdctx.Context, resolver memo.Resolver, root memo.MemoRefHead, depthLimit int) (map[id.SubjectID]memo.MemoRefHead, error) {
	type frontierEntry struct {
		ref   *memo.MemoRef
		depth int
	}

	heads := make(map[id.SubjectID]memo.MemoRefHead)
	visited := make(map[id.MemoID]bool)
	var frontier []frontierEntry
	for _, r := range root.Refs() {
		frontier = append(frontier, frontierEntry{ref: r, depth: 0})
	}

	for len(frontier) > 0 {
		cur := frontier[0]
		frontier = frontier[1:]
		if visited[cur.ref.ID()] || cur.depth > depthLimit {
			continue
		}
		visited[cur.ref.ID()] = true

		m, ok := cur.ref.Memo()
		if !ok {
			if resolver == nil {
				continue
			}
			fetched, err := resolver.ResolveMemo(ctx, cur.ref)
			if err != nil {
				continue
			}
			cur.ref.SetMemo(fetched)
			m = fetched
		}

		if m.Subject != nil {
			h := heads[*m.Subject]
			if _, err := h.Apply(ctx, resolver, cur.ref); err != nil {
				return nil, err
			}
			heads[*m.Subject] = h
		}

		for _, p := range m.Parents.Refs() {
			frontier = append(frontier, frontierEntry{ref: p, depth: cur.depth + 1})
		}

		var edgeSets []memo.EdgeSet
		switch body := m.Body.(type) {
		case memo.FullyMaterializedBody:
			edgeSets = append(edgeSets, body.Edges)
		case memo.EdgeBody:
			edgeSets = append(edgeSets, body.Edges)
		}
		for _, edges := range edgeSets {
			for _, childHead := range edges {
				for _, childRef := range childHead.Refs() {
					frontier = append(frontier, frontierEntry{ref: childRef, depth: cur.depth + 1})
				}
			}
		}
	}

	return heads, nil
}
