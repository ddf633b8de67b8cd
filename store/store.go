// Package store implements spec.md §4.F: the abstract SlabStore contract
// decoupling the rest of a slab from its persistence layer. Grounded on
// github.com/tendermint/tm-db's dbm.DB abstraction (teacher go.mod:
// "github.com/tendermint/tm-db") so the in-memory and persistent backends
// are interchangeable behind one interface, the same way the teacher's
// consensus state store is backed by a pluggable dbm.DB.
package store

import (
	"context"

	dbm "github.com/tendermint/tm-db"

	"github.com/dnorman/unbase-sub001/errs"
	"github.com/dnorman/unbase-sub001/id"
	"github.com/dnorman/unbase-sub001/libs/log"
	tmsync "github.com/dnorman/unbase-sub001/libs/sync"
	"github.com/dnorman/unbase-sub001/memo"
	"github.com/dnorman/unbase-sub001/peer"
)

// SlabStore is the only coupling between a slab and its persistence layer
// (spec.md §4.F). Implementations must be safe for concurrent use.
type SlabStore interface {
	// GetMemo returns a locally stored memo. allowRemote is handled by the
	// caller (the slab's resolver), not the store itself — the store only
	// ever answers from what it already holds; see spec.md §4.F.
	GetMemo(ctx context.Context, memoID id.MemoID) (*memo.Memo, bool, error)

	// PutMemo is idempotent on memo_id. If new, it persists the memo and
	// reports isNew=true; the caller (the dispatcher) is responsible for
	// calling NotifyMemoReady once it has finished peer-state/fanout work,
	// per spec.md §4.G step 3. If the memo_id already exists with its body,
	// it merges peerset into the existing record and reports isNew=false
	// without re-dispatching. A record that holds no body (a PutMemoRef ref,
	// or a remotized memo) takes m as its body and reports isNew=true.
	PutMemo(ctx context.Context, m *memo.Memo, peerSet *peer.MemoPeerSet) (ref *memo.MemoRef, isNew bool, err error)

	// PutMemoRef creates (or returns the existing) body-less ref for
	// memoID, merging peerSet into it.
	PutMemoRef(ctx context.Context, memoID id.MemoID, subjectID *id.SubjectID, peerSet *peer.MemoPeerSet) (*memo.MemoRef, error)

	// GetPeerSet returns the peerset for each requested memoref, each
	// filtered to exclude destSlabRef (never tell a peer about itself).
	GetPeerSet(ctx context.Context, memoIDs []id.MemoID, destSlabRef *peer.SlabRef) ([]*peer.MemoPeerSet, error)

	// GetSlabPresence / PutSlabPresence implement the slab directory.
	GetSlabPresence(ctx context.Context, slabID id.SlabID) ([]peer.SlabPresence, bool, error)
	PutSlabPresence(ctx context.Context, presence peer.SlabPresence) error

	// RemotizeMemoIDs drops local bodies for memos whose peerset shows at
	// least minResidents other residents.
	RemotizeMemoIDs(ctx context.Context, memoIDs []id.MemoID, minResidents int) (remotized []id.MemoID, err error)

	// WaitForMemo blocks until memoID is stored locally or ctx is done,
	// backing the memo_wait_channels bookkeeping in spec.md §4.G step 3.
	WaitForMemo(ctx context.Context, memoID id.MemoID) (*memo.Memo, error)

	// NotifyMemoReady wakes any WaitForMemo callers blocked on memoID. The
	// dispatcher calls this after a memo is durably stored (spec.md §4.G
	// step 3); callers outside the dispatcher should not call it directly.
	NotifyMemoReady(memoID id.MemoID, m *memo.Memo)

	Close() error
}

// record is the in-memory bookkeeping kept alongside every stored memo:
// its ref (which may or may not still hold the body, after remotization)
// and nothing else — the ref itself owns the peerset.
type record struct {
	ref *memo.MemoRef
}

// Store is the default SlabStore, an in-memory index over a dbm.DB byte
// store. The byte store lets the same type back either a throwaway
// memdb.NewMemDB() or a persistent goleveldb/boltdb/badgerdb instance
// without changing a single call site (spec.md §6: "a drop-in persistent
// backend").
type Store struct {
	mu tmsync.RWMutex

	db     dbm.DB
	logger log.Logger

	memos     map[id.MemoID]*record
	presences map[id.SlabID][]peer.SlabPresence

	waitersMu tmsync.Mutex
	waiters   map[id.MemoID][]chan *memo.Memo
}

// New constructs a Store over db. Pass dbm.NewMemDB() for the default
// ephemeral backend, or a goleveldb/boltdb/badgerdb-backed dbm.DB for
// persistence across restarts.
func New(db dbm.DB, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Store{
		db:        db,
		logger:    logger,
		memos:     make(map[id.MemoID]*record),
		presences: make(map[id.SlabID][]peer.SlabPresence),
		waiters:   make(map[id.MemoID][]chan *memo.Memo),
	}
}

func memoKey(memoID id.MemoID) []byte { return []byte("memo/" + itoa(uint64(memoID))) }

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

func (s *Store) persist(m *memo.Memo) error {
	if s.db == nil {
		return nil
	}
	return s.db.Set(memoKey(m.ID), memo.Encode(m))
}

func (s *Store) GetMemo(ctx context.Context, memoID id.MemoID) (*memo.Memo, bool, error) {
	s.mu.RLock()
	rec, ok := s.memos[memoID]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	m, ok := rec.ref.Memo()
	if ok {
		return m, true, nil
	}
	if s.db == nil {
		return nil, false, nil
	}
	raw, err := s.db.Get(memoKey(memoID))
	if err != nil {
		return nil, false, errs.NewRetrieveError(errs.SlabError, err)
	}
	if raw == nil {
		return nil, false, nil
	}
	decoded, err := memo.Decode(raw)
	if err != nil {
		return nil, false, errs.NewRetrieveError(errs.SlabError, err)
	}
	rec.ref.SetMemo(decoded)
	return decoded, true, nil
}

func (s *Store) PutMemo(ctx context.Context, m *memo.Memo, peerSet *peer.MemoPeerSet) (*memo.MemoRef, bool, error) {
	s.mu.Lock()
	if rec, exists := s.memos[m.ID]; exists {
		if _, held := rec.ref.Memo(); held {
			s.mu.Unlock()
			rec.ref.PeerSet().ApplyPeerSet(peerSet)
			return rec.ref, false, nil
		}
		rec.ref.SetMemo(m)
		s.mu.Unlock()
		rec.ref.PeerSet().ApplyPeerSet(peerSet)
		if err := s.persist(m); err != nil {
			return nil, false, errs.NewWriteError(errs.WriteUnknown, err)
		}
		return rec.ref, true, nil
	}

	ref := memo.NewResolvedMemoRef(m, peerSet)
	s.memos[m.ID] = &record{ref: ref}
	s.mu.Unlock()

	if err := s.persist(m); err != nil {
		return nil, false, errs.NewWriteError(errs.WriteUnknown, err)
	}
	return ref, true, nil
}

func (s *Store) PutMemoRef(ctx context.Context, memoID id.MemoID, subjectID *id.SubjectID, peerSet *peer.MemoPeerSet) (*memo.MemoRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.memos[memoID]; ok {
		if peerSet != nil {
			rec.ref.PeerSet().ApplyPeerSet(peerSet)
		}
		return rec.ref, nil
	}
	ref := memo.NewMemoRef(memoID, subjectID, peerSet)
	s.memos[memoID] = &record{ref: ref}
	return ref, nil
}

func (s *Store) GetPeerSet(ctx context.Context, memoIDs []id.MemoID, destSlabRef *peer.SlabRef) ([]*peer.MemoPeerSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*peer.MemoPeerSet, len(memoIDs))
	for i, mid := range memoIDs {
		rec, ok := s.memos[mid]
		if !ok {
			out[i] = peer.NewMemoPeerSet(nil)
			continue
		}
		out[i] = rec.ref.PeerSet().ExcludingSlabRef(destSlabRef)
	}
	return out, nil
}

func (s *Store) GetSlabPresence(ctx context.Context, slabID id.SlabID) ([]peer.SlabPresence, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.presences[slabID]
	if !ok {
		return nil, false, nil
	}
	return append([]peer.SlabPresence(nil), p...), true, nil
}

func (s *Store) PutSlabPresence(ctx context.Context, presence peer.SlabPresence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := s.presences[presence.SlabID]
	for i, p := range existing {
		if p.Address == presence.Address {
			existing[i] = presence
			return nil
		}
	}
	s.presences[presence.SlabID] = append(existing, presence)
	return nil
}

func (s *Store) RemotizeMemoIDs(ctx context.Context, memoIDs []id.MemoID, minResidents int) ([]id.MemoID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var remotized []id.MemoID
	for _, mid := range memoIDs {
		rec, ok := s.memos[mid]
		if !ok {
			continue
		}
		if rec.ref.PeerSet().CountStatus(peer.StatusResident) >= minResidents {
			rec.ref.Remotize()
			remotized = append(remotized, mid)
			s.logger.Debug("remotized memo", "memo_id", mid)
		}
	}
	return remotized, nil
}

func (s *Store) WaitForMemo(ctx context.Context, memoID id.MemoID) (*memo.Memo, error) {
	if m, ok, err := s.GetMemo(ctx, memoID); err != nil {
		return nil, err
	} else if ok {
		return m, nil
	}

	ch := make(chan *memo.Memo, 1)
	s.waitersMu.Lock()
	s.waiters[memoID] = append(s.waiters[memoID], ch)
	s.waitersMu.Unlock()

	// Re-check: the memo may have landed between GetMemo and registering
	// the waiter.
	if m, ok, err := s.GetMemo(ctx, memoID); err != nil {
		return nil, err
	} else if ok {
		return m, nil
	}

	select {
	case m := <-ch:
		return m, nil
	case <-ctx.Done():
		return nil, errs.NewRetrieveError(errs.NotFoundByDeadline, ctx.Err())
	}
}

func (s *Store) NotifyMemoReady(memoID id.MemoID, m *memo.Memo) {
	s.waitersMu.Lock()
	chans := s.waiters[memoID]
	delete(s.waiters, memoID)
	s.waitersMu.Unlock()
	for _, ch := range chans {
		ch <- m
	}
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
