package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	dbm "github.com/tendermint/tm-db"

	"github.com/dnorman/unbase-sub001/id"
	"github.com/dnorman/unbase-sub001/memo"
	"github.com/dnorman/unbase-sub001/peer"
	"github.com/dnorman/unbase-sub001/store"
)

type fakeSender struct {
	mu    sync.Mutex
	sends []sendCall
}

type sendCall struct {
	dest *peer.SlabRef
	memo *memo.Memo
}

func (f *fakeSender) Send(ctx context.Context, dest *peer.SlabRef, m *memo.Memo, peerSet *peer.MemoPeerSet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, sendCall{dest: dest, memo: m})
	return nil
}

func (f *fakeSender) calls() []sendCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sendCall(nil), f.sends...)
}

func newTestDispatcher(t *testing.T, self *peer.SlabRef, sender Sender) (*Dispatcher, store.SlabStore) {
	s := store.New(dbm.NewMemDB(), nil)
	d := New(self, s, sender, DefaultConfig(), nil)
	ctx := context.Background()
	d.Start(ctx)
	t.Cleanup(d.Stop)
	return d, s
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestDispatcherWakesWaiters(t *testing.T) {
	self := peer.NewSlabRef(id.SlabID(1), nil)
	sender := &fakeSender{}
	d, s := newTestDispatcher(t, self, sender)

	subj := id.SubjectID(1)
	m := &memo.Memo{ID: id.MemoID(1), Subject: &subj, Parents: memo.Empty(), Body: memo.EditBody{Values: map[string]string{"a": "b"}}}
	ctx := context.Background()

	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	waitDone := make(chan struct{})
	go func() {
		_, err := s.WaitForMemo(waitCtx, m.ID)
		require.NoError(t, err)
		close(waitDone)
	}()

	time.Sleep(5 * time.Millisecond)
	ref, _, err := s.PutMemo(ctx, m, nil)
	require.NoError(t, err)
	d.Post(Event{Ref: ref})

	select {
	case <-waitDone:
	case <-time.After(time.Second):
		t.Fatal("waiter never woke")
	}
}

func TestDispatcherSubjectFanout(t *testing.T) {
	self := peer.NewSlabRef(id.SlabID(1), nil)
	sender := &fakeSender{}
	d, s := newTestDispatcher(t, self, sender)

	var gotHead memo.MemoRefHead
	var mu sync.Mutex
	d.SubscribeSubject(id.SubjectID(5), func(ctx context.Context, subjectID id.SubjectID, head memo.MemoRefHead) {
		mu.Lock()
		defer mu.Unlock()
		gotHead = head
	})

	subj := id.SubjectID(5)
	m := &memo.Memo{ID: id.MemoID(2), Subject: &subj, Parents: memo.Empty(), Body: memo.EditBody{Values: map[string]string{}}}
	ref, _, err := s.PutMemo(context.Background(), m, nil)
	require.NoError(t, err)
	d.Post(Event{Ref: ref})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return gotHead.Contains(m.ID)
	})
}

func TestDispatcherGossipsToParticipatingPeers(t *testing.T) {
	self := peer.NewSlabRef(id.SlabID(1), nil)
	sender := &fakeSender{}
	d, s := newTestDispatcher(t, self, sender)

	other := peer.NewSlabRef(id.SlabID(2), nil)
	ps := peer.NewMemoPeerSet([]peer.MemoPeerState{{SlabRef: other, Status: peer.StatusParticipating}})

	subj := id.SubjectID(9)
	m := &memo.Memo{ID: id.MemoID(3), Subject: &subj, Parents: memo.Empty(), Body: memo.EditBody{Values: map[string]string{}}}
	ref, _, err := s.PutMemo(context.Background(), m, ps)
	require.NoError(t, err)
	d.Post(Event{Ref: ref, PeerSet: ps})

	waitFor(t, func() bool { return len(sender.calls()) >= 1 })
	calls := sender.calls()
	require.Equal(t, other.ID(), calls[0].dest.ID())
	require.Equal(t, m.ID, calls[0].memo.ID)
}

func TestDispatcherGossipsToSubjectPeerSubscribers(t *testing.T) {
	self := peer.NewSlabRef(id.SlabID(1), nil)
	sender := &fakeSender{}
	d, s := newTestDispatcher(t, self, sender)

	watcher := peer.NewSlabRef(id.SlabID(7), nil)
	d.SubscribeRemotePeer(id.SubjectID(11), watcher)

	subj := id.SubjectID(11)
	m := &memo.Memo{ID: id.MemoID(4), Subject: &subj, Parents: memo.Empty(), Body: memo.EditBody{Values: map[string]string{}}}
	ref, _, err := s.PutMemo(context.Background(), m, nil)
	require.NoError(t, err)
	d.Post(Event{Ref: ref})

	waitFor(t, func() bool { return len(sender.calls()) >= 1 })
	require.Equal(t, watcher.ID(), sender.calls()[0].dest.ID())
}

func TestDispatcherNeverGossipsToSelf(t *testing.T) {
	self := peer.NewSlabRef(id.SlabID(1), nil)
	sender := &fakeSender{}
	d, s := newTestDispatcher(t, self, sender)

	ps := peer.NewMemoPeerSet([]peer.MemoPeerState{{SlabRef: self, Status: peer.StatusParticipating}})
	subj := id.SubjectID(2)
	m := &memo.Memo{ID: id.MemoID(5), Subject: &subj, Parents: memo.Empty(), Body: memo.EditBody{Values: map[string]string{}}}
	ref, _, err := s.PutMemo(context.Background(), m, ps)
	require.NoError(t, err)
	d.Post(Event{Ref: ref, PeerSet: ps})

	time.Sleep(50 * time.Millisecond)
	require.Empty(t, sender.calls())
}

func TestDispatcherRemediatesBelowReplicationFloor(t *testing.T) {
	self := peer.NewSlabRef(id.SlabID(1), nil)
	sender := &fakeSender{}
	d, s := newTestDispatcher(t, self, sender)
	d.config.MinResidents = 2

	candidate := peer.NewSlabRef(id.SlabID(8), nil)
	ps := peer.NewMemoPeerSet([]peer.MemoPeerState{{SlabRef: candidate, Status: peer.StatusNonParticipating}})

	subj := id.SubjectID(3)
	m := &memo.Memo{ID: id.MemoID(6), Subject: &subj, Parents: memo.Empty(), Body: memo.EditBody{Values: map[string]string{}}}
	ref, _, err := s.PutMemo(context.Background(), m, ps)
	require.NoError(t, err)
	d.Post(Event{Ref: ref, PeerSet: ps})

	waitFor(t, func() bool { return len(sender.calls()) >= 1 })
	require.Equal(t, candidate.ID(), sender.calls()[0].dest.ID())
}
