package context

import (
	stdctx "context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dnorman/unbase-sub001/dispatch"
	"github.com/dnorman/unbase-sub001/id"
	"github.com/dnorman/unbase-sub001/memo"
	"github.com/dnorman/unbase-sub001/peer"
)

// fakeHost is a minimal, in-package stand-in for *slab.Slab: importing the
// real slab package from this test file would create an import cycle, since
// slab (in production code) imports context for CreateContext's return
// type.
type fakeHost struct {
	mu          sync.Mutex
	nextSubject uint64
	nextMemo    uint64
	memos       map[id.MemoID]*memo.Memo
	subs        map[id.SubjectID][]dispatch.SubjectSubscriberFunc
	rootSeed    memo.MemoRefHead
	hasRoot     bool
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		memos: make(map[id.MemoID]*memo.Memo),
		subs:  make(map[id.SubjectID][]dispatch.SubjectSubscriberFunc),
	}
}

func (f *fakeHost) ID() id.SlabID { return 1 }

func (f *fakeHost) GenerateSubjectID() id.SubjectID {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextSubject++
	return id.SubjectID(f.nextSubject)
}

func (f *fakeHost) NewMemo(ctx stdctx.Context, subjectID *id.SubjectID, parents memo.MemoRefHead, body memo.Body, fromSlabRef *peer.SlabRef) (*memo.MemoRef, error) {
	f.mu.Lock()
	f.nextMemo++
	m := &memo.Memo{ID: id.MemoID(f.nextMemo), Subject: subjectID, Parents: parents, Body: body}
	f.memos[m.ID] = m
	var subs []dispatch.SubjectSubscriberFunc
	if subjectID != nil {
		subs = append([]dispatch.SubjectSubscriberFunc(nil), f.subs[*subjectID]...)
	}
	f.mu.Unlock()

	ref := memo.NewResolvedMemoRef(m, nil)
	for _, fn := range subs {
		if fn != nil {
			fn(ctx, *subjectID, ref.ToHead())
		}
	}
	return ref, nil
}

func (f *fakeHost) GetMemoByID(ctx stdctx.Context, memoID id.MemoID, allowRemote bool, deadline time.Duration) (*memo.Memo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.memos[memoID]
	if !ok {
		return nil, errors.New("fakeHost: memo not found")
	}
	return m, nil
}

func (f *fakeHost) SubscribeSubject(subjectID id.SubjectID, fn dispatch.SubjectSubscriberFunc) func() {
	f.mu.Lock()
	f.subs[subjectID] = append(f.subs[subjectID], fn)
	idx := len(f.subs[subjectID]) - 1
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		subs := f.subs[subjectID]
		if idx < len(subs) {
			subs[idx] = nil
		}
	}
}

func (f *fakeHost) RootIndexSeed() (memo.MemoRefHead, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rootSeed, f.hasRoot
}

func editMemo(memoID uint64, subjectID id.SubjectID, parents memo.MemoRefHead, values map[string]string) *memo.MemoRef {
	return memo.NewResolvedMemoRef(&memo.Memo{
		ID:      id.MemoID(memoID),
		Subject: &subjectID,
		Parents: parents,
		Body:    memo.EditBody{Values: values},
	}, nil)
}

func TestApplyHeadMergesAndReportsChange(t *testing.T) {
	c := New(newFakeHost())
	subjectID := id.SubjectID(1)
	ref := editMemo(1, subjectID, memo.Empty(), map[string]string{"animal_type": "Cat"})

	changed, err := c.ApplyHead(stdctx.Background(), subjectID, ref.ToHead())
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = c.ApplyHead(stdctx.Background(), subjectID, ref.ToHead())
	require.NoError(t, err)
	require.False(t, changed, "re-applying the same head is a no-op")
}

func TestGetHeadReturnsEmptyForUnknownSubject(t *testing.T) {
	c := New(newFakeHost())
	require.True(t, c.GetHead(id.SubjectID(999)).IsEmpty())
	require.False(t, c.HasSubject(id.SubjectID(999)))
}

func TestHackSendContextConveysStash(t *testing.T) {
	a := New(newFakeHost())
	b := New(newFakeHost())

	subjectID := id.SubjectID(7)
	ref := editMemo(1, subjectID, memo.Empty(), map[string]string{"beast": "Lion"})
	_, err := a.ApplyHead(stdctx.Background(), subjectID, ref.ToHead())
	require.NoError(t, err)

	require.False(t, b.HasSubject(subjectID))
	require.NoError(t, a.HackSendContext(stdctx.Background(), b))

	require.True(t, b.HasSubject(subjectID))
	require.True(t, b.GetHead(subjectID).Equal(a.GetHead(subjectID)))
}

func TestEnsureSubscribedFoldsNewMemosIntoStash(t *testing.T) {
	host := newFakeHost()
	c := New(host)
	subjectID := host.GenerateSubjectID()
	c.EnsureSubscribed(subjectID)

	ref, err := host.NewMemo(stdctx.Background(), &subjectID, memo.Empty(), memo.EditBody{Values: map[string]string{"k": "v"}}, nil)
	require.NoError(t, err)

	require.True(t, c.GetHead(subjectID).Equal(ref.ToHead()))
}

func TestEnsureSubscribedIsIdempotent(t *testing.T) {
	host := newFakeHost()
	c := New(host)
	subjectID := host.GenerateSubjectID()
	c.EnsureSubscribed(subjectID)
	c.EnsureSubscribed(subjectID)

	host.mu.Lock()
	n := len(host.subs[subjectID])
	host.mu.Unlock()
	require.Equal(t, 1, n)
}

func TestCloseUnsubscribesEverything(t *testing.T) {
	host := newFakeHost()
	c := New(host)
	subjectID := host.GenerateSubjectID()
	c.EnsureSubscribed(subjectID)
	c.Close()

	_, err := host.NewMemo(stdctx.Background(), &subjectID, memo.Empty(), memo.EditBody{Values: map[string]string{"k": "v"}}, nil)
	require.NoError(t, err)
	require.False(t, c.HasSubject(subjectID), "a closed context must not keep receiving fanout")
}

func TestFetchKVWaitFindsMatchingSubject(t *testing.T) {
	c := New(newFakeHost())
	subjectID := id.SubjectID(3)
	ref := editMemo(1, subjectID, memo.Empty(), map[string]string{"beast": "Lion"})
	_, err := c.ApplyHead(stdctx.Background(), subjectID, ref.ToHead())
	require.NoError(t, err)

	got, err := c.FetchKVWait(stdctx.Background(), "beast", "Lion", 200*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, subjectID, got)
}

func TestFetchKVWaitTimesOutWhenNotFound(t *testing.T) {
	c := New(newFakeHost())
	_, err := c.FetchKVWait(stdctx.Background(), "beast", "Lion", 30*time.Millisecond)
	require.Error(t, err)
}

func TestCompressIsNoOpWithoutRootSeed(t *testing.T) {
	c := New(newFakeHost())
	subjectID := id.SubjectID(1)
	ref := editMemo(1, subjectID, memo.Empty(), map[string]string{"k": "v"})
	_, err := c.ApplyHead(stdctx.Background(), subjectID, ref.ToHead())
	require.NoError(t, err)

	require.NoError(t, c.Compress(stdctx.Background()))
	require.True(t, c.HasSubject(subjectID))
}

func TestCompressPrunesEntriesSubsumedByIndex(t *testing.T) {
	host := newFakeHost()
	c := New(host)

	subjectID := id.SubjectID(1)
	m := editMemo(1, subjectID, memo.Empty(), map[string]string{"k": "v"})

	_, err := c.ApplyHead(stdctx.Background(), subjectID, m.ToHead())
	require.NoError(t, err)

	host.mu.Lock()
	host.rootSeed = m.ToHead()
	host.hasRoot = true
	host.mu.Unlock()

	require.NoError(t, c.Compress(stdctx.Background()))
	require.False(t, c.HasSubject(subjectID), "a stash entry already reachable from the index must be pruned")
}
