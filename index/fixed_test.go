package index

import (
	stdctx "context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dnorman/unbase-sub001/context"
	"github.com/dnorman/unbase-sub001/dispatch"
	"github.com/dnorman/unbase-sub001/id"
	"github.com/dnorman/unbase-sub001/memo"
	"github.com/dnorman/unbase-sub001/peer"
	"github.com/dnorman/unbase-sub001/subject"
)

// fakeHost duplicates context's and subject's own test fakes: none of these
// packages may import each other's test files, and importing the real slab
// package here would create slab -> context -> (this test binary) -> slab.
type fakeHost struct {
	mu          sync.Mutex
	nextSubject uint64
	nextMemo    uint64
	memos       map[id.MemoID]*memo.Memo
	subs        map[id.SubjectID][]dispatch.SubjectSubscriberFunc
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

func (f *fakeHost) RootIndexSeed() (memo.MemoRefHead, bool) { return memo.Empty(), false }

func TestIndexSingleInsertAndGet(t *testing.T) {
	ctx := context.New(newFakeHost())
	idx, err := NewFixed(ctx, 5)
	require.NoError(t, err)

	record, err := subject.NewKV(ctx, "record number", "1234")
	require.NoError(t, err)
	require.NoError(t, idx.InsertSubjectHandle(ctx, 1234, record))

	got, err := idx.GetSubjectHandle(ctx, 1234)
	require.NoError(t, err)
	require.NotNil(t, got)
	v, ok, err := got.GetValue("record number")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1234", v)
}

func TestIndexTenSubjectsFanoutFive(t *testing.T) {
	ctx := context.New(newFakeHost())
	idx, err := NewFixed(ctx, 5)
	require.NoError(t, err)

	for i := uint64(0); i < 10; i++ {
		record, err := subject.NewKV(ctx, "record number", fmt.Sprintf("%d", i))
		require.NoError(t, err)
		require.NoError(t, idx.InsertSubjectHandle(ctx, i, record))
	}

	for i := uint64(0); i < 10; i++ {
		got, err := idx.GetSubjectHandle(ctx, i)
		require.NoError(t, err)
		require.NotNil(t, got, "key %d", i)
		v, ok, err := got.GetValue("record number")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, fmt.Sprintf("%d", i), v)
	}
}

func TestIndexGetUnknownKeyReturnsNil(t *testing.T) {
	ctx := context.New(newFakeHost())
	idx, err := NewFixed(ctx, 5)
	require.NoError(t, err)

	got, err := idx.GetSubjectHandle(ctx, 42)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestIndexDigitsLeastSignificantFirst(t *testing.T) {
	idx := &Fixed{Fanout: 5}
	require.Equal(t, []memo.RelationSlotID{4, 2}, idx.digits(14))
	require.Equal(t, []memo.RelationSlotID{0}, idx.digits(0))
}
