package slab

import (
	stdctx "context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dnorman/unbase-sub001/index"
	"github.com/dnorman/unbase-sub001/memo"
	"github.com/dnorman/unbase-sub001/network"
	"github.com/dnorman/unbase-sub001/subject"
	"github.com/dnorman/unbase-sub001/transport"
)

// TestScenarioS1SingleSlabWriteRead is spec.md §8 S1: create a subject, read
// it back by value through the same context.
func TestScenarioS1SingleSlabWriteRead(t *testing.T) {
	net := network.New(transport.NewLocalDirect())
	a := New(net, Config{})
	ctx := a.CreateContext()

	h, err := subject.NewKV(ctx, "animal_type", "Cat")
	require.NoError(t, err)

	got, err := subject.GetByID(ctx, h.ID)
	require.NoError(t, err)

	v, ok, err := got.GetValue("animal_type")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Cat", v)
}

// TestScenarioS2SimulatorTwoSlabPropagation is spec.md §8 S2: slab A writes
// a value, its context is explicitly conveyed to slab B's context via
// HackSendContext, and B's context can read the value.
func TestScenarioS2SimulatorTwoSlabPropagation(t *testing.T) {
	net := network.New(transport.NewLocalDirect())
	a := New(net, Config{})
	b := New(net, Config{})

	ctxA := a.CreateContext()
	ctxB := b.CreateContext()

	h, err := subject.NewKV(ctxA, "beast", "Lion")
	require.NoError(t, err)

	require.NoError(t, ctxA.HackSendContext(stdctx.Background(), ctxB))

	gotOnB, err := subject.GetByID(ctxB, h.ID)
	require.NoError(t, err)

	v, ok, err := gotOnB.GetValue("beast")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Lion", v)
}

// TestScenarioS4FixedIndexInsertGet is spec.md §8 S4: a fanout-5 fixed index
// over ten subjects keyed 0..9, each retrievable by its key.
func TestScenarioS4FixedIndexInsertGet(t *testing.T) {
	net := network.New(transport.NewLocalDirect())
	a := New(net, Config{})
	ctx := a.CreateContext()

	idx, err := index.NewFixed(ctx, 5)
	require.NoError(t, err)

	handles := make([]*subject.SubjectHandle, 10)
	for i := 0; i < 10; i++ {
		h, err := subject.NewKV(ctx, "record number", itoa(i))
		require.NoError(t, err)
		handles[i] = h
		require.NoError(t, idx.InsertSubjectHandle(ctx, uint64(i), h))
	}

	for i := 0; i < 10; i++ {
		got, err := idx.GetSubjectHandle(ctx, uint64(i))
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Equal(t, handles[i].ID, got.ID)

		v, ok, err := got.GetValue("record number")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, itoa(i), v)
	}
}

// TestScenarioS5RelationDAGTraversal is spec.md §8 S5: r2..r6 fan back
// toward r1 through relation slot 0; r6 reaches r1 in three hops
// (r6->r5->r2->r1), and the fourth Next call finds r1 has no relation.
func TestScenarioS5RelationDAGTraversal(t *testing.T) {
	net := network.New(transport.NewLocalDirect())
	a := New(net, Config{})
	ctx := a.CreateContext()

	const slot = memo.RelationSlotID(0)

	r1, err := subject.NewBlank(ctx)
	require.NoError(t, err)
	r2, err := subject.NewBlank(ctx)
	require.NoError(t, err)
	r3, err := subject.NewBlank(ctx)
	require.NoError(t, err)
	r4, err := subject.NewBlank(ctx)
	require.NoError(t, err)
	r5, err := subject.NewBlank(ctx)
	require.NoError(t, err)
	r6, err := subject.NewBlank(ctx)
	require.NoError(t, err)

	require.NoError(t, r2.SetRelation(slot, r1))
	require.NoError(t, r3.SetRelation(slot, r1))
	require.NoError(t, r4.SetRelation(slot, r1))
	require.NoError(t, r5.SetRelation(slot, r2))
	require.NoError(t, r6.SetRelation(slot, r5))

	walker := ctx.WalkRelations(r6.ID, slot)
	cur := r6.ID
	for hop := 0; hop < 4; hop++ {
		next, ok, err := walker.Next(stdctx.Background())
		require.NoError(t, err)
		if ok {
			cur = next
		}
	}
	require.Equal(t, r1.ID, cur)
}

// TestScenarioS6CausalMergeConvergence is spec.md §8 S6: two contexts apply
// disjoint edits to the same subject; merging in either order converges on
// the same materialized state.
func TestScenarioS6CausalMergeConvergence(t *testing.T) {
	net := network.New(transport.NewLocalDirect())
	a := New(net, Config{})
	ctxA := a.CreateContext()
	ctxB := a.CreateContext()

	h, err := subject.NewKV(ctxA, "k1", "v1")
	require.NoError(t, err)

	// Seed ctxB's stash directly: subscription fanout only pushes memos
	// accepted after a subscribe, so it can't backfill this on its own.
	_, err = ctxB.ApplyHead(stdctx.Background(), h.ID, h.Head())
	require.NoError(t, err)

	hOnB, err := subject.GetByID(ctxB, h.ID)
	require.NoError(t, err)

	_, err = h.SetValue("k2", "v2")
	require.NoError(t, err)
	_, err = hOnB.SetValue("k3", "v3")
	require.NoError(t, err)

	headA := ctxA.GetHead(h.ID)
	headB := ctxB.GetHead(h.ID)

	_, err = ctxA.ApplyHead(stdctx.Background(), h.ID, headB)
	require.NoError(t, err)
	_, err = ctxB.ApplyHead(stdctx.Background(), h.ID, headA)
	require.NoError(t, err)

	mergedOnA, _, _, err := ctxA.ResolveSubjectState(stdctx.Background(), h.ID)
	require.NoError(t, err)
	mergedOnB, _, _, err := ctxB.ResolveSubjectState(stdctx.Background(), h.ID)
	require.NoError(t, err)

	require.Equal(t, "v1", mergedOnA["k1"])
	require.Equal(t, "v2", mergedOnA["k2"])
	require.Equal(t, "v3", mergedOnA["k3"])
	require.Equal(t, mergedOnA, mergedOnB, "merge order must not affect the converged state")
}

func itoa(i int) string {
	digits := "0123456789"
	if i < 10 {
		return string(digits[i])
	}
	panic("itoa helper only supports single digits")
}
