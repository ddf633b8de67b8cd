package peer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dnorman/unbase-sub001/id"
)

func TestApplyPeerSetIdempotent(t *testing.T) {
	ref := NewSlabRef(id.SlabID(1), nil)
	set := NewMemoPeerSet(nil)

	changed := set.ApplyPeerState(MemoPeerState{SlabRef: ref, Status: StatusParticipating})
	require.True(t, changed)

	changed = set.ApplyPeerState(MemoPeerState{SlabRef: ref, Status: StatusParticipating})
	require.False(t, changed, "re-applying the same state must be a no-op")

	require.Equal(t, 1, len(set.States()))
}

func TestStatusMonotonic(t *testing.T) {
	ref := NewSlabRef(id.SlabID(2), nil)
	set := NewMemoPeerSet(nil)

	set.ApplyPeerState(MemoPeerState{SlabRef: ref, Status: StatusResident})
	changed := set.ApplyPeerState(MemoPeerState{SlabRef: ref, Status: StatusUnknown})

	require.False(t, changed, "a Resident peer must not be silently downgraded")
	states := set.States()
	require.Equal(t, StatusResident, states[0].Status)
}

func TestExcludingSlabRefNeverTellsAPeerAboutItself(t *testing.T) {
	a := NewSlabRef(id.SlabID(1), nil)
	b := NewSlabRef(id.SlabID(2), nil)
	set := NewMemoPeerSet([]MemoPeerState{
		{SlabRef: a, Status: StatusResident},
		{SlabRef: b, Status: StatusParticipating},
	})

	filtered := set.ExcludingSlabRef(a)
	refs := filtered.SlabRefs()
	require.Len(t, refs, 1)
	require.Equal(t, b.ID(), refs[0].ID())
}

func TestApplyPeerSetMerge(t *testing.T) {
	a := NewSlabRef(id.SlabID(1), nil)
	b := NewSlabRef(id.SlabID(2), nil)

	dst := NewMemoPeerSet([]MemoPeerState{{SlabRef: a, Status: StatusParticipating}})
	src := NewMemoPeerSet([]MemoPeerState{{SlabRef: b, Status: StatusResident}})

	changed := dst.ApplyPeerSet(src)
	require.True(t, changed)
	require.Equal(t, 2, len(dst.States()))

	changed = dst.ApplyPeerSet(src)
	require.False(t, changed)
}
