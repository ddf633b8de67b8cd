package memo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dnorman/unbase-sub001/id"
)

func TestResolveStateFoldsEditsOverParents(t *testing.T) {
	subjectID := id.SubjectID(1)
	root := NewResolvedMemoRef(&Memo{
		ID:      id.MemoID(1),
		Subject: &subjectID,
		Parents: Empty(),
		Body:    EditBody{Values: map[string]string{"animal_type": "Cat"}},
	}, nil)
	edit := NewResolvedMemoRef(&Memo{
		ID:      id.MemoID(2),
		Subject: &subjectID,
		Parents: root.ToHead(),
		Body:    EditBody{Values: map[string]string{"sound": "Meow"}},
	}, nil)

	values, _, _, err := ResolveState(context.Background(), nil, edit.ToHead())
	require.NoError(t, err)
	require.Equal(t, "Cat", values["animal_type"])
	require.Equal(t, "Meow", values["sound"])
}

func TestResolveStateTruncatesAtFullyMaterialized(t *testing.T) {
	subjectID := id.SubjectID(1)
	stale := NewResolvedMemoRef(&Memo{
		ID:      id.MemoID(1),
		Subject: &subjectID,
		Parents: Empty(),
		Body:    EditBody{Values: map[string]string{"animal_type": "Dog"}},
	}, nil)
	snapshot := NewResolvedMemoRef(&Memo{
		ID:      id.MemoID(2),
		Subject: &subjectID,
		Parents: stale.ToHead(),
		Body:    FullyMaterializedBody{Values: map[string]string{"animal_type": "Cat"}, Relations: RelationSet{}, Edges: EdgeSet{}},
	}, nil)

	values, _, _, err := ResolveState(context.Background(), nil, snapshot.ToHead())
	require.NoError(t, err)
	require.Equal(t, "Cat", values["animal_type"])
}

func TestResolveStateMergesConcurrentBranches(t *testing.T) {
	subjectID := id.SubjectID(1)
	a := NewResolvedMemoRef(&Memo{ID: id.MemoID(1), Subject: &subjectID, Parents: Empty(), Body: EditBody{Values: map[string]string{"x": "1"}}}, nil)
	b := NewResolvedMemoRef(&Memo{ID: id.MemoID(2), Subject: &subjectID, Parents: Empty(), Body: EditBody{Values: map[string]string{"y": "2"}}}, nil)
	head := MemoRefHead{refs: []*MemoRef{a, b}}

	values, _, _, err := ResolveState(context.Background(), nil, head)
	require.NoError(t, err)
	require.Equal(t, "1", values["x"])
	require.Equal(t, "2", values["y"])
}
