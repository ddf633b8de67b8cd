// Package index implements spec.md §4.L: a fixed-fanout, digit-sequence
// index over subjects. Grounded on
// _examples/original_source/src/index/mod.rs (the IndexFixed re-export) and
// tests/indexes.rs's IndexFixed::new/insert_subject_handle/get_subject_handle
// call shape and its fanout-5, ten-subject torture scenario (our S4).
package index

import (
	"github.com/dnorman/unbase-sub001/context"
	"github.com/dnorman/unbase-sub001/id"
	"github.com/dnorman/unbase-sub001/memo"
	"github.com/dnorman/unbase-sub001/subject"
)

// Fixed is a B-tree-like structure of fixed fanout: lookup of key k computes
// k's digit sequence in base Fanout from the least-significant end and
// descends one IndexNode subject per digit. Every node — interior or leaf
// — is an ordinary IndexNode subject; a slot's target is recorded via the
// same Relation+Edge pair subject.SetRelation already writes for any other
// subject, so the index converges under causal merge exactly like the
// record subjects it indexes (spec.md §4.L: "the index is itself subject
// to causal merge").
type Fixed struct {
	Fanout uint32
	RootID id.SubjectID
}

// NewFixed creates a new, empty index rooted at a fresh IndexNode subject.
func NewFixed(ctx *context.Context, fanout uint32) (*Fixed, error) {
	root, err := subject.New(ctx, memo.SubjectTypeIndexNode, nil)
	if err != nil {
		return nil, err
	}
	return &Fixed{Fanout: fanout, RootID: root.ID}, nil
}

func (f *Fixed) digits(key uint64) []memo.RelationSlotID {
	var digits []memo.RelationSlotID
	rem := key
	for {
		digits = append(digits, memo.RelationSlotID(rem%uint64(f.Fanout)))
		rem /= uint64(f.Fanout)
		if rem == 0 {
			return digits
		}
	}
}

// InsertSubjectHandle walks from the root to key's leaf slot, creating each
// missing interior IndexNode subject on the way down and linking it into its
// parent's slot before descending into it, then sets the leaf slot's
// relation to target. Writes happen top-down: a parent's slot is written
// when its child is first created and is not rewritten when anything below
// it changes later.
func (f *Fixed) InsertSubjectHandle(ctx *context.Context, key uint64, target *subject.SubjectHandle) error {
	node, err := subject.GetByID(ctx, f.RootID)
	if err != nil {
		return err
	}

	digits := f.digits(key)
	for i, digit := range digits {
		if i == len(digits)-1 {
			return node.SetRelation(digit, target)
		}
		child, err := node.GetRelation(digit)
		if err != nil {
			return err
		}
		if child == nil {
			child, err = subject.New(ctx, memo.SubjectTypeIndexNode, nil)
			if err != nil {
				return err
			}
			if err := node.SetRelation(digit, child); err != nil {
				return err
			}
		}
		node = child
	}
	return nil
}

// GetSubjectHandle resolves key's leaf slot, returning nil, nil if any
// digit along the path has never been set (spec.md §4.L lookup).
func (f *Fixed) GetSubjectHandle(ctx *context.Context, key uint64) (*subject.SubjectHandle, error) {
	node, err := subject.GetByID(ctx, f.RootID)
	if err != nil {
		return nil, err
	}

	digits := f.digits(key)
	for _, digit := range digits {
		child, err := node.GetRelation(digit)
		if err != nil {
			return nil, err
		}
		if child == nil {
			return nil, nil
		}
		node = child
	}
	return node, nil
}
