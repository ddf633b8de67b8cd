// Package subject implements spec.md §4.K: a typed projection of a
// subject's MemoRefHead onto get/set value and get/set relation operations.
// Grounded on
// _examples/original_source/crates/unbase/src/subjecthandle.rs (the more
// complete, non-JUNK SubjectHandle) and src/subject/handle.rs.
package subject

import (
	stdctx "context"
	"time"

	"github.com/dnorman/unbase-sub001/context"
	"github.com/dnorman/unbase-sub001/errs"
	"github.com/dnorman/unbase-sub001/id"
	"github.com/dnorman/unbase-sub001/memo"
)

// DefaultGetByIDTimeout bounds how long GetByID waits for a subject's head
// to materialize locally before giving up (spec.md §5 "Suspension points":
// "context get_subject_by_id (awaits head materialization)").
const DefaultGetByIDTimeout = 2 * time.Second

// SubjectHandle is a thin, cheap-to-clone typed view over one subject's
// causal frontier as known to a particular Context (spec.md §1: client
// surfaces beyond the bare stash/MRH are deliberately thin rather than
// "gold-plated"). It carries no state of its own beyond the id and the
// subject type recorded at construction; every read/write goes through its
// bound Context's stash.
type SubjectHandle struct {
	ID   id.SubjectID
	Type memo.SubjectType

	ctx *context.Context
}

// New creates a subject of the given type seeded with vals, writing the
// genesis Edit memo and applying its head into ctx's stash (spec.md §4.K:
// "set_value... assign new head; context.apply_subject_head").
func New(ctx *context.Context, subjectType memo.SubjectType, vals map[string]string) (*SubjectHandle, error) {
	host := ctx.Host()
	subjectID := host.GenerateSubjectID()

	ref, err := host.NewMemo(ctx.Context(), &subjectID, memo.Empty(), memo.EditBody{Values: vals}, nil)
	if err != nil {
		return nil, err
	}
	if _, err := ctx.ApplyHead(ctx.Context(), subjectID, ref.ToHead()); err != nil {
		return nil, err
	}
	ctx.EnsureSubscribed(subjectID)

	return &SubjectHandle{ID: subjectID, Type: subjectType, ctx: ctx}, nil
}

// NewBlank creates an empty Record subject.
func NewBlank(ctx *context.Context) (*SubjectHandle, error) {
	return New(ctx, memo.SubjectTypeRecord, nil)
}

// NewKV creates a Record subject with a single key/value pair set.
func NewKV(ctx *context.Context, key, value string) (*SubjectHandle, error) {
	return New(ctx, memo.SubjectTypeRecord, map[string]string{key: value})
}

// GetByID returns a handle for subjectID, subscribing ctx to it and
// waiting (bounded by DefaultGetByIDTimeout) for its head to materialize
// locally if ctx hasn't observed it yet.
//
// This is the Go binding for the spec's ctx.get_subject_by_id(id): a
// literal Context method would need this package to both be imported by,
// and import, context (Context needs SubjectHandle as a return type; a
// SubjectHandle needs *context.Context as a field) — so instead of a
// method, the dependency runs one direction only: subject imports context,
// never the reverse.
func GetByID(ctx *context.Context, subjectID id.SubjectID) (*SubjectHandle, error) {
	ctx.EnsureSubscribed(subjectID)
	if ctx.HasSubject(subjectID) {
		return &SubjectHandle{ID: subjectID, ctx: ctx}, nil
	}

	deadlineCtx, cancel := stdctx.WithTimeout(ctx.Context(), DefaultGetByIDTimeout)
	defer cancel()
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if ctx.HasSubject(subjectID) {
				return &SubjectHandle{ID: subjectID, ctx: ctx}, nil
			}
		case <-deadlineCtx.Done():
			return nil, errs.NewRetrieveError(errs.NotFoundByDeadline, deadlineCtx.Err())
		}
	}
}

// Head returns this subject's current causal frontier as known to its
// bound Context.
func (h *SubjectHandle) Head() memo.MemoRefHead {
	return h.ctx.GetHead(h.ID)
}

// GetValue walks the subject's MRH in reverse-causal order, returning the
// most recent value for key (spec.md §4.K get_value).
func (h *SubjectHandle) GetValue(key string) (string, bool, error) {
	values, _, _, err := h.ctx.ResolveSubjectState(h.ctx.Context(), h.ID)
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

// GetRelation walks the subject's MRH for the most recent Relation body
// targeting slot, resolving the related subject through the same Context
// (spec.md §4.K get_relation). Returns nil, nil if the slot has never been
// set.
func (h *SubjectHandle) GetRelation(slot memo.RelationSlotID) (*SubjectHandle, error) {
	_, relations, _, err := h.ctx.ResolveSubjectState(h.ctx.Context(), h.ID)
	if err != nil {
		return nil, err
	}
	relatedID, ok := relations[slot]
	if !ok {
		return nil, nil
	}
	return GetByID(h.ctx, relatedID)
}

// SetValue creates an Edit memo parented on the subject's current head and
// applies the new head into the bound Context's stash (spec.md §4.K
// set_value). Returns whether the stash's head for this subject actually
// changed.
func (h *SubjectHandle) SetValue(key, value string) (bool, error) {
	host := h.ctx.Host()
	stdCtx := h.ctx.Context()
	parents := h.Head()

	ref, err := host.NewMemo(stdCtx, &h.ID, parents, memo.EditBody{Values: map[string]string{key: value}}, nil)
	if err != nil {
		return false, err
	}
	return h.ctx.ApplyHead(stdCtx, h.ID, ref.ToHead())
}

// SetRelation records a Relation memo pointing slot at other, followed by
// an Edge memo carrying other's current head so a reader in a different
// Context can resolve the relation without first conveying other's stash
// entry (spec.md §4.K set_relation: "also establishes an Edge to
// other_subject.head so the reader can resolve across contexts").
func (h *SubjectHandle) SetRelation(slot memo.RelationSlotID, other *SubjectHandle) error {
	host := h.ctx.Host()
	stdCtx := h.ctx.Context()

	relRef, err := host.NewMemo(stdCtx, &h.ID, h.Head(), memo.RelationBody{Relations: memo.RelationSet{slot: other.ID}}, nil)
	if err != nil {
		return err
	}
	if _, err := h.ctx.ApplyHead(stdCtx, h.ID, relRef.ToHead()); err != nil {
		return err
	}

	edgeRef, err := host.NewMemo(stdCtx, &h.ID, relRef.ToHead(), memo.EdgeBody{Edges: memo.EdgeSet{slot: other.Head()}}, nil)
	if err != nil {
		return err
	}
	_, err = h.ctx.ApplyHead(stdCtx, h.ID, edgeRef.ToHead())
	return err
}

// GetAllMemoIDs returns the ids of every memo currently in the subject's
// causal frontier as known to the bound Context.
func (h *SubjectHandle) GetAllMemoIDs() []id.MemoID {
	return h.Head().MemoIDs()
}
