package memo

import (
	"context"
)

// ResolveState folds a MemoRefHead's causal history into the flattened
// key/relation/edge state a reader actually wants (spec.md §4.K get_value/
// get_relation: "walk memos in MRH in reverse-causal order, merging ...
// fields, returning first hit"). A FullyMaterializedBody is a complete
// snapshot and truncates the walk past it; otherwise a memo's own patch is
// folded on top of its recursively resolved parents. Concurrent branches in
// the head are folded in head-slice order, last write wins per key — an
// approximation of "most recent" in the absence of a total order across
// slabs, documented as a judgment call.
func ResolveState(ctx context.Context, resolver Resolver, head MemoRefHead) (map[string]string, RelationSet, EdgeSet, error) {
	return resolveStateDepth(ctx, resolver, head, DefaultDescendsDepthLimit)
}

func resolveStateDepth(ctx context.Context, resolver Resolver, head MemoRefHead, depth int) (map[string]string, RelationSet, EdgeSet, error) {
	values := map[string]string{}
	relations := RelationSet{}
	edges := EdgeSet{}
	if depth <= 0 {
		return values, relations, edges, nil
	}

	for _, ref := range head.refs {
		m, ok := ref.Memo()
		if !ok {
			if resolver == nil {
				continue
			}
			fetched, err := resolver.ResolveMemo(ctx, ref)
			if err != nil {
				continue
			}
			ref.SetMemo(fetched)
			m = fetched
		}

		switch body := m.Body.(type) {
		case FullyMaterializedBody:
			for k, v := range body.Values {
				values[k] = v
			}
			for k, v := range body.Relations {
				relations[k] = v
			}
			for k, v := range body.Edges {
				edges[k] = v
			}
		default:
			pv, pr, pe, err := resolveStateDepth(ctx, resolver, m.Parents, depth-1)
			if err != nil {
				return nil, nil, nil, err
			}
			for k, v := range pv {
				values[k] = v
			}
			for k, v := range pr {
				relations[k] = v
			}
			for k, v := range pe {
				edges[k] = v
			}
			switch b := body.(type) {
			case EditBody:
				for k, v := range b.Values {
					values[k] = v
				}
			case RelationBody:
				for k, v := range b.Relations {
					relations[k] = v
				}
			case EdgeBody:
				for k, v := range b.Edges {
					edges[k] = v
				}
			}
		}
	}
	return values, relations, edges, nil
}
