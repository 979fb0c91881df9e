package registry

import (
	"context"

	"relay/internal/model"
	"relay/internal/relayerr"
)

// BuildAll topologically sorts descs by ReferencedNets and constructs every
// net, building leaves first and failing with CycleDetected if a cycle
// remains, or UnresolvedNet(id) if a referent is absent from descs (§4.5).
// handles must already carry a stable handle for every net a descriptor in
// descs might reference — both the untouched nets surviving this reconcile
// and a pre-created placeholder handle for each id in descs itself — so the
// getter passed to each factory reads from that stable map rather than a
// point-in-time concrete value. Per §4.6 step 2, "the getter reads from
// nets ... so reference updates are visible to in-flight callers": a net
// built in the same batch as its referent must capture the referent's
// swappable handle, not a snapshot of its current inner, or a later swap on
// the referent never reaches it. The caller (C6's reconcile) owns creating
// those placeholder handles and swapping their real inner in once building
// succeeds.
func (r *Registry) BuildAll(ctx context.Context, descs map[string]model.NetDescriptor, handles map[string]model.Net) (map[string]model.Net, error) {
	order, err := topoSort(descs, handles)
	if err != nil {
		return nil, err
	}

	get := func(id string) (model.Net, error) {
		if n, ok := handles[id]; ok {
			return n, nil
		}
		return nil, relayerr.UnresolvedNet(id)
	}

	built := make(map[string]model.Net, len(descs))
	for _, id := range order {
		desc := descs[id]
		n, err := r.BuildNet(desc.Type, desc.Opt, get)
		if err != nil {
			return nil, err
		}
		built[id] = n
	}
	return built, nil
}

// topoSort returns every one of descs' ids, ordered so that every net's
// ReferencedNets within descs precede it. A referent that is not in descs
// but is present in handles needs no build and is left out of the order. A
// cycle among descs' own entries is reported as CycleDetected; a reference
// to neither descs nor handles is UnresolvedNet.
func topoSort(descs map[string]model.NetDescriptor, handles map[string]model.Net) ([]string, error) {
	const (
		unvisited = 0
		visiting  = 1
		visited   = 2
	)
	state := make(map[string]int, len(descs))
	var order []string

	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case visited:
			return nil
		case visiting:
			return relayerr.CycleDetected("cycle detected at net: " + id)
		}
		desc, ok := descs[id]
		if !ok {
			if _, ok := handles[id]; ok {
				return nil
			}
			return relayerr.UnresolvedNet(id)
		}
		state[id] = visiting
		for _, ref := range desc.ReferencedNets {
			if ref == id {
				continue // self-reference is resolved via the deferred getter, not a build-order edge
			}
			if err := visit(ref); err != nil {
				return err
			}
		}
		state[id] = visited
		order = append(order, id)
		return nil
	}

	// Deterministic traversal root order for reproducible error messages.
	ids := make([]string, 0, len(descs))
	for id := range descs {
		ids = append(ids, id)
	}
	sortStrings(ids)

	for _, id := range ids {
		if err := visit(id); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// PopulateReferencedNets fills in ReferencedNets for every descriptor in
// cfg using the registry's schema-derived ref-field walker, mutating the
// map in place.
func (r *Registry) PopulateReferencedNets(descs map[string]model.NetDescriptor) error {
	for id, desc := range descs {
		refs, err := r.ReferencedNets(desc.Type, desc.Opt)
		if err != nil {
			return err
		}
		desc.ReferencedNets = refs
		descs[id] = desc
	}
	return nil
}
