// Package strategy implements the synthetic-dividend rebalancing
// algorithms: bracket arithmetic, the buyback stack, the variant-specific
// order detection and a Registry of named parameter sets.
package strategy

import (
	"sort"
)

// Registry holds a named collection of algorithm parameter sets for lookup
// and enumeration.
type Registry struct {
	params map[string]Params
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		params: make(map[string]Params),
	}
}

// Register adds p to the registry, keyed by its ID().
func (r *Registry) Register(p Params) {
	r.params[p.ID()] = p
}

// Get retrieves a parameter set by ID. The second return value indicates
// whether it was found.
func (r *Registry) Get(id string) (Params, bool) {
	p, ok := r.params[id]
	return p, ok
}

// List returns a sorted slice of all registered IDs.
func (r *Registry) List() []string {
	ids := make([]string, 0, len(r.params))
	for id := range r.params {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// All returns the registered parameter sets ordered by ID.
func (r *Registry) All() []Params {
	ids := r.List()
	out := make([]Params, len(ids))
	for i, id := range ids {
		out[i] = r.params[id]
	}
	return out
}

// builtinSDN is the bracket spacing swept by the built-in registry.
var builtinSDN = []float64{4, 6, 8, 10, 12, 16, 20}

// Builtin returns a registry with Buy-and-Hold and every variant at the
// common SD-N spacings with default profit sharing.
func Builtin() *Registry {
	r := NewRegistry()
	r.Register(Params{Variant: BuyAndHold})
	for _, n := range builtinSDN {
		for _, v := range []Variant{ATHOnly, Standard, ATHGatedSell} {
			r.Register(Params{
				Variant:       v,
				Trigger:       TriggerFromSDN(n),
				ProfitSharing: DefaultProfitSharing,
			})
		}
	}
	return r
}
