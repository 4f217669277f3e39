package renderer

import (
	"sort"

	"github.com/alpqr/qvk6-sub001/engine/core"
)

func (r *Renderer) track(res Resource) {
	r.live[res.ID()] = res
}

func (r *Renderer) untrack(res Resource) {
	delete(r.live, res.ID())
}

// LiveResources is the number of built resources not yet released.
func (r *Renderer) LiveResources() int {
	return len(r.live)
}

// liveResources returns the built resources, dependents first, so that
// teardown releases pipelines and binding tables before what they reference.
func (r *Renderer) liveResources() []Resource {
	out := make([]Resource, 0, len(r.live))
	for _, res := range r.live {
		out = append(out, res)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Kind() != out[j].Kind() {
			return out[i].Kind() > out[j].Kind()
		}
		return out[i].ID().String() < out[j].ID().String()
	})
	return out
}

// Lookup returns a live resource by identity.
func (r *Renderer) Lookup(id core.ResourceID) (Resource, bool) {
	res, ok := r.live[id]
	return res, ok
}
