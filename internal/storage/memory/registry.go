package memory

import (
	"sort"

	"github.com/yndnr/dzmesh-go/internal/core/domain"
	"github.com/yndnr/dzmesh-go/pkg/cmap"
)

// Registry is the process-local expedition cache keyed by expedition id.
//
// Roster changes happen on the cached *Expedition values themselves, so
// character lookups scan rather than keep an index that could go stale.
type Registry struct {
	exps *cmap.Map[uint32, *domain.Expedition]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{exps: cmap.New[uint32, *domain.Expedition]()}
}

// Get returns a cached expedition.
func (r *Registry) Get(id uint32) (*domain.Expedition, bool) {
	return r.exps.Get(id)
}

// Put caches e, replacing any expedition with the same id.
func (r *Registry) Put(e *domain.Expedition) {
	if e == nil || e.ID == 0 {
		return
	}
	r.exps.Set(e.ID, e)
}

// Delete evicts an expedition.
func (r *Registry) Delete(id uint32) {
	r.exps.Delete(id)
}

// Clear evicts every expedition.
func (r *Registry) Clear() {
	r.exps.Clear()
}

// All returns the cached expeditions ordered by id.
func (r *Registry) All() []*domain.Expedition {
	all := r.exps.Values()
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all
}

// Len returns the number of cached expeditions.
func (r *Registry) Len() int {
	return r.exps.Count()
}

// FindByCharacterID returns the expedition whose roster holds the character.
func (r *Registry) FindByCharacterID(characterID uint32) (*domain.Expedition, bool) {
	if characterID == 0 {
		return nil, false
	}
	return r.exps.Find(func(e *domain.Expedition) bool { return e.HasMember(characterID) })
}

// FindByCharacterName returns the expedition whose roster holds the name.
func (r *Registry) FindByCharacterName(name string) (*domain.Expedition, bool) {
	if name == "" {
		return nil, false
	}
	return r.exps.Find(func(e *domain.Expedition) bool { return e.HasMemberName(name) })
}
