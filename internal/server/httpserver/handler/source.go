// Package handler provides the admin HTTP handlers for dzmesh.
package handler

import (
	"context"
	"sort"
	"strconv"

	"github.com/yndnr/dzmesh-go/internal/core/domain"
)

// Registry is the part of the expedition registry the admin API reads.
type Registry interface {
	Get(id uint32) (*domain.Expedition, bool)
	All() []*domain.Expedition
}

// Executor runs a function on the engine goroutine.
type Executor interface {
	Do(ctx context.Context, fn func(context.Context) error) error
}

// RegistrySource snapshots a registry on the engine goroutine, so readers
// never observe an expedition mid-update.
type RegistrySource struct {
	Registry Registry
	Exec     Executor
}

// Expeditions returns clones of all cached expeditions ordered by id.
func (s RegistrySource) Expeditions(ctx context.Context) ([]*domain.Expedition, error) {
	var out []*domain.Expedition
	err := s.Exec.Do(ctx, func(context.Context) error {
		all := s.Registry.All()
		out = make([]*domain.Expedition, 0, len(all))
		for _, e := range all {
			out = append(out, e.Clone())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Expedition returns a clone of one expedition.
func (s RegistrySource) Expedition(ctx context.Context, id uint32) (*domain.Expedition, error) {
	var out *domain.Expedition
	err := s.Exec.Do(ctx, func(context.Context) error {
		e, ok := s.Registry.Get(id)
		if !ok {
			return domain.ErrExpeditionNotFound.WithDetails("id " + strconv.FormatUint(uint64(id), 10))
		}
		out = e.Clone()
		return nil
	})
	return out, err
}
