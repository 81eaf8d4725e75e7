// Package cmap provides a generic sharded concurrent map.
//
// dzmesh keeps expedition replicas and connected characters in these maps
// so that metrics scrapes and admin listings can read without queuing
// behind the engine goroutine that owns all writes.
//
//   - Sharding: power-of-two shard count, per-shard RWMutex
//   - Conditional updates: GetOrSet, Update, DeleteIf, Pop
//   - Iteration: Range holds one shard's read lock at a time
//
// Usage:
//
//	m := cmap.New[uint32, *domain.Expedition]()
//	m.Set(e.ID, e)
//	e, ok := m.Get(id)
//
// @adr AD-0102
package cmap
