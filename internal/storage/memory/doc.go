// Package memory provides the in-process state of a dzmesh zone or world
// coordinator: the expedition registry, the connected-character table and
// a notifier that records what would be sent to game clients.
//
// Features:
//
//   - Sharded maps: expeditions and characters live in pkg/cmap maps so
//     metrics and admin readers never block the engine goroutine
//   - Case-insensitive name index for character lookups
//   - Bounded per-character notification history
//
// Thread Safety:
//
// All types are safe for concurrent use. Expedition values handed out by
// the Registry are owned by the engine goroutine; other readers must treat
// them as read-only snapshots or go through service.Engine.
//
// @design DS-0102
package memory
