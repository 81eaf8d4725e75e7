// Package storage groups the persistence layers of dzmesh.
//
//   - memory: in-process expedition registry, connected characters and
//     client notifier, owned by the engine goroutine
//   - sqlstore: shared relational store (PostgreSQL via pgx or SQLite via
//     modernc) with embedded goose migrations
//   - outbox: badger-backed spool of frames a zone publishes while its
//     world link is down
//
// The relational store is the source of truth; every process rebuilds its
// registry from it on start and after a link reconnect.
//
// @req RQ-0101
// @design DS-0102
package storage
