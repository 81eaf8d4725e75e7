// Package sqlstore persists expeditions, rosters, lockouts and instance
// bindings in a relational database through database/sql.
//
// Two dialects are supported:
//
//   - pgx: PostgreSQL through github.com/jackc/pgx/v5/stdlib
//   - sqlite: an embedded file database through modernc.org/sqlite
//
// Queries are written once with "?" placeholders and rebound for
// PostgreSQL. Schema changes are goose migrations embedded per dialect.
//
// Timestamps and durations are stored as whole unix seconds.
//
// @design DS-0103
package sqlstore
