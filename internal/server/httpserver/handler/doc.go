// Package handler provides the admin HTTP handlers for dzmesh.
//
// This package contains handlers for all admin endpoints:
//
//   - health.go: Health and readiness checks
//   - admin.go: Status summary, expedition inspection and zone listing
//   - source.go: Engine-serialized snapshots of the expedition registry
//
// All handlers follow a consistent pattern:
//
//   - Parse and validate path parameters
//   - Read a snapshot through a Source
//   - Return the standard JSON envelope
//   - Map domain errors to HTTP status codes
//
// @req RQ-0301
// @design DS-0301
package handler
