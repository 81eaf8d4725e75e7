// Package service provides the expedition services for dzmesh.
//
// Services contain the business logic and orchestrate operations on
// domain models. They define interfaces for their collaborators (storage,
// transport, client codec, instance provisioning) so each can be injected
// and replaced in tests.
//
// This package contains:
//
//   - Zone: zone-side expedition operations and replication handlers
//   - Coordinator: world-side directory, routing and expiry processing
//   - Engine: single-writer actor that serializes all calls per process
//
// Zone and Coordinator are not safe for concurrent use. Callers run them
// on an Engine.
//
// @req RQ-0102
// @design DS-0103
package service
