// Package metric provides Prometheus metrics for dzmesh.
//
// Metrics include:
//
//   - Replication messages handled, by opcode and outcome (applied, echo, ignored, error)
//   - Link frames sent, received and dropped
//   - Cached expeditions and invite outcomes
//   - Connected zones (world), link state and outbox depth (zone)
//   - Admin HTTP request counts and latency
//
// Metrics are exposed at /metrics in Prometheus format.
//
// @req RQ-0403
// @design DS-0402
package metric
