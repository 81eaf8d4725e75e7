// Package httpserver provides the admin HTTP server for dzmesh.
//
// Both process roles run one. It serves:
//
//   - Health endpoints: /health, /ready, /metrics
//   - Admin endpoints: /admin/v1/status/summary, /admin/v1/expeditions,
//     /admin/v1/expeditions/{id}, /admin/v1/zones
//
// Features:
//
//   - Middleware chain: RequestID, Recover, Instrument, AccessLog
//   - Admin-only network ACL and per-IP rate limit
//   - Graceful shutdown
//
// The world's zone websocket endpoint is served separately by package hub
// on world.listen_addr.
//
// @req RQ-0301
// @design DS-0301
package httpserver
