// Package domain defines the core domain models for dzmesh.
//
// Domain models are pure value objects and entities without any
// IO dependencies or framework coupling. This package contains:
//
//   - Expedition: group aggregate with roster, lockouts and instance binding
//   - LockoutTimer: per-(uuid, event) expiry record
//   - InstanceBinding: exclusive instance plus saved waypoints
//   - Character: zone-local client state (affiliation, invite, lockouts)
//   - Errors: domain error codes
//
// @req RQ-0101
// @design DS-0101
package domain
