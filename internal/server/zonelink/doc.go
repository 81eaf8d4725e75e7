// Package zonelink is the zone side of the zone transport: a websocket
// client that keeps one connection to the world hub open.
//
// Outgoing messages are framed with protocol.Codec. While the link is
// down they are spooled in an outbox and replayed in order after the next
// ZoneHello. Reconnect attempts are paced by a token bucket.
//
// @req RQ-0105
// @design DS-0105
package zonelink
