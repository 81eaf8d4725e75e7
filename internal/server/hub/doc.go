// Package hub is the world side of the zone transport: a websocket
// endpoint every zone process connects to.
//
// Each connection starts with a ZoneHello frame naming the zone. After
// that every binary frame is an envelope decoded with protocol.Codec and
// handed to the coordinator on its engine goroutine. The Hub implements
// service.Router for the coordinator's replies and relays.
//
// @req RQ-0106
// @design DS-0106
package hub
