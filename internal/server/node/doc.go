// Package node assembles a dzmesh process from its configuration.
//
// A world node runs the coordinator behind the zone websocket hub and ticks
// Coordinator.Process. A zone node runs the zone service, links to the world
// with a spooling outbox and reloads its registry after every reconnect.
// Both serve the admin HTTP API and Prometheus metrics, and persist through
// sqlstore.
//
// Startup order is store, engine, service, transport, admin; Close tears
// down in reverse.
//
// @design DS-0501
package node
