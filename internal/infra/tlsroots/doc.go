// Package tlsroots provides the TLS material of the world-zone link.
//
//   - roots.go: trust pool for zones dialing wss:// (system roots plus a
//     custom CA bundle)
//   - reloader.go: world hub key pair, reloaded on file change via fsnotify
//
// @design DS-0501
package tlsroots
