// Package protocol defines the messages exchanged between zone processes
// and the world coordinator.
//
// Every message is one variant of a closed set resolved by opcode. Bodies
// are fixed-layout little-endian records whose text fields have fixed
// widths; longer values are truncated silently because receivers parse the
// buffers positionally. Bodies travel inside an envelope carrying the
// opcode, flags and a ULID message id, and large bodies are zstd compressed.
//
// @design DS-0301
package protocol
