// Package connection is the dzmesh-cli client for the admin HTTP API.
//
// Every admin response is wrapped in the {code, message, data} envelope
// written by the server's handler package. Client unwraps it and turns
// error envelopes into *APIError values carrying the DZ-* code.
//
// @design DS-0602
package connection
