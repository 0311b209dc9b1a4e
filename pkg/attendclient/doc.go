// Package attendclient is the public entry point for the attendance stream.
//
// A Client owns one connection manager for its lifetime and exposes the
// current attendance window, the connectivity status, a submission method
// gated on connectivity, and a subscription mechanism for change
// notifications. Closing the client stops all reconnection; a closed client
// is not reusable.
package attendclient
