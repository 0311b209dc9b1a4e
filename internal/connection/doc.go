// Package connection implements the Connection Manager component.
//
// The Connection Manager:
//   - Owns the websocket lifecycle behind a small Transport capability
//     interface, so tests run against a fake with no real network
//   - Drives the Disconnected → Connecting → Connected → Reconnecting state
//     machine with capped exponential backoff, ending in a terminal fatal
//     state once the retry budget is spent
//   - Dispatches inbound frames into the attendance window and rejects
//     outbound submissions unless connected
//
// All state transitions serialize through one mutex; a generation counter
// keeps goroutines of a superseded connection from touching current state.
package connection
