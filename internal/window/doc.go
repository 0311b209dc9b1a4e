// Package window implements the bounded attendance window.
//
// The window holds the most recent attendance events, newest-first by
// receipt order (not by recorded timestamp), capped at a fixed capacity so
// memory stays bounded on a continuously-live feed. An identity index gives
// O(1) duplicate detection; a duplicate id is a no-op and the original entry
// keeps its position and content.
package window
