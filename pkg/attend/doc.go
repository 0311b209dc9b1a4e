// Package attend defines the attendance event data model shared between the
// stream client and its consumers.
//
// Events arrive as partial wire records (Record) and are made total by
// Normalize, which fills in sentinel defaults and synthesizes missing ids.
// Normalized events are never mutated in place.
package attend
