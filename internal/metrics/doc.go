// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Connection state and reconnect counts
//   - Inbound frame rates by type, and dropped malformed frames
//   - Submission outcomes
//   - Attendance window size
package metrics
