// Package backoff computes reconnection delays.
//
// The policy is a pure function of the attempt count: delays double from the
// initial interval up to a cap, with no jitter, so retry schedules are fully
// deterministic in tests. Once the retry budget is spent the policy signals
// give-up and the caller must surface a terminal failure instead of retrying
// silently.
package backoff
