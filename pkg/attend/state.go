package attend

import "time"

// Phase is the coarse connectivity phase of the stream client.
type Phase int

const (
	Disconnected Phase = iota
	Connecting
	Connected
	Reconnecting
)

// String returns the lowercase phase name.
func (p Phase) String() string {
	switch p {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	}
	return "unknown"
}

// ConnectionState describes connectivity at one instant. Exactly one state
// exists per client; observers only ever see copies.
type ConnectionState struct {
	Phase Phase

	// Attempt counts consecutive failed connection attempts. Zero while
	// healthy; reset on every successful connect.
	Attempt int

	// NextRetryAt is when the next dial is scheduled. Zero unless Phase is
	// Reconnecting.
	NextRetryAt time.Time

	// Fatal marks the terminal retries-exhausted state. Only set with
	// Phase == Disconnected; a manual reconnect clears it.
	Fatal bool
}

// Online reports whether submissions would currently be accepted.
func (s ConnectionState) Online() bool {
	return s.Phase == Connected
}
