package models

// EventKind discriminates change-feed events.
type EventKind string

const (
	EventInsert EventKind = "insert"
	EventDelete EventKind = "delete"
)

// ChangeEvent is a validated change-feed event. Photo is set for inserts,
// nil for deletes; PhotoID is always set.
type ChangeEvent struct {
	Kind      EventKind
	CollageID string
	PhotoID   string
	Photo     *Photo
}

// ConnectionState describes how fresh the photo set of a session can be
// expected to be. Degraded is not an error condition, it means the session
// has fallen back to polling.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateLive
	StateDegraded
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateLive:
		return "live"
	case StateDegraded:
		return "degraded"
	default:
		return "disconnected"
	}
}
