package models

// PlayerStatus is the outcome of one probe. StatusUnknown is only ever held by
// a monitor that has not completed its first tick.
type PlayerStatus int

const (
	StatusUnknown PlayerStatus = iota
	StatusOnline
	StatusOffline
	StatusUnreachable
)

func (s PlayerStatus) String() string {
	switch s {
	case StatusOnline:
		return "online"
	case StatusOffline:
		return "offline"
	case StatusUnreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// Reachable reports whether the probe got an answer from the server.
func (s PlayerStatus) Reachable() bool {
	return s == StatusOnline || s == StatusOffline
}
