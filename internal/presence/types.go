package presence

import "time"

// Status is a presence status value as persisted.
type Status string

const (
	StatusOnline  Status = "online"
	StatusIdle    Status = "idle"
	StatusDND     Status = "dnd"
	StatusOffline Status = "offline"
)

// ParseStatus maps a raw gateway status string to a Status. Unrecognized
// values fall back to StatusOffline rather than failing.
func ParseStatus(raw string) Status {
	switch Status(raw) {
	case StatusOnline, StatusIdle, StatusDND, StatusOffline:
		return Status(raw)
	case "invisible":
		return StatusOffline
	default:
		return StatusOffline
	}
}

// Interval is one persisted presence status interval.
type Interval struct {
	SubjectID int64
	Status    Status
	OpenedAt  time.Time
	ClosedAt  time.Time
}
