package activity

import "time"

// Persisted activity type names.
const (
	TypePlaying   = "playing"
	TypeStreaming = "streaming"
	TypeListening = "listening"
	TypeWatching  = "watching"
	TypeCompeting = "competing"
)

// Pair identifies one concurrent activity. Two activities with the same
// type and name are the same activity.
type Pair struct {
	Type string
	Name string
}

// Interval is one persisted activity interval.
type Interval struct {
	SubjectID int64
	Type      string
	Name      string
	OpenedAt  time.Time
	ClosedAt  time.Time
}
