package voice

import (
	"time"

	"github.com/google/uuid"
)

// Flags is the snapshot of the six tracked boolean voice sub-states.
type Flags struct {
	Deaf       bool
	Mute       bool
	SelfDeaf   bool
	SelfMute   bool
	SelfStream bool
	SelfVideo  bool
}

// Persisted flag names.
const (
	FlagDeaf       = "deaf"
	FlagMute       = "mute"
	FlagSelfDeaf   = "self_deaf"
	FlagSelfMute   = "self_mute"
	FlagSelfStream = "self_stream"
	FlagSelfVideo  = "self_video"
)

// flagSpecs is the explicit (name, extractor) list checked on every
// transition; no runtime introspection of the Flags struct.
var flagSpecs = []struct {
	name string
	get  func(Flags) bool
}{
	{FlagDeaf, func(f Flags) bool { return f.Deaf }},
	{FlagMute, func(f Flags) bool { return f.Mute }},
	{FlagSelfDeaf, func(f Flags) bool { return f.SelfDeaf }},
	{FlagSelfMute, func(f Flags) bool { return f.SelfMute }},
	{FlagSelfStream, func(f Flags) bool { return f.SelfStream }},
	{FlagSelfVideo, func(f Flags) bool { return f.SelfVideo }},
}

// Session is one persisted voice channel session.
type Session struct {
	ID        uuid.UUID
	SubjectID int64
	ChannelID int64
	OpenedAt  time.Time
	ClosedAt  time.Time
}

// StateInterval is one persisted sub-state interval, keyed by session.
type StateInterval struct {
	SessionID uuid.UUID
	Flag      string
	OpenedAt  time.Time
	ClosedAt  time.Time
}
