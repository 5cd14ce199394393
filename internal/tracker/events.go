package tracker

import (
	"time"

	"github.com/guildtrace/guildtrace/internal/activity"
	"github.com/guildtrace/guildtrace/internal/identity"
	"github.com/guildtrace/guildtrace/internal/message"
	"github.com/guildtrace/guildtrace/internal/presence"
	"github.com/guildtrace/guildtrace/internal/status"
	"github.com/guildtrace/guildtrace/internal/voice"
)

// Event is a normalized state-change observation. Events carrying the same
// key are handled serially; distinct keys may run in parallel.
type Event interface {
	key() int64
}

// UserObserved reports that a subject was seen, with its current names.
type UserObserved struct {
	Subject int64
	Names   identity.Names
	At      time.Time
}

// PresenceChanged carries the before/after presence snapshot: status,
// concurrent activities, and the custom status value (nil when unset).
type PresenceChanged struct {
	Subject          int64
	BeforeStatus     presence.Status
	AfterStatus      presence.Status
	BeforeActivities []activity.Pair
	AfterActivities  []activity.Pair
	BeforeCustom     *status.Value
	AfterCustom      *status.Value
	At               time.Time
}

// VoiceStateChanged carries the before/after voice snapshot. A channel of
// zero means not connected.
type VoiceStateChanged struct {
	Subject       int64
	BeforeChannel int64
	AfterChannel  int64
	BeforeFlags   voice.Flags
	AfterFlags    voice.Flags
	At            time.Time
}

// IdentityChanged reports a change in any of the tracked name fields.
type IdentityChanged struct {
	Subject int64
	Names   identity.Names
	At      time.Time
}

// MessageSent carries the full fact of a new message.
type MessageSent struct {
	Fact message.Fact
}

// MessageEdited carries the rewritten metadata of an edited message.
type MessageEdited struct {
	MessageID int64
	Metadata  message.Metadata
}

// MessageDeleted reports a deletion; facts are kept regardless.
type MessageDeleted struct {
	MessageID int64
}

// MemberRemoved reports a subject departure and triggers teardown.
type MemberRemoved struct {
	Subject int64
	At      time.Time
}

func (e UserObserved) key() int64      { return e.Subject }
func (e PresenceChanged) key() int64   { return e.Subject }
func (e VoiceStateChanged) key() int64 { return e.Subject }
func (e IdentityChanged) key() int64   { return e.Subject }
func (e MessageSent) key() int64       { return e.Fact.SubjectID }
func (e MessageEdited) key() int64     { return e.MessageID }
func (e MessageDeleted) key() int64    { return e.MessageID }
func (e MemberRemoved) key() int64     { return e.Subject }
