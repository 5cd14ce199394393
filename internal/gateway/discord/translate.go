package discord

import (
	"strconv"

	"github.com/bwmarrin/discordgo"

	"github.com/guildtrace/guildtrace/internal/activity"
	"github.com/guildtrace/guildtrace/internal/identity"
	"github.com/guildtrace/guildtrace/internal/status"
	"github.com/guildtrace/guildtrace/internal/voice"
)

// parseID converts a Discord snowflake string to int64, 0 when malformed.
func parseID(s string) int64 {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

var activityTypeNames = map[discordgo.ActivityType]string{
	discordgo.ActivityTypeGame:      activity.TypePlaying,
	discordgo.ActivityTypeStreaming: activity.TypeStreaming,
	discordgo.ActivityTypeListening: activity.TypeListening,
	discordgo.ActivityTypeWatching:  activity.TypeWatching,
	discordgo.ActivityTypeCompeting: activity.TypeCompeting,
}

// activityPairs extracts the tracked (type, name) set from a presence's
// activity list. The custom status pseudo-activity and unknown types are
// skipped.
func activityPairs(acts []*discordgo.Activity) []activity.Pair {
	var pairs []activity.Pair
	for _, a := range acts {
		if a == nil {
			continue
		}
		name, ok := activityTypeNames[a.Type]
		if !ok {
			continue
		}
		pairs = append(pairs, activity.Pair{Type: name, Name: a.Name})
	}
	return pairs
}

// customValue extracts the custom status value, nil when unset.
func customValue(acts []*discordgo.Activity) *status.Value {
	for _, a := range acts {
		if a == nil || a.Type != discordgo.ActivityTypeCustom {
			continue
		}
		return &status.Value{Text: a.State, Emoji: a.Emoji.Name}
	}
	return nil
}

// voiceChannel converts a voice state's channel to the internal channel
// key, 0 when disconnected.
func voiceChannel(vs *discordgo.VoiceState) int64 {
	if vs == nil || vs.ChannelID == "" {
		return 0
	}
	return parseID(vs.ChannelID)
}

func voiceFlags(vs *discordgo.VoiceState) voice.Flags {
	if vs == nil {
		return voice.Flags{}
	}
	return voice.Flags{
		Deaf:       vs.Deaf,
		Mute:       vs.Mute,
		SelfDeaf:   vs.SelfDeaf,
		SelfMute:   vs.SelfMute,
		SelfStream: vs.SelfStream,
		SelfVideo:  vs.SelfVideo,
	}
}

// memberNames builds the tracked name triple. The display name falls back
// from the per-guild nick to the global name to the username, matching how
// Discord renders members.
func memberNames(m *discordgo.Member) identity.Names {
	if m == nil || m.User == nil {
		return identity.Names{}
	}
	display := m.Nick
	if display == "" {
		display = m.User.GlobalName
	}
	if display == "" {
		display = m.User.Username
	}
	return identity.Names{
		Username:    m.User.Username,
		DisplayName: display,
		GlobalName:  m.User.GlobalName,
	}
}

func charCount(content string) int {
	return len([]rune(content))
}

var messageTypeNames = map[discordgo.MessageType]string{
	discordgo.MessageTypeDefault: "default",
	discordgo.MessageTypeReply:   "reply",
}

// messageTypeName renders the persisted message type, falling back to the
// numeric code for types we do not name.
func messageTypeName(t discordgo.MessageType) string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return strconv.Itoa(int(t))
}
