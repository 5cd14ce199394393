package discord

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"

	"github.com/guildtrace/guildtrace/internal/activity"
	"github.com/guildtrace/guildtrace/internal/identity"
	"github.com/guildtrace/guildtrace/internal/voice"
)

func TestParseID(t *testing.T) {
	assert.Equal(t, int64(123456789012345678), parseID("123456789012345678"))
	assert.Equal(t, int64(0), parseID(""))
	assert.Equal(t, int64(0), parseID("not-a-snowflake"))
}

func TestActivityPairsSkipsCustomAndUnknown(t *testing.T) {
	acts := []*discordgo.Activity{
		{Type: discordgo.ActivityTypeGame, Name: "Factorio"},
		{Type: discordgo.ActivityTypeCustom, Name: "Custom Status", State: "afk"},
		{Type: discordgo.ActivityTypeListening, Name: "Spotify"},
		nil,
		{Type: discordgo.ActivityType(99), Name: "mystery"},
	}
	got := activityPairs(acts)
	assert.Equal(t, []activity.Pair{
		{Type: activity.TypePlaying, Name: "Factorio"},
		{Type: activity.TypeListening, Name: "Spotify"},
	}, got)
}

func TestCustomValue(t *testing.T) {
	acts := []*discordgo.Activity{
		{Type: discordgo.ActivityTypeGame, Name: "Factorio"},
		{
			Type:  discordgo.ActivityTypeCustom,
			Name:  "Custom Status",
			State: "brb lunch",
			Emoji: discordgo.Emoji{Name: "🍜"},
		},
	}
	got := customValue(acts)
	if assert.NotNil(t, got) {
		assert.Equal(t, "brb lunch", got.Text)
		assert.Equal(t, "🍜", got.Emoji)
	}

	assert.Nil(t, customValue([]*discordgo.Activity{{Type: discordgo.ActivityTypeGame}}))
	assert.Nil(t, customValue(nil))
}

func TestVoiceChannel(t *testing.T) {
	assert.Equal(t, int64(0), voiceChannel(nil))
	assert.Equal(t, int64(0), voiceChannel(&discordgo.VoiceState{}))
	assert.Equal(t, int64(500), voiceChannel(&discordgo.VoiceState{ChannelID: "500"}))
}

func TestVoiceFlags(t *testing.T) {
	got := voiceFlags(&discordgo.VoiceState{SelfMute: true, SelfStream: true})
	assert.Equal(t, voice.Flags{SelfMute: true, SelfStream: true}, got)
	assert.Equal(t, voice.Flags{}, voiceFlags(nil))
}

func TestMemberNamesFallback(t *testing.T) {
	tests := []struct {
		name   string
		member *discordgo.Member
		want   identity.Names
	}{
		{
			name: "nick wins",
			member: &discordgo.Member{
				Nick: "Ally",
				User: &discordgo.User{Username: "alice", GlobalName: "Alice"},
			},
			want: identity.Names{Username: "alice", DisplayName: "Ally", GlobalName: "Alice"},
		},
		{
			name: "global name fallback",
			member: &discordgo.Member{
				User: &discordgo.User{Username: "alice", GlobalName: "Alice"},
			},
			want: identity.Names{Username: "alice", DisplayName: "Alice", GlobalName: "Alice"},
		},
		{
			name: "username fallback",
			member: &discordgo.Member{
				User: &discordgo.User{Username: "alice"},
			},
			want: identity.Names{Username: "alice", DisplayName: "alice"},
		},
		{
			name: "nil member",
			want: identity.Names{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, memberNames(tt.member))
		})
	}
}

func TestMessageTypeName(t *testing.T) {
	assert.Equal(t, "default", messageTypeName(discordgo.MessageTypeDefault))
	assert.Equal(t, "reply", messageTypeName(discordgo.MessageTypeReply))
	assert.Equal(t, "7", messageTypeName(discordgo.MessageTypeGuildMemberJoin))
}

func TestCharCount(t *testing.T) {
	assert.Equal(t, 0, charCount(""))
	assert.Equal(t, 5, charCount("hello"))
	assert.Equal(t, 2, charCount("日本"))
}
