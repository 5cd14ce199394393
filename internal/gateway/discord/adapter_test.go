package discord

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guildtrace/guildtrace/internal/activity"
	"github.com/guildtrace/guildtrace/internal/presence"
)

func TestGuildCreateSeedsPresenceCache(t *testing.T) {
	a, err := NewAdapter(nil, "test-token", nil)
	require.NoError(t, err)

	a.onGuildCreate(nil, &discordgo.GuildCreate{
		Guild: &discordgo.Guild{
			ID: "42",
			Presences: []*discordgo.Presence{
				{
					User:   &discordgo.User{ID: "1"},
					Status: discordgo.StatusOnline,
					Activities: []*discordgo.Activity{
						{Type: discordgo.ActivityTypeGame, Name: "Factorio"},
						{Type: discordgo.ActivityTypeCustom, Name: "Custom Status", State: "afk"},
					},
				},
				{User: &discordgo.User{ID: "2", Bot: true}, Status: discordgo.StatusOnline},
				{User: &discordgo.User{ID: "bogus"}, Status: discordgo.StatusIdle},
				nil,
			},
		},
	})

	a.mu.Lock()
	defer a.mu.Unlock()
	require.Len(t, a.presences, 1, "only the human subject with a valid ID is cached")

	got := a.presences[1]
	assert.Equal(t, presence.StatusOnline, got.status)
	assert.Equal(t, []activity.Pair{{Type: activity.TypePlaying, Name: "Factorio"}}, got.activities)
	if assert.NotNil(t, got.custom) {
		assert.Equal(t, "afk", got.custom.Text)
	}
}
