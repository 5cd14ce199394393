// Package discord connects to the Discord gateway and translates raw
// events into the normalized shapes the tracker consumes.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/guildtrace/guildtrace/internal/activity"
	"github.com/guildtrace/guildtrace/internal/message"
	"github.com/guildtrace/guildtrace/internal/presence"
	"github.com/guildtrace/guildtrace/internal/status"
	"github.com/guildtrace/guildtrace/internal/tracker"
)

// presenceSnapshot is the last presence observed for a subject. Discord
// presence updates carry no "before" state, so the adapter keeps its own.
type presenceSnapshot struct {
	status     presence.Status
	activities []activity.Pair
	custom     *status.Value
}

// Adapter owns the gateway session and feeds the tracker.
type Adapter struct {
	session *discordgo.Session
	tracker *tracker.Service
	logger  *slog.Logger

	mu        sync.Mutex
	presences map[int64]presenceSnapshot
}

// NewAdapter creates the gateway adapter with the intents the trackers
// need: guilds, members, presences, voice states, and messages.
func NewAdapter(log *slog.Logger, botToken string, trk *tracker.Service) (*Adapter, error) {
	if log == nil {
		log = slog.Default()
	}
	session, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentGuilds |
		discordgo.IntentGuildMembers |
		discordgo.IntentGuildPresences |
		discordgo.IntentGuildVoiceStates |
		discordgo.IntentGuildMessages

	a := &Adapter{
		session:   session,
		tracker:   trk,
		logger:    log.With(slog.String("service", "gateway")),
		presences: make(map[int64]presenceSnapshot),
	}
	session.AddHandler(a.onReady)
	session.AddHandler(a.onGuildCreate)
	session.AddHandler(a.onPresenceUpdate)
	session.AddHandler(a.onVoiceStateUpdate)
	session.AddHandler(a.onMessageCreate)
	session.AddHandler(a.onMessageUpdate)
	session.AddHandler(a.onMessageDelete)
	session.AddHandler(a.onGuildMemberAdd)
	session.AddHandler(a.onGuildMemberUpdate)
	session.AddHandler(a.onGuildMemberRemove)
	return a, nil
}

// Start opens the gateway connection.
func (a *Adapter) Start(ctx context.Context) error {
	if err := a.session.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	a.logger.Info("gateway connected")
	return nil
}

// Stop closes the gateway connection.
func (a *Adapter) Stop(ctx context.Context) error {
	a.logger.Info("gateway disconnecting")
	return a.session.Close()
}

func (a *Adapter) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	a.logger.Info("gateway ready", slog.Int("guilds", len(r.Guilds)))
}

// onGuildCreate seeds the presence cache from the guild's initial state.
// Without this, the first presence update after a reconnect carries an
// empty before-state and still-running activities would look new.
func (a *Adapter) onGuildCreate(_ *discordgo.Session, g *discordgo.GuildCreate) {
	a.mu.Lock()
	defer a.mu.Unlock()
	seeded := 0
	for _, p := range g.Presences {
		if p == nil || p.User == nil || p.User.Bot {
			continue
		}
		subjectID := parseID(p.User.ID)
		if subjectID == 0 {
			continue
		}
		a.presences[subjectID] = newSnapshot(p.Status, p.Activities)
		seeded++
	}
	a.logger.Debug("presence cache seeded",
		slog.String("guild_id", g.ID), slog.Int("presences", seeded))
}

func newSnapshot(st discordgo.Status, acts []*discordgo.Activity) presenceSnapshot {
	return presenceSnapshot{
		status:     presence.ParseStatus(string(st)),
		activities: activityPairs(acts),
		custom:     customValue(acts),
	}
}

func (a *Adapter) onPresenceUpdate(_ *discordgo.Session, p *discordgo.PresenceUpdate) {
	if p.User == nil {
		return
	}
	subjectID := parseID(p.User.ID)
	if subjectID == 0 || p.User.Bot {
		return
	}
	at := time.Now().UTC()

	after := newSnapshot(p.Status, p.Activities)
	a.mu.Lock()
	before := a.presences[subjectID]
	a.presences[subjectID] = after
	a.mu.Unlock()

	_ = a.tracker.Handle(context.Background(), tracker.PresenceChanged{
		Subject:          subjectID,
		BeforeStatus:     before.status,
		AfterStatus:      after.status,
		BeforeActivities: before.activities,
		AfterActivities:  after.activities,
		BeforeCustom:     before.custom,
		AfterCustom:      after.custom,
		At:               at,
	})
}

func (a *Adapter) onVoiceStateUpdate(_ *discordgo.Session, v *discordgo.VoiceStateUpdate) {
	subjectID := parseID(v.UserID)
	if subjectID == 0 {
		return
	}
	_ = a.tracker.Handle(context.Background(), tracker.VoiceStateChanged{
		Subject:       subjectID,
		BeforeChannel: voiceChannel(v.BeforeUpdate),
		AfterChannel:  voiceChannel(v.VoiceState),
		BeforeFlags:   voiceFlags(v.BeforeUpdate),
		AfterFlags:    voiceFlags(v.VoiceState),
		At:            time.Now().UTC(),
	})
}

func (a *Adapter) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	subjectID := parseID(m.Author.ID)
	if subjectID == 0 {
		return
	}
	_ = a.tracker.Handle(context.Background(), tracker.MessageSent{
		Fact: message.Fact{
			MessageID:      parseID(m.ID),
			SubjectID:      subjectID,
			ChannelID:      parseID(m.ChannelID),
			MessageType:    messageTypeName(m.Type),
			HasAttachments: len(m.Attachments) > 0,
			HasEmbeds:      len(m.Embeds) > 0,
			CharCount:      charCount(m.Content),
			SentAt:         m.Timestamp,
		},
	})
}

func (a *Adapter) onMessageUpdate(_ *discordgo.Session, m *discordgo.MessageUpdate) {
	if m.Author != nil && m.Author.Bot {
		return
	}
	_ = a.tracker.Handle(context.Background(), tracker.MessageEdited{
		MessageID: parseID(m.ID),
		Metadata: message.Metadata{
			CharCount:      charCount(m.Content),
			HasAttachments: len(m.Attachments) > 0,
			HasEmbeds:      len(m.Embeds) > 0,
		},
	})
}

func (a *Adapter) onMessageDelete(_ *discordgo.Session, m *discordgo.MessageDelete) {
	_ = a.tracker.Handle(context.Background(), tracker.MessageDeleted{
		MessageID: parseID(m.ID),
	})
}

func (a *Adapter) onGuildMemberAdd(_ *discordgo.Session, m *discordgo.GuildMemberAdd) {
	if m.User == nil || m.User.Bot {
		return
	}
	subjectID := parseID(m.User.ID)
	if subjectID == 0 {
		return
	}
	_ = a.tracker.Handle(context.Background(), tracker.UserObserved{
		Subject: subjectID,
		Names:   memberNames(m.Member),
		At:      time.Now().UTC(),
	})
}

func (a *Adapter) onGuildMemberUpdate(_ *discordgo.Session, m *discordgo.GuildMemberUpdate) {
	if m.User == nil || m.User.Bot {
		return
	}
	subjectID := parseID(m.User.ID)
	if subjectID == 0 {
		return
	}
	names := memberNames(m.Member)
	if m.BeforeUpdate != nil && memberNames(m.BeforeUpdate) == names {
		return
	}
	_ = a.tracker.Handle(context.Background(), tracker.IdentityChanged{
		Subject: subjectID,
		Names:   names,
		At:      time.Now().UTC(),
	})
}

func (a *Adapter) onGuildMemberRemove(_ *discordgo.Session, m *discordgo.GuildMemberRemove) {
	if m.User == nil {
		return
	}
	subjectID := parseID(m.User.ID)
	if subjectID == 0 {
		return
	}
	a.mu.Lock()
	delete(a.presences, subjectID)
	a.mu.Unlock()

	_ = a.tracker.Handle(context.Background(), tracker.MemberRemoved{
		Subject: subjectID,
		At:      time.Now().UTC(),
	})
}
