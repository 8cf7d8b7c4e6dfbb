// Package discord is the Discord gateway transport: it turns gateway events
// into bot events and sends command replies back through the REST API.
package discord

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/commandbot/internal/event"
	"github.com/keshon/commandbot/pkg/cmd"
	"github.com/rs/zerolog"
)

// Source is the EventContext source of every Discord event.
const Source = "discord"

// Publisher receives the events the transport produces. *bot.Bot implements it.
type Publisher interface {
	HandleMessage(ctx context.Context, ev cmd.EventContext, msg *cmd.Message)
	Publish(ctx context.Context, name string, payload any)
}

// GuildLeaver leaves a guild. *discordgo.Session implements it.
type GuildLeaver interface {
	GuildLeave(guildID string, options ...discordgo.RequestOption) error
}

// Options configures a Transport.
type Options struct {
	Token string
	// Prefixes are the string prefixes that start a command.
	Prefixes []string
	// Mention also accepts "@bot command".
	Mention        bool
	GuildBlacklist []string
	// ReplyRate and ReplyBurstMax bound the adaptive reply limiter in
	// messages per second.
	ReplyRate     float64
	ReplyBurstMax float64
	Logger        zerolog.Logger
}

// Transport owns the gateway session.
type Transport struct {
	opts      Options
	log       zerolog.Logger
	session   *discordgo.Session
	responder *Responder

	mu  sync.RWMutex
	ctx context.Context
	pub Publisher
}

// New creates the session without connecting it.
func New(opts Options) (*Transport, error) {
	dg, err := discordgo.New("Bot " + opts.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent
	// Handlers run on the gateway goroutine so messages are matched in the
	// order they arrive.
	dg.SyncEvents = true

	log := opts.Logger.With().Str("component", "discord").Logger()
	return &Transport{
		opts:      opts,
		log:       log,
		session:   dg,
		responder: NewResponder(dg, NewReplyLimiter(opts.ReplyRate, opts.ReplyBurstMax), log),
		ctx:       context.Background(),
	}, nil
}

// Session returns the underlying session, e.g. for permission checks.
func (t *Transport) Session() *discordgo.Session { return t.session }

// Responder sends replies through the session.
func (t *Transport) Responder() *Responder { return t.responder }

// Trigger matches the configured prefixes and, when enabled, a mention of
// the bot user.
func (t *Transport) Trigger() cmd.Trigger {
	if !t.opts.Mention {
		return cmd.Prefixes(t.opts.Prefixes)
	}
	return cmd.MentionPrefixes(t.selfID, t.opts.Prefixes...)
}

func (t *Transport) selfID() string {
	if t.session.State == nil || t.session.State.User == nil {
		return ""
	}
	return t.session.State.User.ID
}

// Run connects, forwards events to pub until ctx ends and disconnects.
func (t *Transport) Run(ctx context.Context, pub Publisher) error {
	t.mu.Lock()
	t.ctx, t.pub = ctx, pub
	t.mu.Unlock()

	remove := []func(){
		t.session.AddHandler(t.onReady),
		t.session.AddHandler(t.onMessageCreate),
		t.session.AddHandler(t.onGuildCreate),
	}
	defer func() {
		for _, r := range remove {
			r()
		}
	}()

	if err := t.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}
	defer t.session.Close()

	<-ctx.Done()
	t.log.Info().Msg("shutdown signal received, closing gateway")
	return nil
}

func (t *Transport) state() (context.Context, Publisher) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ctx, t.pub
}

func (t *Transport) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	ctx, pub := t.state()
	if pub == nil {
		return
	}
	msg, ok := t.accept(t.selfID(), m)
	if !ok {
		return
	}
	pub.HandleMessage(ctx, eventContext(s), msg)
}

// accept filters out the bot's own messages, other bots and blacklisted
// guilds, and maps the rest.
func (t *Transport) accept(selfID string, m *discordgo.MessageCreate) (*cmd.Message, bool) {
	if m == nil || m.Message == nil || m.Author == nil {
		return nil, false
	}
	if m.Author.ID == selfID || m.Author.Bot {
		return nil, false
	}
	if t.isGuildBlacklisted(m.GuildID) {
		return nil, false
	}
	return toMessage(m), true
}

func (t *Transport) onReady(s *discordgo.Session, r *discordgo.Ready) {
	ctx, pub := t.state()

	guilds := make([]string, 0, len(r.Guilds))
	for _, g := range r.Guilds {
		guilds = append(guilds, g.ID)
	}
	t.leaveBlacklisted(s, guilds...)

	name := ""
	if r.User != nil {
		name = r.User.Username
	}
	t.log.Info().Str("user", name).Int("guilds", len(r.Guilds)).Msg("discord bot is running")

	if pub != nil {
		pub.Publish(ctx, event.Ready, &ReadyEvent{Event: eventContext(s), Ready: r})
	}
}

func (t *Transport) onGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	if g == nil || g.Guild == nil {
		return
	}
	t.log.Debug().Str("guild", g.ID).Str("name", g.Name).Msg("guild available")
	t.leaveBlacklisted(s, g.ID)
}

// leaveBlacklisted leaves every listed guild that is blacklisted.
func (t *Transport) leaveBlacklisted(gl GuildLeaver, guildIDs ...string) int {
	left := 0
	for _, id := range guildIDs {
		if !t.isGuildBlacklisted(id) {
			continue
		}
		t.log.Info().Str("guild", id).Msg("leaving blacklisted guild")
		if err := gl.GuildLeave(id); err != nil {
			t.log.Error().Err(err).Str("guild", id).Msg("failed to leave guild")
			continue
		}
		left++
	}
	return left
}

func (t *Transport) isGuildBlacklisted(guildID string) bool {
	return guildID != "" && slices.Contains(t.opts.GuildBlacklist, guildID)
}

// ReadyEvent is the payload of the ready event.
type ReadyEvent struct {
	Event cmd.EventContext
	Ready *discordgo.Ready
}
