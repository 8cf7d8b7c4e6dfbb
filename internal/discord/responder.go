package discord

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/commandbot/pkg/cmd"
	"github.com/keshon/commandbot/pkg/retrylimit"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// MaxMessageLength is the longest message content Discord accepts.
const MaxMessageLength = 2000

// MessageSender posts a plain message. *discordgo.Session implements it.
type MessageSender interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Responder replies in the channel a command came from. Long replies are
// split into several messages. Every send goes through the adaptive limiter
// and is retried on 429 and 5xx responses.
type Responder struct {
	sender  MessageSender
	limiter *retrylimit.AdaptiveLimiter
	log     zerolog.Logger
	opts    []retrylimit.Option
}

var _ cmd.Responder = (*Responder)(nil)

// NewReplyLimiter starts at rps messages per second and may grow to burstMax.
func NewReplyLimiter(rps, burstMax float64) *retrylimit.AdaptiveLimiter {
	return retrylimit.NewAdaptiveLimiter(rate.Limit(rps), 1, rate.Limit(burstMax), 1, 0.5)
}

// NewResponder creates a Responder. limiter may be nil.
func NewResponder(sender MessageSender, limiter *retrylimit.AdaptiveLimiter, log zerolog.Logger, opts ...retrylimit.Option) *Responder {
	base := []retrylimit.Option{
		retrylimit.WithAttempts(3),
		retrylimit.WithClassifier(StatusCode),
		retrylimit.WithLogger(log),
	}
	return &Responder{
		sender:  sender,
		limiter: limiter,
		log:     log,
		opts:    append(base, opts...),
	}
}

// Reply implements cmd.Responder.
func (r *Responder) Reply(ctx context.Context, to *cmd.Message, content string) error {
	if to == nil || to.ChannelID == "" {
		return errors.New("reply target has no channel")
	}
	for _, part := range chunk(content, MaxMessageLength) {
		err := retrylimit.Do(ctx, r.limiter, func(context.Context) error {
			_, err := r.sender.ChannelMessageSend(to.ChannelID, part)
			return err
		}, r.opts...)
		if err != nil {
			r.log.Error().Err(err).Str("channel", to.ChannelID).Msg("failed to send reply")
			return err
		}
	}
	return nil
}

// StatusCode reads the HTTP status of a discordgo REST error.
func StatusCode(err error) int {
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil {
		return rest.Response.StatusCode
	}
	return retrylimit.StatusOf(err)
}

// chunk splits s into parts of at most limit runes, preferring to cut after
// a newline. Empty content yields a single empty part.
func chunk(s string, limit int) []string {
	if utf8.RuneCountInString(s) <= limit {
		return []string{s}
	}
	var parts []string
	for utf8.RuneCountInString(s) > limit {
		cut := byteOffset(s, limit)
		if nl := strings.LastIndexByte(s[:cut], '\n'); nl > 0 {
			cut = nl + 1
		}
		parts = append(parts, s[:cut])
		s = s[cut:]
	}
	if s != "" {
		parts = append(parts, s)
	}
	return parts
}

// byteOffset returns the byte index of the n-th rune of s.
func byteOffset(s string, n int) int {
	i := 0
	for pos := range s {
		if i == n {
			return pos
		}
		i++
	}
	return len(s)
}
