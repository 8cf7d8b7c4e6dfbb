// Package middleware holds the cross-cutting wrappers and checks applied to
// bundle commands: execution logging, guild-only and Discord permission checks.
package middleware

import (
	"context"
	"time"

	"github.com/keshon/commandbot/pkg/cmd"
	"github.com/rs/zerolog"
)

// WithCommandLogger logs every command execution with who ran it, where,
// how long it took and whether it failed.
func WithCommandLogger(log zerolog.Logger) cmd.Middleware {
	log = log.With().Str("component", "commands").Logger()
	return func(c *cmd.Command, next cmd.RunFunc) cmd.RunFunc {
		return func(ctx context.Context, inv *cmd.Invocation) error {
			start := time.Now()
			err := next(ctx, inv)

			e := log.Info()
			if err != nil {
				e = log.Warn().Err(err)
			}
			if m := inv.Message; m != nil {
				e = e.Str("guild", m.GuildID).Str("channel", m.ChannelID).
					Str("user_id", m.AuthorID).Str("user", m.AuthorName)
			}
			e.Str("command", inv.QualifiedName()).
				Str("source", inv.Event.Source).
				Dur("took", time.Since(start)).
				Msg("command executed")
			return err
		}
	}
}
