package middleware

import (
	"context"

	"github.com/keshon/commandbot/pkg/cmd"
)

// GuildOnly rejects invocations from direct messages.
func GuildOnly() cmd.Check {
	return cmd.Check{
		Name: "guild_only",
		Fn: func(_ context.Context, inv *cmd.Invocation) (bool, error) {
			return inv.Message != nil && inv.Message.GuildID != "", nil
		},
	}
}
