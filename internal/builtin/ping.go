package builtin

import (
	"context"
	"fmt"
	"time"

	"github.com/keshon/commandbot/pkg/cmd"
)

func (c *Core) pingCommand() *cmd.Command {
	return &cmd.Command{
		Name:        "ping",
		Description: "Check that the bot is alive",
		Run: func(ctx context.Context, inv *cmd.Invocation) error {
			up := time.Since(c.started).Round(time.Second)
			return inv.Reply(ctx, fmt.Sprintf("🏓 Pong! Up for %s", up))
		},
	}
}
