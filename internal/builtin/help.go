package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/keshon/commandbot/pkg/cmd"
)

func (c *Core) helpCommand() *cmd.Command {
	return &cmd.Command{
		Name:        "help",
		Aliases:     []string{"commands"},
		Description: "List commands or describe one",
		Usage:       "help [command [subcommand...]]",
		Params:      []cmd.Param{{Name: "path", Variadic: true}},
		Run: func(ctx context.Context, inv *cmd.Invocation) error {
			if len(inv.Rest) == 0 {
				return inv.Reply(ctx, c.overview(ctx, inv))
			}
			return inv.Reply(ctx, c.describe(ctx, inv, inv.Rest))
		},
	}
}

// overview lists, per bundle, the commands the caller may run.
func (c *Core) overview(ctx context.Context, inv *cmd.Invocation) string {
	h := c.Host()
	reg := h.Registry()

	var sb strings.Builder
	seen := make(map[*cmd.Command]bool)
	for _, b := range h.Plugins().Bundles() {
		var lines []string
		for _, command := range h.Plugins().CommandsFor(b) {
			seen[command] = true
			if runnable(ctx, inv, command) {
				lines = append(lines, fmt.Sprintf("`%s` - %s", command.Name, command.Description))
			}
		}
		writeSection(&sb, b.Name(), lines)
	}

	var other []string
	for _, command := range reg.Sorted() {
		if !seen[command] && runnable(ctx, inv, command) {
			other = append(other, fmt.Sprintf("`%s` - %s", command.Name, command.Description))
		}
	}
	writeSection(&sb, "Other", other)

	if sb.Len() == 0 {
		return "No commands available."
	}
	sb.WriteString(fmt.Sprintf("Use `%shelp <command>` for details.", inv.Prefix))
	return sb.String()
}

func writeSection(sb *strings.Builder, title string, lines []string) {
	if len(lines) == 0 {
		return
	}
	sb.WriteString(fmt.Sprintf("**%s**\n", title))
	for _, l := range lines {
		sb.WriteString(l + "\n")
	}
	sb.WriteString("\n")
}

// describe details the command at path: aliases, usage, subcommands and the
// check that would stop the caller, if any.
func (c *Core) describe(ctx context.Context, inv *cmd.Invocation, path []string) string {
	reg := c.Host().Registry()
	command, used := reg.ResolvePath(path)
	if command == nil {
		return fmt.Sprintf("No such command `%s`.", path[0])
	}

	name := strings.Join(path[:used], " ")
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("**%s%s**\n", inv.Prefix, name))
	if command.Description != "" {
		sb.WriteString(command.Description + "\n")
	}
	if len(command.Aliases) > 0 {
		sb.WriteString(fmt.Sprintf("Aliases: `%s`\n", strings.Join(command.Aliases, "`, `")))
	}
	if command.Usage != "" {
		sb.WriteString(fmt.Sprintf("Usage: `%s%s`\n", inv.Prefix, command.Usage))
	}
	if subs := command.Subcommands(); len(subs) > 0 {
		sb.WriteString("Subcommands:\n")
		for _, s := range subs {
			sb.WriteString(fmt.Sprintf("`%s` - %s\n", s.Name, s.Description))
		}
	}

	probe := cmd.NewInvocation(command, inv.Message, nil, inv.Event)
	if failed, err := command.CanRun(ctx, probe); failed != "" {
		if err != nil {
			sb.WriteString(fmt.Sprintf("You cannot run this command: %s (%v)\n", failed, err))
		} else {
			sb.WriteString(fmt.Sprintf("You cannot run this command: %s\n", failed))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func runnable(ctx context.Context, inv *cmd.Invocation, command *cmd.Command) bool {
	probe := cmd.NewInvocation(command, inv.Message, nil, inv.Event)
	failed, _ := command.CanRun(ctx, probe)
	return failed == ""
}
