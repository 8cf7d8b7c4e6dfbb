package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/keshon/commandbot/pkg/cmd"
	"github.com/keshon/commandbot/pkg/jobmgr"
)

func (c *Core) pluginsCommand() *cmd.Command {
	guard := []cmd.Check{c.admin}
	group := &cmd.Command{
		Name:        "plugins",
		Aliases:     []string{"plugin"},
		Description: "Manage loaded plugins",
		Usage:       "plugins <list|load|unload|reload|jobs> [locator]",
		Checks:      guard,
	}

	subs := []*cmd.Command{
		{
			Name:        "list",
			Aliases:     []string{"ls"},
			Description: "Show loaded plugins and their bundles",
			Checks:      guard,
			Run:         c.listPlugins,
		},
		{
			Name:        "load",
			Description: "Load a plugin",
			Usage:       "plugins load <locator>",
			Params:      []cmd.Param{{Name: "locator"}},
			Checks:      guard,
			Run: c.lifecycle("Loaded", func(ctx context.Context, locator string) error {
				return c.Host().Plugins().Load(ctx, locator)
			}),
		},
		{
			Name:        "unload",
			Description: "Unload a plugin",
			Usage:       "plugins unload <locator>",
			Params:      []cmd.Param{{Name: "locator"}},
			Checks:      guard,
			Run: c.lifecycle("Unloaded", func(ctx context.Context, locator string) error {
				return c.Host().Plugins().Unload(ctx, locator)
			}),
		},
		{
			Name:        "reload",
			Description: "Unload and load a plugin again",
			Usage:       "plugins reload <locator>",
			Params:      []cmd.Param{{Name: "locator"}},
			Checks:      guard,
			Run: c.lifecycle("Reloaded", func(ctx context.Context, locator string) error {
				return c.Host().Plugins().Reload(ctx, locator)
			}),
		},
		{
			Name:        "jobs",
			Description: "Show running command invocations",
			Checks:      guard,
			Run:         c.listJobs,
		},
	}
	for _, s := range subs {
		// names are fixed and distinct
		_ = group.AddSubcommand(s)
	}
	return group
}

func (c *Core) listPlugins(ctx context.Context, inv *cmd.Invocation) error {
	pm := c.Host().Plugins()
	loaded := pm.Loaded()
	if len(loaded) == 0 {
		return inv.Reply(ctx, "No plugins loaded.")
	}

	var sb strings.Builder
	for _, l := range loaded {
		sb.WriteString(fmt.Sprintf("`%s` - %s\n", l, strings.Join(pm.BundleNames(l), ", ")))
	}
	return inv.Reply(ctx, strings.TrimRight(sb.String(), "\n"))
}

// JobReporter is implemented by hosts that track running invocations.
type JobReporter interface {
	Jobs() *jobmgr.Manager
}

// listJobs reports the running invocations, including its own.
func (c *Core) listJobs(ctx context.Context, inv *cmd.Invocation) error {
	jr, ok := c.Host().(JobReporter)
	if !ok {
		return inv.Reply(ctx, "Job tracking is not available.")
	}
	return inv.Reply(ctx, jr.Jobs().Status())
}

// lifecycle wraps a plugin manager call in a command body that reports the
// outcome back to the caller. Errors are returned as well so they reach
// command_error.
func (c *Core) lifecycle(verb string, fn func(ctx context.Context, locator string) error) cmd.RunFunc {
	return func(ctx context.Context, inv *cmd.Invocation) error {
		locator := inv.Arg("locator")
		if err := fn(ctx, locator); err != nil {
			_ = inv.Reply(ctx, fmt.Sprintf("Failed: %v", err))
			return err
		}
		c.Host().Logger().Info().Str("locator", locator).Str("by", authorID(inv)).Msg(strings.ToLower(verb) + " plugin")
		return inv.Reply(ctx, fmt.Sprintf("%s `%s`.", verb, locator))
	}
}

func authorID(inv *cmd.Invocation) string {
	if inv.Message == nil {
		return ""
	}
	return inv.Message.AuthorID
}
