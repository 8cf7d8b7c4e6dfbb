// cmd/cli/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/keshon/commandbot/internal/bot"
	"github.com/keshon/commandbot/internal/builtin"
	"github.com/keshon/commandbot/internal/bundles/dice"
	"github.com/keshon/commandbot/internal/config"
	"github.com/keshon/commandbot/internal/console"
	"github.com/keshon/commandbot/internal/logging"
	"github.com/keshon/commandbot/internal/middleware"
	"github.com/keshon/commandbot/pkg/cmd"
	"github.com/spf13/cobra"
)

type flags struct {
	prefixes  []string
	plugins   []string
	pluginDir string
	userID    string
	userName  string
	guild     string
	logLevel  string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	config.LoadDotEnv()
	cfg, cfgErr := config.New()
	if cfgErr != nil {
		cfg = &config.Config{CommandPrefix: []string{"!"}, LogLevel: "info"}
	}

	f := &flags{}
	root := &cobra.Command{
		Use:   "commandbot-cli",
		Short: "Run the command bot against standard input",
		Long: `commandbot-cli feeds every line of standard input to the bot as a chat
message and prints replies to standard output. Settings default to the same
environment variables the Discord binary reads.`,
		SilenceUsage: true,
		RunE: func(c *cobra.Command, _ []string) error {
			if cfgErr != nil {
				return cfgErr
			}
			return runConsole(c, f)
		},
	}

	fs := root.Flags()
	fs.StringSliceVarP(&f.prefixes, "prefix", "p", cfg.CommandPrefix, "command prefixes")
	fs.StringSliceVar(&f.plugins, "plugins", cfg.Plugins, "plugin locators to load at start")
	fs.StringVar(&f.pluginDir, "plugin-dir", cfg.PluginDir, "directory of shared-object bundles")
	fs.StringVar(&f.userID, "user-id", "console", "author id of every line")
	fs.StringVar(&f.userName, "user", "console", "author name of every line")
	fs.StringVar(&f.guild, "guild", "", "guild id to send from (direct message when empty)")
	fs.StringVar(&f.logLevel, "log-level", cfg.LogLevel, "log level")

	root.AddCommand(newLocatorsCmd())
	return root
}

func newLocatorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "locators",
		Short: "List the compiled-in plugin locators",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			b := bot.New(bot.Options{})
			if err := registerBundles(b); err != nil {
				return err
			}
			for _, l := range b.Catalog().Locators() {
				fmt.Fprintln(c.OutOrStdout(), l)
			}
			return nil
		},
	}
}

func registerBundles(b *bot.Bot) error {
	if err := builtin.Register(b.Catalog()); err != nil {
		return err
	}
	return dice.Register(b.Catalog())
}

func runConsole(c *cobra.Command, f *flags) error {
	log, closeLog := logging.New(logging.Options{Level: f.logLevel, Console: c.ErrOrStderr()})
	defer closeLog()

	ctx, stop := signal.NotifyContext(c.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	term := console.New(c.InOrStdin(), c.OutOrStdout(),
		console.WithUser(f.userID, f.userName),
		console.WithGuild(f.guild),
	)
	b := bot.New(bot.Options{
		Trigger:     cmd.Prefixes(f.prefixes),
		Responder:   term,
		Logger:      log,
		PluginDir:   f.pluginDir,
		Middlewares: []cmd.Middleware{middleware.WithCommandLogger(log)},
	})
	if err := registerBundles(b); err != nil {
		return err
	}

	admin := cmd.OwnerOnly(f.userID)
	if err := b.LoadPlugins(ctx, f.plugins, map[string][]any{builtin.Locator: {admin}}); err != nil {
		log.Warn().Err(err).Msg("some plugins failed to load")
	}

	runErr := term.Run(ctx, b)

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := b.Close(sctx); err != nil {
		log.Warn().Err(err).Msg("unclean shutdown")
	}
	return runErr
}
