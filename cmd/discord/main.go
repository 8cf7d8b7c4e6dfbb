// cmd/discord/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/commandbot/internal/bot"
	"github.com/keshon/commandbot/internal/builtin"
	"github.com/keshon/commandbot/internal/bundles/dice"
	"github.com/keshon/commandbot/internal/config"
	"github.com/keshon/commandbot/internal/discord"
	"github.com/keshon/commandbot/internal/logging"
	"github.com/keshon/commandbot/internal/middleware"
	"github.com/keshon/commandbot/pkg/cmd"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	dotenv := config.LoadDotEnv()

	cfg, err := config.New()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, closeLog := logging.New(logging.Options{
		Level:      cfg.LogLevel,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	})
	defer closeLog()
	if !dotenv {
		log.Debug().Msg("no .env file found, reading the environment only")
	}
	log.Info().Str("description", cfg.Description).Msg("starting discord bot")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	transport, err := discord.New(discord.Options{
		Token:          cfg.DiscordToken,
		Prefixes:       cfg.CommandPrefix,
		Mention:        cfg.MentionPrefix,
		GuildBlacklist: cfg.GuildBlacklist,
		ReplyRate:      cfg.ReplyRate,
		ReplyBurstMax:  cfg.ReplyBurstMax,
		Logger:         log,
	})
	if err != nil {
		return err
	}

	b := bot.New(bot.Options{
		Trigger:     transport.Trigger(),
		Responder:   transport.Responder(),
		Logger:      log,
		PluginDir:   cfg.PluginDir,
		Middlewares: []cmd.Middleware{middleware.WithCommandLogger(log)},
	})
	if err := builtin.Register(b.Catalog()); err != nil {
		return err
	}
	if err := dice.Register(b.Catalog()); err != nil {
		return err
	}

	// Owners, or guild members allowed to manage the server, administer plugins.
	admin := cmd.AnyOf(
		cmd.OwnerOnly(cfg.OwnerIDs...),
		cmd.AllOf(
			middleware.GuildOnly(),
			middleware.RequirePermissions(transport.Session(), cfg.OwnerIDs, discordgo.PermissionManageGuild),
		),
	)
	if err := b.LoadPlugins(ctx, cfg.Plugins, map[string][]any{builtin.Locator: {admin}}); err != nil {
		log.Warn().Err(err).Msg("some plugins failed to load")
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- transport.Run(ctx, b)
		close(errCh)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case s := <-sig:
		log.Info().Str("signal", s.String()).Msg("shutting down")
		cancel()
		runErr = <-errCh
	case runErr = <-errCh:
		if runErr != nil {
			log.Error().Err(runErr).Msg("discord transport stopped")
		}
		cancel()
	}

	sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer scancel()
	if err := b.Close(sctx); err != nil {
		log.Warn().Err(err).Msg("unclean shutdown")
	}

	log.Info().Msg("discord bot exited cleanly")
	return runErr
}
