// Package config loads the bot configuration from the environment, reading
// a .env file first when one exists.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every setting of the bot binaries.
type Config struct {
	DiscordToken   string   `env:"DISCORD_TOKEN"`
	CommandPrefix  []string `env:"COMMAND_PREFIXES" envDefault:"!" envSeparator:","`
	MentionPrefix  bool     `env:"MENTION_PREFIX" envDefault:"true"`
	Plugins        []string `env:"PLUGINS" envDefault:"builtin.core,bundles.dice" envSeparator:","`
	PluginDir      string   `env:"PLUGIN_DIR"`
	OwnerIDs       []string `env:"OWNER_IDS" envSeparator:","`
	Description    string   `env:"BOT_DESCRIPTION" envDefault:"A command bot"`
	GuildBlacklist []string `env:"DISCORD_GUILD_BLACKLIST" envSeparator:","`

	ReplyRate     float64 `env:"REPLY_RATE" envDefault:"5"`
	ReplyBurstMax float64 `env:"REPLY_BURST_MAX" envDefault:"20"`

	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile       string `env:"LOG_FILE"`
	LogMaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" envDefault:"10"`
	LogMaxBackups int    `env:"LOG_MAX_BACKUPS" envDefault:"3"`
}

// ErrMissingToken is returned by Validate when DISCORD_TOKEN is empty.
var ErrMissingToken = errors.New("DISCORD_TOKEN is not set")

// LoadDotEnv reads files (".env" when none are given) into the process
// environment. Variables already set win. It reports whether a file was read.
func LoadDotEnv(files ...string) bool {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var found []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			found = append(found, f)
		}
	}
	if len(found) == 0 {
		return false
	}
	return godotenv.Load(found...) == nil
}

// New parses the environment into a Config.
func New() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	cfg.CommandPrefix = compact(cfg.CommandPrefix)
	cfg.Plugins = compact(cfg.Plugins)
	cfg.OwnerIDs = compact(cfg.OwnerIDs)
	cfg.GuildBlacklist = compact(cfg.GuildBlacklist)
	return &cfg, nil
}

// Validate checks the settings the Discord binary cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if c.DiscordToken == "" {
		errs = append(errs, ErrMissingToken)
	}
	if len(c.CommandPrefix) == 0 && !c.MentionPrefix {
		errs = append(errs, errors.New("no COMMAND_PREFIXES and MENTION_PREFIX disabled: nothing can trigger a command"))
	}
	if c.ReplyRate <= 0 {
		errs = append(errs, fmt.Errorf("REPLY_RATE must be positive, got %v", c.ReplyRate))
	}
	if c.ReplyBurstMax < c.ReplyRate {
		errs = append(errs, fmt.Errorf("REPLY_BURST_MAX (%v) must not be below REPLY_RATE (%v)", c.ReplyBurstMax, c.ReplyRate))
	}
	return errors.Join(errs...)
}

func compact(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
