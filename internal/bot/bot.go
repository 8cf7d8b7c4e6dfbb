// Package bot wires the command core together: one registry, one event bus,
// one job manager, the dispatcher and the plugin manager. A Bot is the Host
// bundles are loaded into; transports publish events on its bus.
package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/keshon/commandbot/internal/dispatch"
	"github.com/keshon/commandbot/internal/event"
	"github.com/keshon/commandbot/internal/plugin"
	"github.com/keshon/commandbot/pkg/cmd"
	"github.com/keshon/commandbot/pkg/jobmgr"
	"github.com/rs/zerolog"
)

// Options configures a Bot.
type Options struct {
	// Trigger decides which messages are commands. Defaults to the "!" prefix.
	Trigger cmd.Trigger
	// Responder is attached to every invocation.
	Responder cmd.Responder
	Logger    zerolog.Logger
	// PluginDir, when set, lets shared-object bundles load from that directory
	// after the compiled-in catalog.
	PluginDir string
	// Middlewares wrap the commands of every loaded bundle.
	Middlewares []cmd.Middleware
}

// Bot owns the command state for one process.
type Bot struct {
	log        zerolog.Logger
	registry   *cmd.Registry
	bus        *event.Bus
	jobs       *jobmgr.Manager
	dispatcher *dispatch.Dispatcher
	catalog    *plugin.Catalog
	plugins    *plugin.Manager
}

// New builds a Bot. Bundle sources are added to Catalog() before loading.
func New(opts Options) *Bot {
	b := &Bot{
		log:      opts.Logger,
		registry: cmd.NewRegistry(),
		bus:      event.NewBus(),
		catalog:  plugin.NewCatalog(),
	}

	jlog := b.log.With().Str("component", "jobs").Logger()
	b.jobs = jobmgr.NewManager(func(msg string) {
		jlog.Trace().Msg(msg)
	})

	trigger := opts.Trigger
	if trigger == nil {
		trigger = cmd.Prefix("!")
	}
	b.dispatcher = dispatch.New(trigger, b.registry, b.bus, b.jobs,
		dispatch.WithLogger(b.log),
		dispatch.WithResponder(opts.Responder),
	)

	var loader plugin.Loader = b.catalog
	if opts.PluginDir != "" {
		loader = plugin.NewMultiLoader(b.catalog, plugin.NewSharedObjectLoader(opts.PluginDir))
	}
	b.plugins = plugin.NewManager(b, loader,
		plugin.WithLogger(b.log),
		plugin.WithMiddleware(opts.Middlewares...),
	)
	return b
}

func (b *Bot) Registry() *cmd.Registry          { return b.registry }
func (b *Bot) Bus() *event.Bus                  { return b.bus }
func (b *Bot) Plugins() *plugin.Manager         { return b.plugins }
func (b *Bot) Logger() zerolog.Logger           { return b.log }
func (b *Bot) Catalog() *plugin.Catalog         { return b.catalog }
func (b *Bot) Dispatcher() *dispatch.Dispatcher { return b.dispatcher }
func (b *Bot) Jobs() *jobmgr.Manager            { return b.jobs }

// LoadPlugins loads locators in order. args maps a locator to the arguments
// passed to its setup. Every locator is tried; failures are returned joined.
func (b *Bot) LoadPlugins(ctx context.Context, locators []string, args map[string][]any) error {
	var errs []error
	for _, l := range locators {
		if err := b.plugins.Load(ctx, l, args[l]...); err != nil {
			b.log.Error().Err(err).Str("locator", l).Msg("plugin load failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Publish forwards a transport event to the bus. Handler errors are logged.
func (b *Bot) Publish(ctx context.Context, name string, payload any) {
	if err := b.bus.Publish(ctx, name, payload); err != nil {
		b.log.Warn().Err(err).Str("event", name).Msg("event handler failed")
	}
}

// HandleMessage publishes msg as message_create.
func (b *Bot) HandleMessage(ctx context.Context, ev cmd.EventContext, msg *cmd.Message) {
	b.Publish(ctx, event.MessageCreate, &cmd.MessageEvent{Event: ev, Message: msg})
}

// Close stops accepting messages, waits for running invocations until ctx
// ends, removes the default error handler and unloads every bundle.
func (b *Bot) Close(ctx context.Context) error {
	b.dispatcher.StopReceiving()
	werr := b.dispatcher.Wait(ctx)
	if werr != nil {
		werr = fmt.Errorf("waiting for invocations: %w", werr)
	}
	b.dispatcher.Close()
	uerr := b.plugins.UnloadAll(context.WithoutCancel(ctx))
	return errors.Join(werr, uerr)
}
