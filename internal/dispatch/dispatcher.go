// Package dispatch turns message_create events into command invocations.
//
// Each matched message becomes one fire-and-forget job. Failures never travel
// back to the transport; they are published on command_error instead.
package dispatch

import (
	"context"
	"errors"
	"runtime/debug"
	"sync/atomic"

	"github.com/keshon/commandbot/internal/event"
	"github.com/keshon/commandbot/pkg/cmd"
	"github.com/keshon/commandbot/pkg/jobmgr"
	"github.com/rs/zerolog"
)

// Dispatcher matches messages against a trigger, resolves the command word in
// the registry and runs the invocation on the job manager.
type Dispatcher struct {
	trigger   cmd.Trigger
	registry  *cmd.Registry
	bus       *event.Bus
	jobs      *jobmgr.Manager
	responder cmd.Responder
	log       zerolog.Logger

	msgSub     *event.Subscription
	defaultSub atomic.Pointer[event.Subscription]
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(d *Dispatcher) { d.log = l.With().Str("component", "dispatch").Logger() }
}

// WithResponder sets the responder attached to every invocation.
func WithResponder(r cmd.Responder) Option {
	return func(d *Dispatcher) { d.responder = r }
}

// New creates a Dispatcher and subscribes it to message_create and the
// default error handler to command_error.
func New(trigger cmd.Trigger, registry *cmd.Registry, bus *event.Bus, jobs *jobmgr.Manager, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		trigger:  trigger,
		registry: registry,
		bus:      bus,
		jobs:     jobs,
		log:      zerolog.Nop(),
	}
	for _, o := range opts {
		o(d)
	}

	d.msgSub = bus.Subscribe(event.MessageCreate, d.onMessageCreate)
	d.defaultSub.Store(bus.Subscribe(event.CommandError, d.defaultErrorHandler))
	return d
}

// StopReceiving unsubscribes from message_create. Invocations already
// submitted keep running and still report failures through command_error.
func (d *Dispatcher) StopReceiving() {
	d.bus.Unsubscribe(d.msgSub)
}

// Close unsubscribes the dispatcher and its default error handler from the
// bus. Call it after Wait so late failures are still logged.
func (d *Dispatcher) Close() {
	d.StopReceiving()
	if sub := d.defaultSub.Swap(nil); sub != nil {
		d.bus.Unsubscribe(sub)
	}
}

func (d *Dispatcher) onMessageCreate(ctx context.Context, payload any) error {
	ev, ok := payload.(*cmd.MessageEvent)
	if !ok || ev == nil {
		d.log.Debug().Type("payload", payload).Msg("unexpected message_create payload")
		return nil
	}
	d.HandleMessage(ctx, ev.Event, ev.Message)
	return nil
}

// HandleMessage matches and resolves msg and submits the invocation. It
// returns the invocation id, or "" when the message was dropped. It never
// waits for the command to finish; the invocation itself belongs to the job.
func (d *Dispatcher) HandleMessage(ctx context.Context, ev cmd.EventContext, msg *cmd.Message) string {
	if msg == nil || msg.Content == "" {
		return ""
	}

	m, err := d.trigger.Match(ctx, msg)
	if err != nil {
		d.log.Warn().Err(err).Str("message", msg.ID).Msg("trigger failed")
		return ""
	}
	if m == nil {
		return ""
	}

	c := d.registry.Resolve(m.Word)
	if c == nil {
		d.log.Debug().Str("word", m.Word).Str("message", msg.ID).Msg("unknown command")
		return ""
	}

	inv := cmd.NewInvocation(c, msg, m, ev)
	inv.Responder = d.responder

	id := inv.ID
	d.jobs.Go(context.WithoutCancel(ctx), "invoke "+c.Name, func(ctx context.Context) error {
		return d.run(ctx, inv)
	})
	return id
}

// run is the task boundary: nothing escapes it except into command_error.
func (d *Dispatcher) run(ctx context.Context, inv *cmd.Invocation) error {
	stack, err := invoke(ctx, inv)
	if err == nil {
		return nil
	}

	cerr := &CommandError{Err: err, Invocation: inv, Stack: stack}
	if perr := d.bus.Publish(ctx, event.CommandError, cerr); perr != nil {
		d.log.Error().Err(perr).Str("invocation", inv.ID).Msg("command_error handler failed")
	}
	return err
}

func invoke(ctx context.Context, inv *cmd.Invocation) (stack []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			stack = debug.Stack()
			err = &event.PanicError{Value: r, Stack: stack}
		}
	}()
	return nil, inv.Invoke(ctx)
}

// defaultErrorHandler logs the failure. Once somebody else listens on
// command_error it removes itself for good.
func (d *Dispatcher) defaultErrorHandler(_ context.Context, payload any) error {
	if d.bus.Count(event.CommandError) >= 2 {
		if sub := d.defaultSub.Swap(nil); sub != nil {
			d.bus.Unsubscribe(sub)
			d.log.Debug().Msg("custom command_error handler found, default handler removed")
		}
		return nil
	}

	var cerr *CommandError
	err, _ := payload.(error)
	if !errors.As(err, &cerr) {
		d.log.Error().Interface("payload", payload).Msg("command failed")
		return nil
	}

	e := d.log.Error().Err(cerr.Err)
	if inv := cerr.Invocation; inv != nil {
		e = e.Str("command", inv.QualifiedName()).Str("invocation", inv.ID)
		if inv.Message != nil {
			e = e.Str("channel", inv.Message.ChannelID).Str("author", inv.Message.AuthorID)
		}
	}
	if len(cerr.Stack) > 0 {
		e = e.Str("stack", string(cerr.Stack))
	}
	e.Msg("command failed")
	return nil
}

// AddCommand registers c under name.
func (d *Dispatcher) AddCommand(name string, c *cmd.Command) error {
	return d.registry.Add(name, c)
}

// Command resolves a top-level command by name or alias.
func (d *Dispatcher) Command(name string) *cmd.Command {
	return d.registry.Resolve(name)
}

// CommandsFor returns the commands tagged with owner.
func (d *Dispatcher) CommandsFor(owner string) []*cmd.Command {
	return d.registry.OwnedBy(owner)
}

// Wait blocks until every submitted invocation has finished or ctx ends.
func (d *Dispatcher) Wait(ctx context.Context) error {
	return d.jobs.Wait(ctx)
}
