package plugin

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/keshon/commandbot/internal/event"
	"github.com/keshon/commandbot/pkg/cmd"
	"github.com/rs/zerolog"
)

// Event is the payload of plugin_loaded and plugin_unloaded.
type Event struct {
	Locator string
	Bundles []string
}

// active is one registered bundle.
type active struct {
	bundle  Bundle
	owner   string
	locator string
	keys    []string
	subs    []*event.Subscription
}

// Manager owns the lifecycle of every loaded bundle.
// Load, Unload and Reload are serialized; lifecycle hooks and setup
// functions must not call them.
type Manager struct {
	host        Host
	loader      Loader
	log         zerolog.Logger
	middlewares []cmd.Middleware

	lifecycle sync.Mutex

	mu      sync.RWMutex
	sources map[string][]*Type
	args    map[string][]any
	order   []string
	active  []*active
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.log = l.With().Str("component", "plugins").Logger() }
}

// WithMiddleware wraps every command of every bundle loaded from now on.
func WithMiddleware(mws ...cmd.Middleware) Option {
	return func(m *Manager) { m.middlewares = append(m.middlewares, mws...) }
}

// NewManager creates a Manager loading sources through loader into host.
func NewManager(host Host, loader Loader, opts ...Option) *Manager {
	m := &Manager{
		host:    host,
		loader:  loader,
		log:     zerolog.Nop(),
		sources: make(map[string][]*Type),
		args:    make(map[string][]any),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Load sets up every bundle type the source at locator declares. args are
// passed to each type's setup. On failure nothing registered for locator
// stays behind.
func (m *Manager) Load(ctx context.Context, locator string, args ...any) error {
	m.lifecycle.Lock()
	names, err := m.load(ctx, locator, args...)
	m.lifecycle.Unlock()
	if err != nil {
		return err
	}

	m.publish(ctx, event.PluginLoaded, Event{Locator: locator, Bundles: names})
	return nil
}

// Unload removes every command and listener of the bundles loaded from
// locator, runs their Unload hooks and forgets the source. Hook errors do
// not stop the teardown; they are returned joined.
func (m *Manager) Unload(ctx context.Context, locator string) error {
	m.lifecycle.Lock()
	names, err := m.unload(ctx, locator)
	m.lifecycle.Unlock()
	if names == nil && err != nil {
		return err
	}

	m.publish(ctx, event.PluginUnloaded, Event{Locator: locator, Bundles: names})
	return err
}

// Reload unloads and loads locator again under one lifecycle lock. Without
// args the arguments of the previous load are reused.
func (m *Manager) Reload(ctx context.Context, locator string, args ...any) error {
	m.lifecycle.Lock()
	if len(args) == 0 {
		m.mu.RLock()
		args = m.args[locator]
		m.mu.RUnlock()
	}
	unloaded, uerr := m.unload(ctx, locator)
	if unloaded == nil && uerr != nil {
		m.lifecycle.Unlock()
		return uerr
	}
	loaded, lerr := m.load(ctx, locator, args...)
	m.lifecycle.Unlock()

	m.publish(ctx, event.PluginUnloaded, Event{Locator: locator, Bundles: unloaded})
	if lerr == nil {
		m.publish(ctx, event.PluginLoaded, Event{Locator: locator, Bundles: loaded})
	}
	return errors.Join(uerr, lerr)
}

// UnloadAll unloads every locator, most recently loaded first.
func (m *Manager) UnloadAll(ctx context.Context) error {
	locators := m.Loaded()
	slices.Reverse(locators)

	var errs []error
	for _, l := range locators {
		if err := m.Unload(ctx, l); err != nil && !errors.Is(err, ErrNotLoaded) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) load(ctx context.Context, locator string, args ...any) ([]string, error) {
	m.mu.RLock()
	_, loaded := m.sources[locator]
	m.mu.RUnlock()
	if loaded {
		return nil, fmt.Errorf("plugin %q: %w", locator, ErrAlreadyLoaded)
	}

	src, err := m.loader.Load(ctx, locator)
	if err != nil {
		return nil, fmt.Errorf("plugin %q: %w", locator, err)
	}
	if src == nil {
		m.release(locator)
		return nil, fmt.Errorf("plugin %q: %w", locator, ErrInvalidSource)
	}

	types := slices.DeleteFunc(slices.Clone(src()), func(t *Type) bool { return t == nil })
	if len(types) == 0 {
		m.release(locator)
		return nil, fmt.Errorf("plugin %q: %w", locator, ErrNoPluginsFound)
	}

	for _, t := range types {
		setup := t.Setup
		if setup == nil {
			setup = DefaultSetup
		}
		if err := setup(ctx, &Setup{m: m, locator: locator, typ: t}, args...); err != nil {
			_, rerr := m.teardown(ctx, locator)
			m.release(locator)
			return nil, errors.Join(fmt.Errorf("plugin %q: setup %s: %w", locator, t.Name, err), rerr)
		}
	}

	m.mu.Lock()
	m.sources[locator] = types
	m.args[locator] = args
	m.order = append(m.order, locator)
	m.mu.Unlock()

	names := m.BundleNames(locator)
	m.log.Info().Str("locator", locator).Strs("bundles", names).Msg("plugin loaded")
	return names, nil
}

// unload returns the names of the bundles it tore down, or nil when the
// locator was not loaded.
func (m *Manager) unload(ctx context.Context, locator string) ([]string, error) {
	m.mu.RLock()
	_, loaded := m.sources[locator]
	m.mu.RUnlock()
	if !loaded {
		return nil, fmt.Errorf("plugin %q: %w", locator, ErrNotLoaded)
	}

	names, err := m.teardown(ctx, locator)
	m.release(locator)

	m.mu.Lock()
	delete(m.sources, locator)
	delete(m.args, locator)
	m.order = slices.DeleteFunc(m.order, func(l string) bool { return l == locator })
	m.mu.Unlock()

	if names == nil {
		names = []string{}
	}
	m.log.Info().Str("locator", locator).Strs("bundles", names).Msg("plugin unloaded")
	if err != nil {
		return names, fmt.Errorf("plugin %q: %w", locator, err)
	}
	return names, nil
}

// teardown removes every bundle registered for locator, newest first.
func (m *Manager) teardown(ctx context.Context, locator string) ([]string, error) {
	m.mu.RLock()
	var victims []*active
	for _, a := range m.active {
		if a.locator == locator {
			victims = append(victims, a)
		}
	}
	m.mu.RUnlock()
	slices.Reverse(victims)

	var names []string
	var errs []error
	for _, a := range victims {
		m.deregister(a)
		if err := a.bundle.Unload(ctx); err != nil {
			errs = append(errs, fmt.Errorf("unload %s: %w", a.bundle.Name(), err))
		}
		m.mu.Lock()
		m.active = slices.DeleteFunc(m.active, func(x *active) bool { return x == a })
		m.mu.Unlock()
		names = append(names, a.bundle.Name())
	}
	slices.Reverse(names)
	return names, errors.Join(errs...)
}

func (m *Manager) release(locator string) {
	if err := m.loader.Unload(locator); err != nil {
		m.log.Warn().Err(err).Str("locator", locator).Msg("loader release failed")
	}
}

// add registers b for locator; see Setup.Add.
func (m *Manager) add(locator string, b Bundle) error {
	if b == nil {
		return ErrInvalidSource
	}
	name := b.Name()
	if m.Bundle(name) != nil {
		return fmt.Errorf("bundle %q: %w", name, ErrAlreadyLoaded)
	}

	a := &active{bundle: b, owner: uuid.NewString(), locator: locator}
	reg := m.host.Registry()

	var guard *cmd.Check
	if ch, ok := b.(Checker); ok {
		guard = &cmd.Check{Name: name + ".check", Fn: ch.Check}
	}

	for _, c := range b.Commands() {
		if c == nil {
			continue
		}
		prepare(c, a.owner, guard, m.middlewares)
		if err := reg.Add(c.Name, c); err != nil {
			clearOwner(c)
			m.deregister(a)
			return fmt.Errorf("bundle %q: %w", name, err)
		}
		a.keys = append(a.keys, c.Name)
	}

	bus := m.host.Bus()
	for _, l := range b.Listeners() {
		if l.Handler == nil {
			continue
		}
		a.subs = append(a.subs, bus.Subscribe(l.Event, l.Handler, event.WithOwner(a.owner)))
	}

	m.mu.Lock()
	m.active = append(m.active, a)
	m.mu.Unlock()

	m.log.Debug().Str("bundle", name).Int("commands", len(a.keys)).Int("listeners", len(a.subs)).Msg("bundle registered")
	return nil
}

// prepare tags c and its subcommands with owner, puts the bundle check in
// front of their own checks and wraps their bodies.
func prepare(c *cmd.Command, owner string, guard *cmd.Check, mws []cmd.Middleware) {
	c.SetOwner(owner)
	if guard != nil {
		c.Checks = append([]cmd.Check{*guard}, c.Checks...)
	}
	cmd.Apply(c, mws...)
	for _, s := range c.Subcommands() {
		prepare(s, owner, guard, mws)
	}
}

// deregister removes the commands and listeners owned by a.
func (m *Manager) deregister(a *active) {
	reg := m.host.Registry()
	for _, key := range a.keys {
		if c := reg.Get(key); c != nil && c.Owner() == a.owner {
			clearOwner(c)
			reg.Remove(key)
		}
	}
	for _, c := range reg.OwnedBy(a.owner) {
		clearOwner(c)
		for _, key := range c.Names() {
			if reg.Get(key) == c {
				reg.Remove(key)
			}
		}
	}
	a.keys = nil

	m.host.Bus().UnsubscribeOwner(a.owner)
	a.subs = nil
}

func clearOwner(c *cmd.Command) {
	c.SetOwner("")
	for _, s := range c.Subcommands() {
		clearOwner(s)
	}
}

// BundleNames returns the names of the active bundles loaded from locator.
func (m *Manager) BundleNames(locator string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var names []string
	for _, a := range m.active {
		if a.locator == locator {
			names = append(names, a.bundle.Name())
		}
	}
	return names
}

func (m *Manager) publish(ctx context.Context, name string, ev Event) {
	if err := m.host.Bus().Publish(ctx, name, ev); err != nil {
		m.log.Warn().Err(err).Str("event", name).Str("locator", ev.Locator).Msg("listener failed")
	}
}

// Bundles returns the active bundles in registration order.
func (m *Manager) Bundles() []Bundle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Bundle, 0, len(m.active))
	for _, a := range m.active {
		out = append(out, a.bundle)
	}
	return out
}

// Bundle returns the active bundle named name, or nil.
func (m *Manager) Bundle(name string) Bundle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.active {
		if a.bundle.Name() == name {
			return a.bundle
		}
	}
	return nil
}

// Loaded returns the loaded locators in load order.
func (m *Manager) Loaded() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.order)
}

// Types returns the bundle types recorded for locator.
func (m *Manager) Types(locator string) []*Type {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.sources[locator])
}

// OwnerID returns the owner id b's commands and listeners are tagged with,
// or "" when b is not active.
func (m *Manager) OwnerID(b Bundle) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.active {
		if a.bundle == b {
			return a.owner
		}
	}
	return ""
}

// CommandsFor returns the registered commands owned by b.
func (m *Manager) CommandsFor(b Bundle) []*cmd.Command {
	owner := m.OwnerID(b)
	if owner == "" {
		return nil
	}
	return m.host.Registry().OwnedBy(owner)
}
