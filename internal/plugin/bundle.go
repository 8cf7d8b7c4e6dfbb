// Package plugin loads and unloads bundles of commands and event listeners
// at runtime.
//
// A bundle source is a Source function listing bundle types. Loading a
// locator asks a Loader for its Source, sets up every type it declares and
// registers the resulting bundles with the host, tagging each command and
// listener with an owner id. Unloading removes everything carrying those ids,
// then runs each bundle's Unload hook.
package plugin

import (
	"context"
	"errors"

	"github.com/keshon/commandbot/internal/event"
	"github.com/keshon/commandbot/pkg/cmd"
	"github.com/rs/zerolog"
)

// Host is the runtime bundles are loaded into.
type Host interface {
	Registry() *cmd.Registry
	Bus() *event.Bus
	Plugins() *Manager
	Logger() zerolog.Logger
}

// Bundle is a unit of commands and listeners loaded and unloaded together.
type Bundle interface {
	Name() string
	// Load runs before the bundle's commands are registered.
	Load(ctx context.Context) error
	// Unload runs after the bundle's commands and listeners are removed.
	Unload(ctx context.Context) error
	Commands() []*cmd.Command
	Listeners() []event.Listener
}

// Checker is implemented by bundles that guard all of their commands with
// one extra check, named "<bundle>.check".
type Checker interface {
	Check(ctx context.Context, inv *cmd.Invocation) (bool, error)
}

// Base gives bundles default hooks and no commands or listeners. Embed it
// and override what is needed.
type Base struct {
	name string
	host Host
}

// NewBase returns a Base named name bound to host.
func NewBase(name string, host Host) Base {
	return Base{name: name, host: host}
}

func (b *Base) Name() string                 { return b.name }
func (b *Base) Host() Host                   { return b.host }
func (b *Base) Load(context.Context) error   { return nil }
func (b *Base) Unload(context.Context) error { return nil }
func (b *Base) Commands() []*cmd.Command     { return nil }
func (b *Base) Listeners() []event.Listener  { return nil }

// SetupFunc turns a Type into registered bundles. It normally builds a
// bundle, runs its Load hook and passes it to s.Add.
type SetupFunc func(ctx context.Context, s *Setup, args ...any) error

// Type describes one kind of bundle a source provides.
type Type struct {
	Name string
	// New builds a bundle. Used by the default setup.
	New func(host Host, args ...any) (Bundle, error)
	// Setup overrides the default setup when set.
	Setup SetupFunc
}

// Source lists the bundle types a plugin source provides. Shared objects
// export one as the "Bundles" symbol.
type Source func() []*Type

// Setup is handed to a SetupFunc while one type of one locator is set up.
type Setup struct {
	m       *Manager
	locator string
	typ     *Type
}

// Host returns the runtime being loaded into.
func (s *Setup) Host() Host { return s.m.host }

// Type returns the type being set up.
func (s *Setup) Type() *Type { return s.typ }

// Locator returns the locator being loaded.
func (s *Setup) Locator() string { return s.locator }

// Add registers b with the host: its commands go into the registry and its
// listeners onto the bus, all tagged with a fresh owner id. If any command
// name is taken, whatever b registered so far is removed again.
func (s *Setup) Add(b Bundle) error {
	return s.m.add(s.locator, b)
}

// DefaultSetup builds the bundle with t.New, runs its Load hook and adds it.
// When Add fails the bundle's Unload hook runs before returning.
func DefaultSetup(ctx context.Context, s *Setup, args ...any) error {
	if s.typ.New == nil {
		return ErrInvalidSource
	}
	b, err := s.typ.New(s.Host(), args...)
	if err != nil {
		return err
	}
	if err := b.Load(ctx); err != nil {
		return err
	}
	if err := s.Add(b); err != nil {
		if uerr := b.Unload(ctx); uerr != nil {
			return errors.Join(err, uerr)
		}
		return err
	}
	return nil
}
