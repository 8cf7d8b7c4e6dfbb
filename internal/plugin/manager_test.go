package plugin

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/keshon/commandbot/internal/event"
	"github.com/keshon/commandbot/pkg/cmd"
	"github.com/rs/zerolog"
)

type testHost struct {
	reg     *cmd.Registry
	bus     *event.Bus
	plugins *Manager
}

func (h *testHost) Registry() *cmd.Registry { return h.reg }
func (h *testHost) Bus() *event.Bus         { return h.bus }
func (h *testHost) Plugins() *Manager       { return h.plugins }
func (h *testHost) Logger() zerolog.Logger  { return zerolog.Nop() }

func newHost(t *testing.T, opts ...Option) (*testHost, *Catalog) {
	t.Helper()
	cat := NewCatalog()
	h := &testHost{reg: cmd.NewRegistry(), bus: event.NewBus()}
	h.plugins = NewManager(h, cat, opts...)
	return h, cat
}

// greeter is a bundle with one command group, one listener and counted hooks.
type greeter struct {
	Base
	mu      sync.Mutex
	loads   int
	unloads int
	failOn  string
	words   []string
}

func (g *greeter) Load(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.loads++
	return nil
}

func (g *greeter) Unload(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.unloads++
	if g.failOn == "unload" {
		return errors.New("unload failed")
	}
	return nil
}

func (g *greeter) Commands() []*cmd.Command {
	words := g.words
	if words == nil {
		words = []string{"hello"}
	}
	var out []*cmd.Command
	for _, w := range words {
		c := &cmd.Command{Name: w, Run: func(context.Context, *cmd.Invocation) error { return nil }}
		out = append(out, c)
	}
	group := &cmd.Command{Name: "greet"}
	_ = group.AddSubcommand(&cmd.Command{Name: "loud", Run: func(context.Context, *cmd.Invocation) error { return nil }})
	return append(out, group)
}

func (g *greeter) Listeners() []event.Listener {
	return []event.Listener{{Event: event.Ready, Handler: func(context.Context, any) error { return nil }}}
}

func greeterType(name string, made *[]*greeter, tweak func(*greeter)) *Type {
	return &Type{
		Name: name,
		New: func(h Host, _ ...any) (Bundle, error) {
			g := &greeter{Base: NewBase(name, h)}
			if tweak != nil {
				tweak(g)
			}
			*made = append(*made, g)
			return g, nil
		},
	}
}

func TestLoadRegistersBundle(t *testing.T) {
	h, cat := newHost(t)
	var made []*greeter
	_ = cat.Register("greet", func() []*Type { return []*Type{greeterType("Greeter", &made, nil)} })

	if err := h.plugins.Load(context.Background(), "greet"); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	b := h.plugins.Bundle("Greeter")
	if b == nil || len(made) != 1 || made[0].loads != 1 {
		t.Fatalf("bundle not set up: %v, %d", b, len(made))
	}
	owner := h.plugins.OwnerID(b)
	if owner == "" {
		t.Fatal("OwnerID() empty")
	}
	if got := len(h.plugins.CommandsFor(b)); got != 2 {
		t.Errorf("CommandsFor() = %d commands, want 2", got)
	}
	if c := h.reg.Resolve("greet"); c == nil || c.Subcommand("loud").Owner() != owner {
		t.Error("subcommand not tagged with owner")
	}
	if got := len(h.bus.OwnedBy(owner)); got != 1 {
		t.Errorf("listeners owned = %d, want 1", got)
	}
	if got := h.plugins.Loaded(); len(got) != 1 || got[0] != "greet" {
		t.Errorf("Loaded() = %v", got)
	}
	if got := len(h.plugins.Types("greet")); got != 1 {
		t.Errorf("Types() = %d, want 1", got)
	}
}

func TestUnloadRemovesEverything(t *testing.T) {
	h, cat := newHost(t)
	var made []*greeter
	_ = cat.Register("greet", func() []*Type { return []*Type{greeterType("Greeter", &made, nil)} })
	ctx := context.Background()

	if err := h.plugins.Load(ctx, "greet"); err != nil {
		t.Fatal(err)
	}
	b := h.plugins.Bundle("Greeter")
	owner := h.plugins.OwnerID(b)
	cmds := h.plugins.CommandsFor(b)

	if err := h.plugins.Unload(ctx, "greet"); err != nil {
		t.Fatalf("Unload() error = %v", err)
	}

	if got := h.plugins.CommandsFor(b); len(got) != 0 {
		t.Errorf("CommandsFor() after unload = %v", got)
	}
	if got := h.reg.OwnedBy(owner); len(got) != 0 {
		t.Errorf("registry still holds %d owned commands", len(got))
	}
	if h.reg.Len() != 0 {
		t.Errorf("registry Len() = %d, want 0", h.reg.Len())
	}
	if got := h.bus.OwnedBy(owner); len(got) != 0 {
		t.Errorf("%d listeners still subscribed", len(got))
	}
	for _, c := range cmds {
		if c.Owner() != "" {
			t.Errorf("command %s still tagged", c.Name)
		}
	}
	if made[0].unloads != 1 {
		t.Errorf("unload hook ran %d times, want 1", made[0].unloads)
	}
	if h.plugins.Bundle("Greeter") != nil || len(h.plugins.Bundles()) != 0 || len(h.plugins.Loaded()) != 0 {
		t.Error("bundle still active")
	}

	if err := h.plugins.Unload(ctx, "greet"); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("second Unload() error = %v, want ErrNotLoaded", err)
	}
	if made[0].unloads != 1 {
		t.Errorf("unload hook ran %d times after second unload, want 1", made[0].unloads)
	}
}

func TestLoadNoPluginsFound(t *testing.T) {
	h, cat := newHost(t)
	_ = cat.Register("existing", func() []*Type {
		var made []*greeter
		return []*Type{greeterType("Existing", &made, nil)}
	})
	_ = cat.Register("empty", func() []*Type { return nil })
	ctx := context.Background()
	if err := h.plugins.Load(ctx, "existing"); err != nil {
		t.Fatal(err)
	}
	before := h.reg.All()

	err := h.plugins.Load(ctx, "empty")
	if !errors.Is(err, ErrNoPluginsFound) {
		t.Fatalf("Load() error = %v, want ErrNoPluginsFound", err)
	}
	after := h.reg.All()
	if len(before) != len(after) {
		t.Fatalf("registry changed: %d -> %d", len(before), len(after))
	}
	for i := range before {
		if before[i] != after[i] {
			t.Errorf("entry %d changed", i)
		}
	}
	if got := h.plugins.Loaded(); len(got) != 1 {
		t.Errorf("Loaded() = %v", got)
	}
}

func TestLoadErrors(t *testing.T) {
	h, cat := newHost(t)
	var made []*greeter
	_ = cat.Register("greet", func() []*Type { return []*Type{greeterType("Greeter", &made, nil)} })
	ctx := context.Background()

	if err := h.plugins.Load(ctx, "missing"); !errors.Is(err, ErrSourceNotFound) {
		t.Errorf("Load(missing) error = %v", err)
	}
	if err := h.plugins.Load(ctx, "greet"); err != nil {
		t.Fatal(err)
	}
	if err := h.plugins.Load(ctx, "greet"); !errors.Is(err, ErrAlreadyLoaded) {
		t.Errorf("Load(greet) twice error = %v", err)
	}
}

func TestLoadRollsBackOnSetupFailure(t *testing.T) {
	h, cat := newHost(t)
	var made []*greeter
	boom := errors.New("boom")
	_ = cat.Register("mixed", func() []*Type {
		return []*Type{
			greeterType("First", &made, nil),
			{Name: "Broken", Setup: func(context.Context, *Setup, ...any) error { return boom }},
		}
	})

	err := h.plugins.Load(context.Background(), "mixed")
	if !errors.Is(err, boom) {
		t.Fatalf("Load() error = %v, want boom", err)
	}
	if h.reg.Len() != 0 || h.bus.Count(event.Ready) != 0 {
		t.Errorf("registrations left: %d commands, %d listeners", h.reg.Len(), h.bus.Count(event.Ready))
	}
	if len(made) != 1 || made[0].unloads != 1 {
		t.Errorf("first bundle not torn down")
	}
	if len(h.plugins.Loaded()) != 0 || len(h.plugins.Bundles()) != 0 {
		t.Error("locator recorded after failed load")
	}
}

func TestAddRollsBackDuplicateCommand(t *testing.T) {
	h, cat := newHost(t)
	if err := h.reg.Add("taken", &cmd.Command{Name: "taken"}); err != nil {
		t.Fatal(err)
	}
	var made []*greeter
	_ = cat.Register("dup", func() []*Type {
		return []*Type{greeterType("Dup", &made, func(g *greeter) { g.words = []string{"fresh", "taken"} })}
	})

	err := h.plugins.Load(context.Background(), "dup")
	if !errors.Is(err, cmd.ErrDuplicateName) {
		t.Fatalf("Load() error = %v, want ErrDuplicateName", err)
	}
	if h.reg.Resolve("fresh") != nil {
		t.Error("partial registration left behind")
	}
	if h.reg.Len() != 1 || h.reg.Resolve("taken").Owner() != "" {
		t.Error("pre-existing command disturbed")
	}
	if made[0].unloads != 1 {
		t.Errorf("unload hook ran %d times, want 1", made[0].unloads)
	}
}

func TestLoadRollsBackEarlierBundles(t *testing.T) {
	h, cat := newHost(t)
	var made []*greeter
	// both bundles declare the greet group, so the second Add fails
	_ = cat.Register("two", func() []*Type {
		return []*Type{
			greeterType("A", &made, func(g *greeter) { g.failOn = "unload"; g.words = []string{"a"} }),
			greeterType("B", &made, func(g *greeter) { g.words = []string{"b"} }),
		}
	})

	err := h.plugins.Load(context.Background(), "two")
	if !errors.Is(err, cmd.ErrDuplicateName) {
		t.Fatalf("Load() error = %v, want ErrDuplicateName", err)
	}
	if h.reg.Len() != 0 || h.bus.Count(event.Ready) != 0 {
		t.Errorf("registrations left: %d commands, %d listeners", h.reg.Len(), h.bus.Count(event.Ready))
	}
	for _, g := range made {
		if g.unloads != 1 {
			t.Errorf("%s unload hook ran %d times, want 1", g.Name(), g.unloads)
		}
	}
}

func TestUnloadContinuesAfterHookError(t *testing.T) {
	h, cat := newHost(t)
	var made []*greeter
	source := func(name, word string, fail bool) Source {
		return func() []*Type {
			return []*Type{{
				Name: name,
				New: func(host Host, _ ...any) (Bundle, error) {
					g := &greeter{Base: NewBase(name, host), words: []string{word}}
					if fail {
						g.failOn = "unload"
					}
					made = append(made, g)
					return &single{greeter: g}, nil
				},
			}}
		}
	}
	_ = cat.Register("bad", source("Bad", "x", true))
	ctx := context.Background()

	if err := h.plugins.Load(ctx, "bad"); err != nil {
		t.Fatal(err)
	}
	err := h.plugins.Unload(ctx, "bad")
	if err == nil {
		t.Fatal("Unload() error = nil, want hook error")
	}
	if h.reg.Len() != 0 || len(h.plugins.Bundles()) != 0 || len(h.plugins.Loaded()) != 0 {
		t.Error("teardown stopped at hook error")
	}
}

// single wraps greeter without its command group.
type single struct{ *greeter }

func (s *single) Commands() []*cmd.Command {
	return []*cmd.Command{{Name: s.words[0], Run: func(context.Context, *cmd.Invocation) error { return nil }}}
}

type guarded struct {
	Base
	allow bool
}

func (g *guarded) Commands() []*cmd.Command {
	group := &cmd.Command{Name: "vault"}
	_ = group.AddSubcommand(&cmd.Command{Name: "open", Run: func(context.Context, *cmd.Invocation) error { return nil }})
	return []*cmd.Command{group}
}

func (g *guarded) Check(context.Context, *cmd.Invocation) (bool, error) { return g.allow, nil }

func TestBundleCheckGuardsCommands(t *testing.T) {
	h, cat := newHost(t)
	_ = cat.Register("vault", func() []*Type {
		return []*Type{{Name: "Vault", New: func(host Host, args ...any) (Bundle, error) {
			return &guarded{Base: NewBase("Vault", host), allow: len(args) > 0 && args[0] == true}, nil
		}}}
	})

	if err := h.plugins.Load(context.Background(), "vault", false); err != nil {
		t.Fatal(err)
	}
	inv := cmd.NewInvocation(h.reg.Resolve("vault"), &cmd.Message{}, &cmd.Match{Word: "vault", Args: []string{"open"}}, cmd.EventContext{})
	var cf *cmd.CheckFailure
	if err := inv.Invoke(context.Background()); !errors.As(err, &cf) || cf.Check != "Vault.check" {
		t.Errorf("Invoke() error = %v, want Vault.check failure", err)
	}

	if err := h.plugins.Reload(context.Background(), "vault", true); err != nil {
		t.Fatal(err)
	}
	inv = cmd.NewInvocation(h.reg.Resolve("vault"), &cmd.Message{}, &cmd.Match{Word: "vault", Args: []string{"open"}}, cmd.EventContext{})
	if err := inv.Invoke(context.Background()); err != nil {
		t.Errorf("Invoke() after reload error = %v", err)
	}

	// no args: the previous ones are reused
	if err := h.plugins.Reload(context.Background(), "vault"); err != nil {
		t.Fatal(err)
	}
	inv = cmd.NewInvocation(h.reg.Resolve("vault"), &cmd.Message{}, &cmd.Match{Word: "vault", Args: []string{"open"}}, cmd.EventContext{})
	if err := inv.Invoke(context.Background()); err != nil {
		t.Errorf("Invoke() after argless reload error = %v", err)
	}
}

func TestMiddlewareWrapsBundleCommands(t *testing.T) {
	var seen []string
	mw := func(c *cmd.Command, next cmd.RunFunc) cmd.RunFunc {
		return func(ctx context.Context, inv *cmd.Invocation) error {
			seen = append(seen, c.Name)
			return next(ctx, inv)
		}
	}
	h, cat := newHost(t, WithMiddleware(mw))
	var made []*greeter
	_ = cat.Register("greet", func() []*Type { return []*Type{greeterType("Greeter", &made, nil)} })
	if err := h.plugins.Load(context.Background(), "greet"); err != nil {
		t.Fatal(err)
	}

	inv := cmd.NewInvocation(h.reg.Resolve("greet"), &cmd.Message{}, &cmd.Match{Word: "greet", Args: []string{"loud"}}, cmd.EventContext{})
	if err := inv.Invoke(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 1 || seen[0] != "loud" {
		t.Errorf("middleware saw %v", seen)
	}
}

func TestLifecycleEvents(t *testing.T) {
	h, cat := newHost(t)
	var made []*greeter
	_ = cat.Register("greet", func() []*Type { return []*Type{greeterType("Greeter", &made, nil)} })
	var got []string
	record := func(_ context.Context, p any) error {
		ev := p.(Event)
		got = append(got, ev.Locator+":"+ev.Bundles[0])
		return nil
	}
	h.bus.Subscribe(event.PluginLoaded, record)
	h.bus.Subscribe(event.PluginUnloaded, record)

	ctx := context.Background()
	_ = h.plugins.Load(ctx, "greet")
	_ = h.plugins.UnloadAll(ctx)

	if len(got) != 2 || got[0] != "greet:Greeter" || got[1] != "greet:Greeter" {
		t.Errorf("events = %v", got)
	}
}

func TestMultiLoaderFallsThrough(t *testing.T) {
	first, second := NewCatalog(), NewCatalog()
	var made []*greeter
	_ = second.Register("greet", func() []*Type { return []*Type{greeterType("Greeter", &made, nil)} })
	ml := NewMultiLoader(first, NewSharedObjectLoader(""), second)

	src, err := ml.Load(context.Background(), "greet")
	if err != nil || src == nil {
		t.Fatalf("Load() = %v, %v", src, err)
	}
	if _, err := ml.Load(context.Background(), "nope"); !errors.Is(err, ErrSourceNotFound) {
		t.Errorf("Load(nope) error = %v", err)
	}
	if err := ml.Unload("greet"); err != nil {
		t.Errorf("Unload() error = %v", err)
	}
}

func TestCatalogRejectsDuplicates(t *testing.T) {
	cat := NewCatalog()
	src := func() []*Type { return nil }
	if err := cat.Register("a", src); err != nil {
		t.Fatal(err)
	}
	if err := cat.Register("a", src); err == nil {
		t.Error("duplicate Register() error = nil")
	}
	if err := cat.Register("b", nil); !errors.Is(err, ErrInvalidSource) {
		t.Errorf("nil source error = %v", err)
	}
	if got := cat.Locators(); len(got) != 1 || got[0] != "a" {
		t.Errorf("Locators() = %v", got)
	}
}
