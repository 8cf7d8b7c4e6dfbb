package dispatch

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/keshon/commandbot/internal/event"
	"github.com/keshon/commandbot/pkg/cmd"
	"github.com/keshon/commandbot/pkg/jobmgr"
	"github.com/rs/zerolog"
)

type fixture struct {
	registry *cmd.Registry
	bus      *event.Bus
	d        *Dispatcher
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{registry: cmd.NewRegistry(), bus: event.NewBus()}
	f.d = New(cmd.Prefix("!"), f.registry, f.bus, jobmgr.NewManager(nil), opts...)
	return f
}

func (f *fixture) add(t *testing.T, c *cmd.Command) {
	t.Helper()
	if err := f.d.AddCommand(c.Name, c); err != nil {
		t.Fatalf("AddCommand(%q) error = %v", c.Name, err)
	}
}

func (f *fixture) send(content string) string {
	return f.d.HandleMessage(context.Background(), cmd.EventContext{Source: "test"}, &cmd.Message{
		ID: "m-" + content, ChannelID: "c1", AuthorID: "u1", Content: content,
	})
}

func (f *fixture) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := f.d.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
}

type errorLog struct {
	mu   sync.Mutex
	errs []*CommandError
}

func (l *errorLog) handler(_ context.Context, payload any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs = append(l.errs, payload.(*CommandError))
	return nil
}

func (l *errorLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errs)
}

func TestDispatchRunsCommand(t *testing.T) {
	f := newFixture(t)
	got := make(chan *cmd.Invocation, 1)
	f.add(t, &cmd.Command{
		Name:    "echo",
		Aliases: []string{"say"},
		Params:  []cmd.Param{{Name: "text", Rest: true}},
		Run: func(_ context.Context, inv *cmd.Invocation) error {
			got <- inv
			return nil
		},
	})

	id := f.send(`!say "hello there" friend`)
	if id == "" {
		t.Fatal("HandleMessage() = \"\", want invocation id")
	}
	f.wait(t)

	inv := <-got
	if inv.ID != id {
		t.Errorf("invocation id = %q, HandleMessage returned %q", inv.ID, id)
	}
	if inv.Prefix != "!" || inv.Name != "say" || inv.Event.Source != "test" {
		t.Errorf("invocation = prefix %q name %q source %q", inv.Prefix, inv.Name, inv.Event.Source)
	}
	if inv.Arg("text") != "hello there friend" {
		t.Errorf("text = %q", inv.Arg("text"))
	}
}

func TestDispatchDropsSilently(t *testing.T) {
	f := newFixture(t)
	var errs errorLog
	f.bus.Subscribe(event.CommandError, errs.handler)
	ran := false
	f.add(t, &cmd.Command{Name: "ping", Run: func(context.Context, *cmd.Invocation) error {
		ran = true
		return nil
	}})

	for _, content := range []string{"", "ping", "?ping", "!", "!pong"} {
		if id := f.send(content); id != "" {
			t.Errorf("HandleMessage(%q) dispatched %s", content, id)
		}
	}
	f.wait(t)

	if ran || errs.len() != 0 {
		t.Errorf("ran = %v, errors = %d", ran, errs.len())
	}
}

func TestDispatchTriggerError(t *testing.T) {
	bus := event.NewBus()
	reg := cmd.NewRegistry()
	trig := cmd.TriggerFunc(func(context.Context, *cmd.Message) (*cmd.Match, error) {
		return nil, errors.New("lookup failed")
	})
	d := New(trig, reg, bus, jobmgr.NewManager(nil))
	if id := d.HandleMessage(context.Background(), cmd.EventContext{}, &cmd.Message{Content: "!x"}); id != "" {
		t.Error("HandleMessage() dispatched despite trigger error")
	}
}

func TestDispatchFromBus(t *testing.T) {
	f := newFixture(t)
	done := make(chan struct{})
	f.add(t, &cmd.Command{Name: "ping", Run: func(context.Context, *cmd.Invocation) error {
		close(done)
		return nil
	}})

	err := f.bus.Publish(context.Background(), event.MessageCreate, &cmd.MessageEvent{
		Message: &cmd.Message{Content: "!ping"},
	})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("command did not run")
	}
}

func TestCommandErrorPublishedOnce(t *testing.T) {
	f := newFixture(t)
	var errs errorLog
	f.bus.Subscribe(event.CommandError, errs.handler)
	boom := errors.New("boom")
	f.add(t, &cmd.Command{Name: "fail", Run: func(context.Context, *cmd.Invocation) error {
		return boom
	}})

	sent := f.send("!fail now")
	f.wait(t)

	if errs.len() != 1 {
		t.Fatalf("command_error published %d times, want 1", errs.len())
	}
	cerr := errs.errs[0]
	if !errors.Is(cerr, boom) {
		t.Errorf("error = %v, want boom", cerr.Err)
	}
	if cerr.Invocation != sent || cerr.Invocation.Message.Content != "!fail now" {
		t.Errorf("invocation not attached: %+v", cerr.Invocation)
	}
	if len(cerr.Stack) != 0 {
		t.Errorf("unexpected stack for plain error")
	}
}

func TestCommandPanicIsContained(t *testing.T) {
	f := newFixture(t)
	var errs errorLog
	f.bus.Subscribe(event.CommandError, errs.handler)
	f.add(t, &cmd.Command{Name: "crash", Run: func(context.Context, *cmd.Invocation) error {
		panic("kaboom")
	}})

	f.send("!crash")
	f.wait(t)

	if errs.len() != 1 {
		t.Fatalf("command_error published %d times, want 1", errs.len())
	}
	var perr *event.PanicError
	if !errors.As(errs.errs[0].Err, &perr) || perr.Value != "kaboom" {
		t.Errorf("error = %v, want PanicError(kaboom)", errs.errs[0].Err)
	}
	if len(errs.errs[0].Stack) == 0 {
		t.Error("stack not captured")
	}
}

func TestCheckFailureIsReported(t *testing.T) {
	f := newFixture(t)
	var errs errorLog
	f.bus.Subscribe(event.CommandError, errs.handler)
	ran := false
	f.add(t, &cmd.Command{
		Name:   "admin",
		Checks: []cmd.Check{cmd.OwnerOnly("owner")},
		Run: func(context.Context, *cmd.Invocation) error {
			ran = true
			return nil
		},
	})

	f.send("!admin")
	f.wait(t)

	if ran {
		t.Error("body ran despite failing check")
	}
	var cf *cmd.CheckFailure
	if errs.len() != 1 || !errors.As(errs.errs[0], &cf) || cf.Check != "owner_only" {
		t.Errorf("errors = %v", errs.errs)
	}
}

func TestDefaultHandlerLogs(t *testing.T) {
	var buf bytes.Buffer
	f := newFixture(t, WithLogger(zerolog.New(&buf)))
	f.add(t, &cmd.Command{Name: "fail", Run: func(context.Context, *cmd.Invocation) error {
		return errors.New("boom")
	}})

	f.send("!fail")
	f.wait(t)

	if got := f.bus.Count(event.CommandError); got != 1 {
		t.Errorf("command_error subscribers = %d, want 1", got)
	}
	out := buf.String()
	if !strings.Contains(out, "command failed") || !strings.Contains(out, `"command":"fail"`) {
		t.Errorf("log = %s", out)
	}
}

func TestDefaultHandlerStepsAside(t *testing.T) {
	var buf bytes.Buffer
	f := newFixture(t, WithLogger(zerolog.New(&buf)))
	var first, second errorLog
	f.bus.Subscribe(event.CommandError, first.handler)
	f.bus.Subscribe(event.CommandError, second.handler)
	f.add(t, &cmd.Command{Name: "fail", Run: func(context.Context, *cmd.Invocation) error {
		return errors.New("boom")
	}})

	f.send("!fail")
	f.wait(t)
	if got := f.bus.Count(event.CommandError); got != 2 {
		t.Fatalf("command_error subscribers = %d, want 2", got)
	}

	f.send("!fail")
	f.wait(t)

	if first.len() != 2 || second.len() != 2 {
		t.Errorf("user handlers saw %d and %d errors, want 2 each", first.len(), second.len())
	}
	if strings.Contains(buf.String(), "command failed") {
		t.Errorf("default handler logged after stepping aside: %s", buf.String())
	}
}

func TestSlowCommandDoesNotBlockNext(t *testing.T) {
	f := newFixture(t)
	release := make(chan struct{})
	var mu sync.Mutex
	var order []string
	record := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}

	f.add(t, &cmd.Command{Name: "slow", Run: func(context.Context, *cmd.Invocation) error {
		<-release
		record("slow")
		return nil
	}})
	f.add(t, &cmd.Command{Name: "fast", Run: func(context.Context, *cmd.Invocation) error {
		record("fast")
		close(release)
		return nil
	}})

	f.send("!slow")
	f.send("!fast")
	f.wait(t)

	mu.Lock()
	defer mu.Unlock()
	if strings.Join(order, ",") != "fast,slow" {
		t.Errorf("completion order = %v, want [fast slow]", order)
	}
}

func TestCloseUnsubscribes(t *testing.T) {
	f := newFixture(t)
	f.d.Close()
	if f.bus.Count(event.MessageCreate) != 0 || f.bus.Count(event.CommandError) != 0 {
		t.Errorf("subscriptions left after Close")
	}
}

func TestStopReceivingKeepsErrorReporting(t *testing.T) {
	var buf bytes.Buffer
	f := newFixture(t, WithLogger(zerolog.New(&buf)))
	release := make(chan struct{})
	f.add(t, &cmd.Command{Name: "slow", Run: func(context.Context, *cmd.Invocation) error {
		<-release
		return errors.New("failed during shutdown")
	}})

	f.send("!slow")
	f.d.StopReceiving()
	if f.bus.Count(event.MessageCreate) != 0 {
		t.Error("still subscribed to message_create")
	}
	close(release)
	f.wait(t)
	f.d.Close()

	if !strings.Contains(buf.String(), "failed during shutdown") {
		t.Errorf("failure during shutdown was not logged: %q", buf.String())
	}
	if f.bus.Count(event.CommandError) != 0 {
		t.Error("default handler still subscribed after Close")
	}
}
