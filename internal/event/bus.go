// Package event is the bot's event registry: transports publish gateway events
// on it, the dispatcher and plugin bundles subscribe to them.
package event

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// Event names published by the core.
const (
	MessageCreate  = "message_create"
	CommandError   = "command_error"
	Ready          = "ready"
	PluginLoaded   = "plugin_loaded"
	PluginUnloaded = "plugin_unloaded"
)

// Handler receives the payload published for an event.
type Handler func(ctx context.Context, payload any) error

// Listener declares a handler for an event. Bundles return listeners and the
// plugin manager subscribes them.
type Listener struct {
	Event   string
	Handler Handler
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	ID      string
	Event   string
	Owner   string
	handler Handler
}

// Option configures a subscription.
type Option func(*Subscription)

// WithOwner tags a subscription with the id of the bundle that owns it.
func WithOwner(owner string) Option {
	return func(s *Subscription) { s.Owner = owner }
}

// Bus maps event names to ordered handler lists. It is safe for concurrent
// use; handlers are always called without the lock held.
type Bus struct {
	mu   sync.RWMutex
	subs map[string][]*Subscription
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string][]*Subscription)}
}

// Subscribe appends h to the handlers of event.
func (b *Bus) Subscribe(event string, h Handler, opts ...Option) *Subscription {
	sub := &Subscription{ID: uuid.NewString(), Event: event, handler: h}
	for _, opt := range opts {
		opt(sub)
	}

	b.mu.Lock()
	b.subs[event] = append(b.subs[event], sub)
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes sub. It reports whether sub was still subscribed.
func (b *Bus) Unsubscribe(sub *Subscription) bool {
	if sub == nil {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.subs[sub.Event]
	i := slices.Index(list, sub)
	if i < 0 {
		return false
	}
	b.subs[sub.Event] = slices.Delete(slices.Clone(list), i, i+1)
	return true
}

// UnsubscribeOwner removes every subscription tagged with owner and returns
// how many were removed.
func (b *Bus) UnsubscribeOwner(owner string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for ev, list := range b.subs {
		kept := make([]*Subscription, 0, len(list))
		for _, s := range list {
			if s.Owner == owner {
				n++
				continue
			}
			kept = append(kept, s)
		}
		b.subs[ev] = kept
	}
	return n
}

// OwnedBy returns the subscriptions tagged with owner.
func (b *Bus) OwnedBy(owner string) []*Subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []*Subscription
	for _, list := range b.subs {
		for _, s := range list {
			if s.Owner == owner {
				out = append(out, s)
			}
		}
	}
	return out
}

// Count returns the number of handlers subscribed to event.
func (b *Bus) Count(event string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[event])
}

// Publish calls every handler subscribed to event when Publish was called,
// in subscription order, and waits for all of them. A failing or panicking
// handler does not stop the others; their errors are returned joined.
func (b *Bus) Publish(ctx context.Context, event string, payload any) error {
	b.mu.RLock()
	list := slices.Clone(b.subs[event])
	b.mu.RUnlock()

	var errs []error
	for _, s := range list {
		if err := call(ctx, s, payload); err != nil {
			errs = append(errs, fmt.Errorf("%s handler %s: %w", event, s.ID, err))
		}
	}
	return errors.Join(errs...)
}

func call(ctx context.Context, s *Subscription, payload any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return s.handler(ctx, payload)
}

// PanicError is a recovered panic converted to an error.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}
