// Package cmd provides a transport-agnostic command core: commands with
// aliases and nested subcommands, a registry that resolves them, a trigger
// that recognises invocations in chat messages, and the per-invocation
// context that runs checks, binds arguments and executes the body. How a
// message reaches the core (Discord, console) is defined by adapters.
package cmd

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
)

// RunFunc is a command body.
type RunFunc func(ctx context.Context, inv *Invocation) error

// Command is a named, invocable unit with optional aliases and subcommands.
// Fields are set when the command is built and treated as read-only once it
// is registered; the owner tag and subcommands are safe to change later.
type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Params      []Param
	Checks      []Check
	Run         RunFunc

	mu    sync.RWMutex
	subs  []*Command
	owner atomic.Pointer[string]
}

// Names returns the command name followed by its aliases.
func (c *Command) Names() []string {
	return append([]string{c.Name}, c.Aliases...)
}

// Answers reports whether token is the command name or one of its aliases.
func (c *Command) Answers(token string) bool {
	return c.Name == token || slices.Contains(c.Aliases, token)
}

// Owner returns the id of the bundle that registered the command, or "".
func (c *Command) Owner() string {
	if p := c.owner.Load(); p != nil {
		return *p
	}
	return ""
}

// SetOwner tags the command with a bundle id. An empty id clears the tag.
func (c *Command) SetOwner(id string) {
	if id == "" {
		c.owner.Store(nil)
		return
	}
	c.owner.Store(&id)
}

// AddSubcommand attaches sub below c. Sibling names and aliases must be
// unique and the tree must stay acyclic.
func (c *Command) AddSubcommand(sub *Command) error {
	if sub == c || sub.contains(c) {
		return ErrSubcommandCycle
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.subs {
		for _, n := range sub.Names() {
			if existing.Answers(n) {
				return &DuplicateNameError{Name: n}
			}
		}
	}
	c.subs = append(c.subs, sub)
	return nil
}

// Subcommand returns the direct subcommand answering to token, or nil.
func (c *Command) Subcommand(token string) *Command {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.subs {
		if s.Answers(token) {
			return s
		}
	}
	return nil
}

// Subcommands returns a copy of the direct subcommands in insertion order.
func (c *Command) Subcommands() []*Command {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.subs)
}

// contains reports whether target is c or anywhere below c.
func (c *Command) contains(target *Command) bool {
	if c == target {
		return true
	}
	for _, s := range c.Subcommands() {
		if s.contains(target) {
			return true
		}
	}
	return false
}

// CanRun evaluates the checks in order. It returns the name of the first
// check that rejected the invocation, together with the error that check
// returned, if any. An empty name means every check passed.
func (c *Command) CanRun(ctx context.Context, inv *Invocation) (string, error) {
	for _, chk := range c.Checks {
		ok, err := chk.Fn(ctx, inv)
		if err != nil || !ok {
			return chk.Name, err
		}
	}
	return "", nil
}
