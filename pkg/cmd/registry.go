package cmd

import (
	"sort"
	"sync"
)

type entry struct {
	key string
	cmd *Command
}

// Registry stores top-level commands in registration order. It does not
// dispatch; the dispatcher resolves commands from it and plugin bundles add
// and remove theirs. Every read returns a copy so callers can mutate the
// registry while walking a result.
type Registry struct {
	mu      sync.RWMutex
	entries []entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add registers c under name. It fails when name or any alias of c is
// already answered by a registered command; the registry is unchanged then.
func (r *Registry) Add(name string, c *Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	candidates := append([]string{name}, c.Names()...)
	for _, e := range r.entries {
		for _, n := range candidates {
			if e.key == n || e.cmd.Answers(n) {
				return &DuplicateNameError{Name: n}
			}
		}
	}
	r.entries = append(r.entries, entry{key: name, cmd: c})
	return nil
}

// Remove deletes the command registered under name. Unknown names are ignored.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, e := range r.entries {
		if e.key == name {
			r.entries = append(r.entries[:i:i], r.entries[i+1:]...)
			return
		}
	}
}

// Get returns the command registered under exactly name, or nil.
func (r *Registry) Get(name string) *Command {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.entries {
		if e.key == name {
			return e.cmd
		}
	}
	return nil
}

// Resolve returns the first command, in registration order, registered under
// name or answering to it by name or alias.
func (r *Registry) Resolve(name string) *Command {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.entries {
		if e.key == name || e.cmd.Answers(name) {
			return e.cmd
		}
	}
	return nil
}

// ResolveSubcommand looks token up among the direct subcommands of c.
func (r *Registry) ResolveSubcommand(c *Command, token string) *Command {
	if c == nil {
		return nil
	}
	return c.Subcommand(token)
}

// ResolvePath resolves tokens[0] as a top-level command and every following
// token as a subcommand of the previous one. It stops at the first token that
// does not resolve and returns the deepest command with the number of tokens
// it consumed; the remaining tokens are that command's arguments.
func (r *Registry) ResolvePath(tokens []string) (*Command, int) {
	if len(tokens) == 0 {
		return nil, 0
	}
	c := r.Resolve(tokens[0])
	if c == nil {
		return nil, 0
	}
	used := 1
	for _, tok := range tokens[1:] {
		sub := c.Subcommand(tok)
		if sub == nil {
			break
		}
		c = sub
		used++
	}
	return c, used
}

// OwnedBy returns the commands tagged with owner, in registration order.
func (r *Registry) OwnedBy(owner string) []*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var list []*Command
	for _, e := range r.entries {
		if e.cmd.Owner() == owner {
			list = append(list, e.cmd)
		}
	}
	return list
}

// All returns every registered command in registration order.
func (r *Registry) All() []*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]*Command, 0, len(r.entries))
	for _, e := range r.entries {
		list = append(list, e.cmd)
	}
	return list
}

// Sorted returns every registered command sorted by name.
func (r *Registry) Sorted() []*Command {
	list := r.All()
	sort.Slice(list, func(i, j int) bool {
		return list[i].Name < list[j].Name
	})
	return list
}

// Len returns the number of registered commands.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
