package cmd

import (
	"context"
	"slices"

	"github.com/google/uuid"
)

// Invocation carries everything one command run needs: the command that was
// resolved, the message that triggered it and the tokens that followed the
// command word. It lives for a single run.
type Invocation struct {
	ID        string
	Command   *Command
	Message   *Message
	Prefix    string
	Name      string
	RawArgs   []string
	Event     EventContext
	Responder Responder

	// Path lists the commands walked from the top-level one to Command.
	Path []*Command
	// Args holds the bound params of Command after Invoke parsed them.
	Args map[string]string
	// Rest holds the tokens bound to a variadic param.
	Rest []string
}

// NewInvocation builds the context for running c in response to msg.
func NewInvocation(c *Command, msg *Message, m *Match, ev EventContext) *Invocation {
	inv := &Invocation{
		ID:      uuid.NewString(),
		Command: c,
		Message: msg,
		Event:   ev,
		Path:    []*Command{c},
	}
	if m != nil {
		inv.Prefix = m.Prefix
		inv.Name = m.Word
		inv.RawArgs = slices.Clone(m.Args)
	}
	return inv
}

// Invoke resolves subcommands from the leading raw arguments, runs the checks
// of the deepest command, binds its params and runs its body, in that order.
// A token that names no subcommand ends the descent and stays an argument.
func (inv *Invocation) Invoke(ctx context.Context) error {
	args := inv.RawArgs
	for len(args) > 0 {
		sub := inv.Command.Subcommand(args[0])
		if sub == nil {
			break
		}
		inv.Command = sub
		inv.Path = append(inv.Path, sub)
		args = args[1:]
	}

	if failed, err := inv.Command.CanRun(ctx, inv); failed != "" {
		return &CheckFailure{Check: failed, Err: err}
	}

	bound, rest, err := bind(inv.Command, args)
	if err != nil {
		return err
	}
	inv.Args, inv.Rest = bound, rest

	if inv.Command.Run == nil {
		return ErrNoSubcommand
	}
	return inv.Command.Run(ctx, inv)
}

// Arg returns the bound value of a param, or "" when it is unknown.
func (inv *Invocation) Arg(name string) string {
	return inv.Args[name]
}

// Reply answers in the channel the invocation came from.
func (inv *Invocation) Reply(ctx context.Context, content string) error {
	if inv.Responder == nil {
		return ErrNoResponder
	}
	return inv.Responder.Reply(ctx, inv.Message, content)
}

// QualifiedName returns the names along Path separated by spaces, e.g. "plugins load".
func (inv *Invocation) QualifiedName() string {
	name := ""
	for i, c := range inv.Path {
		if i > 0 {
			name += " "
		}
		name += c.Name
	}
	return name
}
