package cmd

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateName is matched by every *DuplicateNameError.
	ErrDuplicateName = errors.New("command name already in use")

	// ErrSubcommandCycle is returned when a subcommand would make the tree cyclic.
	ErrSubcommandCycle = errors.New("subcommand would create a cycle")

	// ErrNoSubcommand is returned when a group command without a body is
	// invoked without naming one of its subcommands.
	ErrNoSubcommand = errors.New("missing subcommand")

	// ErrNoResponder is returned by Reply when the invocation has no responder.
	ErrNoResponder = errors.New("no responder configured")
)

// DuplicateNameError reports a name or alias that is already registered.
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("command %q already exists", e.Name)
}

// Is lets errors.Is match ErrDuplicateName.
func (e *DuplicateNameError) Is(target error) bool { return target == ErrDuplicateName }

// CheckFailure is returned when an invocation check rejects the caller.
type CheckFailure struct {
	Check string
	Err   error
}

func (e *CheckFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("check %q failed: %v", e.Check, e.Err)
	}
	return fmt.Sprintf("check %q failed", e.Check)
}

func (e *CheckFailure) Unwrap() error { return e.Err }

// ArgumentError is returned when raw tokens do not satisfy a command's params.
type ArgumentError struct {
	Command string
	Param   string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("%s: missing required argument <%s>", e.Command, e.Param)
}
