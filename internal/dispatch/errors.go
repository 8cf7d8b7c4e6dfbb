package dispatch

import (
	"fmt"

	"github.com/keshon/commandbot/pkg/cmd"
)

// CommandError is published on command_error when an invocation fails. It
// wraps whatever escaped the checks or the command body, including panics.
type CommandError struct {
	Err        error
	Invocation *cmd.Invocation
	// Stack is set when the failure was a panic.
	Stack []byte
}

func (e *CommandError) Error() string {
	if e.Invocation == nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("command %q: %v", e.Invocation.QualifiedName(), e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }
