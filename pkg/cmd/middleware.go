package cmd

// Middleware wraps a command body (e.g. logging, metrics). It receives the
// command being wrapped so it can read its metadata.
type Middleware func(c *Command, next RunFunc) RunFunc

// Apply wraps c.Run with mws in order; the first in the list is the
// outermost. Commands without a body are left alone.
func Apply(c *Command, mws ...Middleware) *Command {
	if c.Run == nil {
		return c
	}
	run := c.Run
	for i := len(mws) - 1; i >= 0; i-- {
		run = mws[i](c, run)
	}
	c.Run = run
	return c
}

// ApplyTree applies mws to c and every subcommand below it.
func ApplyTree(c *Command, mws ...Middleware) *Command {
	Apply(c, mws...)
	for _, s := range c.Subcommands() {
		ApplyTree(s, mws...)
	}
	return c
}
