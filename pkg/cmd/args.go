package cmd

import "strings"

// Param declares one argument of a command signature. Tokens are bound as
// raw strings; no type coercion happens here.
type Param struct {
	Name     string
	Optional bool
	Default  string
	// Rest binds every remaining token, joined by a single space.
	Rest bool
	// Variadic binds the remaining tokens to Invocation.Rest.
	Variadic bool
}

// bind maps raw tokens onto params. Tokens beyond the signature are left in
// RawArgs only.
func bind(c *Command, tokens []string) (map[string]string, []string, error) {
	args := make(map[string]string, len(c.Params))
	var rest []string

	i := 0
	for _, p := range c.Params {
		switch {
		case p.Variadic:
			if i < len(tokens) {
				rest = append(rest, tokens[i:]...)
			}
			i = len(tokens)
			continue
		case p.Rest:
			if i < len(tokens) {
				args[p.Name] = strings.Join(tokens[i:], " ")
				i = len(tokens)
				continue
			}
		case i < len(tokens):
			args[p.Name] = tokens[i]
			i++
			continue
		}

		if !p.Optional {
			return nil, nil, &ArgumentError{Command: c.Name, Param: p.Name}
		}
		args[p.Name] = p.Default
	}

	return args, rest, nil
}
