package cmd

import (
	"context"
	"slices"
	"strings"
)

// Check is a named invocation predicate. Fn may block.
type Check struct {
	Name string
	Fn   func(ctx context.Context, inv *Invocation) (bool, error)
}

// OwnerOnly passes when the message author is one of ids.
func OwnerOnly(ids ...string) Check {
	return Check{
		Name: "owner_only",
		Fn: func(_ context.Context, inv *Invocation) (bool, error) {
			return inv.Message != nil && slices.Contains(ids, inv.Message.AuthorID), nil
		},
	}
}

// AllOf passes when every check passes. The first error stops evaluation.
func AllOf(checks ...Check) Check {
	return Check{
		Name: joinNames("all", checks),
		Fn: func(ctx context.Context, inv *Invocation) (bool, error) {
			for _, c := range checks {
				ok, err := c.Fn(ctx, inv)
				if err != nil || !ok {
					return false, err
				}
			}
			return true, nil
		},
	}
}

// AnyOf passes when at least one check passes. Errors from failing checks are
// ignored unless none pass, in which case the last error is returned.
func AnyOf(checks ...Check) Check {
	return Check{
		Name: joinNames("any", checks),
		Fn: func(ctx context.Context, inv *Invocation) (bool, error) {
			var last error
			for _, c := range checks {
				ok, err := c.Fn(ctx, inv)
				if ok && err == nil {
					return true, nil
				}
				if err != nil {
					last = err
				}
			}
			return false, last
		},
	}
}

func joinNames(kind string, checks []Check) string {
	names := make([]string, 0, len(checks))
	for _, c := range checks {
		names = append(names, c.Name)
	}
	return kind + "(" + strings.Join(names, ",") + ")"
}
