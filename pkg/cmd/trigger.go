package cmd

import (
	"context"
	"strings"
)

// Match is the outcome of a successful trigger: the command word, the
// remaining argument tokens and the prefix that matched.
type Match struct {
	Word   string
	Args   []string
	Prefix string
}

// Trigger decides whether a message is a command invocation. A nil Match
// with a nil error means the message is not a command.
type Trigger interface {
	Match(ctx context.Context, msg *Message) (*Match, error)
}

// Prefix triggers on messages starting with a single string.
type Prefix string

// Match implements Trigger.
func (p Prefix) Match(_ context.Context, msg *Message) (*Match, error) {
	if msg == nil || !strings.HasPrefix(msg.Content, string(p)) {
		return nil, nil
	}
	return split(msg.Content, string(p)), nil
}

// Prefixes triggers on the first listed prefix the message starts with.
type Prefixes []string

// Match implements Trigger.
func (ps Prefixes) Match(_ context.Context, msg *Message) (*Match, error) {
	if msg == nil {
		return nil, nil
	}
	for _, p := range ps {
		if strings.HasPrefix(msg.Content, p) {
			return split(msg.Content, p), nil
		}
	}
	return nil, nil
}

// TriggerFunc is a user supplied trigger. It may block; the dispatcher waits
// for it before resolving the command.
type TriggerFunc func(ctx context.Context, msg *Message) (*Match, error)

// Match implements Trigger.
func (f TriggerFunc) Match(ctx context.Context, msg *Message) (*Match, error) {
	return f(ctx, msg)
}

// MentionPrefixes triggers on a mention of the bot ("<@id> " or "<@!id> ")
// and then on the given string prefixes. id is read on every match since the
// bot user is only known once the transport is connected.
func MentionPrefixes(id func() string, prefixes ...string) TriggerFunc {
	return func(ctx context.Context, msg *Message) (*Match, error) {
		if msg == nil {
			return nil, nil
		}
		if botID := id(); botID != "" {
			for _, p := range []string{"<@" + botID + ">", "<@!" + botID + ">"} {
				if strings.HasPrefix(msg.Content, p) {
					return split(msg.Content, p), nil
				}
			}
		}
		return Prefixes(prefixes).Match(ctx, msg)
	}
}

// split strips prefix and tokenizes the remainder. It returns nil when only
// the prefix was sent.
func split(content, prefix string) *Match {
	tokens := Tokenize(content[len(prefix):])
	if len(tokens) == 0 {
		return nil
	}
	return &Match{Word: tokens[0], Args: tokens[1:], Prefix: prefix}
}
