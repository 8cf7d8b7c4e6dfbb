package cmd

import "context"

// Message is the transport-neutral view of a chat message. Transports fill
// Raw with their own object (e.g. *discordgo.MessageCreate).
type Message struct {
	ID         string
	ChannelID  string
	GuildID    string
	AuthorID   string
	AuthorName string
	Content    string
	Raw        any
}

// EventContext describes where a transport event came from.
type EventContext struct {
	Source     string
	Shard      int
	ShardCount int
}

// MessageEvent is the payload of a message_create event.
type MessageEvent struct {
	Event   EventContext
	Message *Message
}

// Responder sends replies back to the channel a message came from.
type Responder interface {
	Reply(ctx context.Context, to *Message, content string) error
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(ctx context.Context, to *Message, content string) error

// Reply implements Responder.
func (f ResponderFunc) Reply(ctx context.Context, to *Message, content string) error {
	return f(ctx, to, content)
}
