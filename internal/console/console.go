// Package console is a line-based transport: every input line is a message
// from a single local user and replies are written to the output.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/keshon/commandbot/pkg/cmd"
)

// Source is the EventContext source of console messages.
const Source = "console"

// ChannelID is the channel every console message is sent in.
const ChannelID = "console"

// Handler receives each input line as a message. *bot.Bot implements it.
type Handler interface {
	HandleMessage(ctx context.Context, ev cmd.EventContext, msg *cmd.Message)
}

// Console reads messages from in and writes replies to out.
type Console struct {
	in     io.Reader
	out    io.Writer
	mu     sync.Mutex
	userID string
	user   string
	guild  string
}

// Option configures a Console.
type Option func(*Console)

// WithUser sets the author of every line.
func WithUser(id, name string) Option {
	return func(c *Console) { c.userID, c.user = id, name }
}

// WithGuild makes messages look like they come from a guild channel rather
// than a direct message.
func WithGuild(id string) Option {
	return func(c *Console) { c.guild = id }
}

// New creates a Console. The default author is "console".
func New(in io.Reader, out io.Writer, opts ...Option) *Console {
	c := &Console{in: in, out: out, userID: "console", user: "console"}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Reply implements cmd.Responder.
func (c *Console) Reply(_ context.Context, _ *cmd.Message, content string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintln(c.out, content)
	return err
}

// Run feeds lines to h until the input ends or ctx is done. Blank lines are
// skipped.
func (c *Console) Run(ctx context.Context, h Handler) error {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-errc:
					return err
				default:
					return nil
				}
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			h.HandleMessage(ctx, cmd.EventContext{Source: Source, ShardCount: 1}, c.message(line))
		}
	}
}

func (c *Console) message(line string) *cmd.Message {
	return &cmd.Message{
		ID:         uuid.NewString(),
		ChannelID:  ChannelID,
		GuildID:    c.guild,
		AuthorID:   c.userID,
		AuthorName: c.user,
		Content:    line,
	}
}
