package discord

import (
	"github.com/bwmarrin/discordgo"
	"github.com/keshon/commandbot/pkg/cmd"
)

func toMessage(m *discordgo.MessageCreate) *cmd.Message {
	msg := &cmd.Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
		Content:   m.Content,
		Raw:       m,
	}
	if m.Author != nil {
		msg.AuthorID = m.Author.ID
		msg.AuthorName = m.Author.Username
		if m.Member != nil && m.Member.Nick != "" {
			msg.AuthorName = m.Member.Nick
		}
	}
	return msg
}

func eventContext(s *discordgo.Session) cmd.EventContext {
	ev := cmd.EventContext{Source: Source}
	if s != nil {
		ev.Shard, ev.ShardCount = s.ShardID, s.ShardCount
	}
	return ev
}
