package middleware

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/commandbot/pkg/cmd"
)

// PermissionNames maps Discord permission bits to display names.
var PermissionNames = map[int64]string{
	discordgo.PermissionCreateInstantInvite:              "Create Instant Invite",
	discordgo.PermissionKickMembers:                      "Kick Members",
	discordgo.PermissionBanMembers:                       "Ban Members",
	discordgo.PermissionAdministrator:                    "Administrator",
	discordgo.PermissionManageChannels:                   "Manage Channels",
	discordgo.PermissionManageGuild:                      "Manage Server",
	discordgo.PermissionAddReactions:                     "Add Reactions",
	discordgo.PermissionViewAuditLogs:                    "View Audit Logs",
	discordgo.PermissionViewChannel:                      "View Channel",
	discordgo.PermissionSendMessages:                     "Send Messages",
	discordgo.PermissionSendTTSMessages:                  "Send TTS Messages",
	discordgo.PermissionManageMessages:                   "Manage Messages",
	discordgo.PermissionEmbedLinks:                       "Embed Links",
	discordgo.PermissionAttachFiles:                      "Attach Files",
	discordgo.PermissionReadMessageHistory:               "Read Message History",
	discordgo.PermissionMentionEveryone:                  "Mention Everyone",
	discordgo.PermissionUseExternalEmojis:                "Use External Emojis",
	discordgo.PermissionUseApplicationCommands:           "Use Application Commands",
	discordgo.PermissionManageThreads:                    "Manage Threads",
	discordgo.PermissionCreatePublicThreads:              "Create Public Threads",
	discordgo.PermissionCreatePrivateThreads:             "Create Private Threads",
	discordgo.PermissionUseExternalStickers:              "Use External Stickers",
	discordgo.PermissionSendMessagesInThreads:            "Send Messages in Threads",
	discordgo.PermissionSendVoiceMessages:                "Send Voice Messages",
	discordgo.PermissionSendPolls:                        "Send Polls",
	discordgo.PermissionUseExternalApps:                  "Use External Apps",
	discordgo.PermissionVoicePrioritySpeaker:             "Priority Speaker",
	discordgo.PermissionVoiceStreamVideo:                 "Stream Video",
	discordgo.PermissionVoiceConnect:                     "Connect to Voice Channel",
	discordgo.PermissionVoiceSpeak:                       "Speak",
	discordgo.PermissionVoiceMuteMembers:                 "Mute Members",
	discordgo.PermissionVoiceDeafenMembers:               "Deafen Members",
	discordgo.PermissionVoiceMoveMembers:                 "Move Members",
	discordgo.PermissionVoiceUseVAD:                      "Use Voice Activity Detection",
	discordgo.PermissionVoiceRequestToSpeak:              "Request to Speak",
	discordgo.PermissionUseEmbeddedActivities:            "Use Embedded Activities",
	discordgo.PermissionUseSoundboard:                    "Use Soundboard",
	discordgo.PermissionUseExternalSounds:                "Use External Sounds",
	discordgo.PermissionChangeNickname:                   "Change Nickname",
	discordgo.PermissionManageNicknames:                  "Manage Nicknames",
	discordgo.PermissionManageRoles:                      "Manage Roles",
	discordgo.PermissionManageWebhooks:                   "Manage Webhooks",
	discordgo.PermissionManageGuildExpressions:           "Manage Expressions (Emojis, Stickers, Sounds)",
	discordgo.PermissionManageEvents:                     "Manage Events",
	discordgo.PermissionViewCreatorMonetizationAnalytics: "View Creator Monetization Analytics",
	discordgo.PermissionCreateGuildExpressions:           "Create Expressions (Emojis, Stickers, Sounds)",
	discordgo.PermissionCreateEvents:                     "Create Events",
	discordgo.PermissionViewGuildInsights:                "View Guild Insights",
	discordgo.PermissionModerateMembers:                  "Moderate Members",
}

// PermissionSource reports a user's effective permissions in a channel.
// *discordgo.Session implements it.
type PermissionSource interface {
	UserChannelPermissions(userID, channelID string, opts ...discordgo.RequestOption) (int64, error)
}

// MissingPermissionsError lists the permissions of which the author had none.
type MissingPermissionsError struct {
	Required []int64
}

func (e *MissingPermissionsError) Error() string {
	return "missing permissions: " + strings.Join(permissionList(e.Required), ", ")
}

// RequirePermissions passes when the author holds at least one of perms in
// the channel, is an administrator or is listed in bypass. Direct messages
// always pass. On rejection the author is told what is missing.
func RequirePermissions(src PermissionSource, bypass []string, perms ...int64) cmd.Check {
	return cmd.Check{
		Name: "require_permissions",
		Fn: func(ctx context.Context, inv *cmd.Invocation) (bool, error) {
			m := inv.Message
			if m == nil || m.GuildID == "" || len(perms) == 0 {
				return true, nil
			}
			if slices.Contains(bypass, m.AuthorID) {
				return true, nil
			}

			have, err := src.UserChannelPermissions(m.AuthorID, m.ChannelID)
			if err != nil {
				return false, fmt.Errorf("failed to get user permissions: %w", err)
			}
			if have&discordgo.PermissionAdministrator != 0 {
				return true, nil
			}
			for _, p := range perms {
				if have&p != 0 {
					return true, nil
				}
			}

			msg := fmt.Sprintf(
				"You need at least one of the following permissions to run this command:\n`%s`",
				strings.Join(permissionList(perms), "`, `"),
			)
			_ = inv.Reply(ctx, msg)
			return false, &MissingPermissionsError{Required: perms}
		},
	}
}

func permissionList(perms []int64) []string {
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		name := PermissionNames[p]
		if name == "" {
			name = fmt.Sprintf("0x%x", p)
		}
		out = append(out, name)
	}
	return out
}
