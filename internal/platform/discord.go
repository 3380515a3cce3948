package platform

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/paul-berdier/greg-voice/internal/priority"
	"github.com/paul-berdier/greg-voice/pkg/logger"
)

// DiscordDirectory implements priority.Directory over the bot session's
// state cache, falling back to the REST API for uncached members.
type DiscordDirectory struct {
	session *discordgo.Session
	logger  *logger.Logger
}

// NewDiscordDirectory creates the directory
func NewDiscordDirectory(session *discordgo.Session, log *logger.Logger) *DiscordDirectory {
	return &DiscordDirectory{session: session, logger: log}
}

// GuildExists implements priority.Directory
func (d *DiscordDirectory) GuildExists(guildID string) bool {
	g, err := d.session.State.Guild(guildID)
	return err == nil && g != nil
}

// Member implements priority.Directory
func (d *DiscordDirectory) Member(guildID, userID string) (*priority.Member, error) {
	guild, err := d.session.State.Guild(guildID)
	if err != nil {
		return nil, fmt.Errorf("guild %s not in state: %w", guildID, err)
	}

	member, err := d.session.State.Member(guildID, userID)
	if err != nil || member == nil {
		member, err = d.session.GuildMember(guildID, userID)
		if err != nil {
			return nil, fmt.Errorf("member %s not found: %w", userID, err)
		}
	}

	out := &priority.Member{ID: userID}
	if member.Nick != "" {
		out.DisplayName = member.Nick
	} else if member.User != nil {
		out.DisplayName = member.User.Username
	}
	if member.User != nil {
		out.Avatar = member.User.AvatarURL("128")
	}

	// Resolve role ids to names and permission flags
	roleByID := make(map[string]*discordgo.Role, len(guild.Roles))
	for _, r := range guild.Roles {
		roleByID[r.ID] = r
	}
	for _, rid := range member.Roles {
		r, ok := roleByID[rid]
		if !ok {
			continue
		}
		out.Roles = append(out.Roles, r.Name)
		if r.Permissions&discordgo.PermissionAdministrator != 0 {
			out.IsAdministrator = true
		}
		if r.Permissions&discordgo.PermissionManageGuild != 0 {
			out.HasManageGuild = true
		}
	}
	if guild.OwnerID == userID {
		out.IsAdministrator = true
	}

	// Premium (booster) members map onto the Booster role class
	if member.PremiumSince != nil {
		out.Roles = append(out.Roles, "Booster")
	}

	for _, vs := range guild.VoiceStates {
		if vs.UserID == userID {
			out.VoiceChannelID = vs.ChannelID
			break
		}
	}

	return out, nil
}
