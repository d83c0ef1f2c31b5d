package channel

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
)

// pingDeleteAfter is how long the public "check your DMs" ping stays up
// after a successful DM.
const pingDeleteAfter = 180 * time.Second

// welcomeSession is the slice of the Discord session the welcomer needs.
type welcomeSession interface {
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
}

// Welcomer greets new guild members: the full welcome embed goes by DM,
// followed by a short auto-deleting ping in the welcome channel. When the
// member's DMs are closed, the embed is posted in the channel instead and
// stays there.
type Welcomer struct {
	session          welcomeSession
	welcomeChannelID string
	supportChannelID string
	deleteAfter      time.Duration
	logger           *slog.Logger
}

func NewWelcomer(session welcomeSession, welcomeChannelID, supportChannelID string, logger *slog.Logger) *Welcomer {
	return &Welcomer{
		session:          session,
		welcomeChannelID: welcomeChannelID,
		supportChannelID: supportChannelID,
		deleteAfter:      pingDeleteAfter,
		logger:           logger,
	}
}

// Greet welcomes one member. Errors are logged, never returned: a failed
// greeting must not disturb anything else.
func (w *Welcomer) Greet(member *discordgo.Member) {
	if member == nil || member.User == nil || member.User.Bot {
		return
	}
	user := member.User
	embed := w.welcomeEmbed(user)

	if w.greetByDM(user, embed) {
		w.pingChannel(user)
		return
	}
	if w.welcomeChannelID == "" {
		return
	}

	// DMs are closed: the full welcome goes to the channel instead, and stays.
	embed.Footer = &discordgo.MessageEmbedFooter{Text: "🤖 Enable server DMs for a private welcome next time!"}
	_, err := w.session.ChannelMessageSendComplex(w.welcomeChannelID, &discordgo.MessageSend{
		Content: fmt.Sprintf("Welcome %s!", user.Mention()),
		Embeds:  []*discordgo.MessageEmbed{embed},
	})
	if err != nil {
		w.logger.Warn("cannot post fallback welcome", "user", user.Username, "err", err)
		return
	}
	w.logger.Info("welcomed member in channel", "user", user.Username)
}

func (w *Welcomer) welcomeEmbed(user *discordgo.User) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: "Welcome! 👋",
		Description: fmt.Sprintf("Hey %s, **we're glad you're here!** 🎉\n\n"+
			"If you run into trouble, the team (with a little help from me) will get you sorted.", user.Mention()),
		Color:  colorBlurple,
		Footer: &discordgo.MessageEmbedFooter{Text: "We're excited to see what you build! ✨"},
	}
	if w.supportChannelID != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "💬 Need help?",
			Value: fmt.Sprintf("Head over to <#%s> and ask away!", w.supportChannelID),
		})
	}
	return embed
}

func (w *Welcomer) greetByDM(user *discordgo.User, embed *discordgo.MessageEmbed) bool {
	dm, err := w.session.UserChannelCreate(user.ID)
	if err != nil {
		w.logger.Debug("cannot open DM channel", "user", user.Username, "err", err)
		return false
	}
	if _, err := w.session.ChannelMessageSendEmbed(dm.ID, embed); err != nil {
		// Closed DMs are routine; the caller falls back to the channel.
		w.logger.Debug("cannot DM welcome", "user", user.Username, "err", err)
		return false
	}
	w.logger.Info("welcomed member by DM", "user", user.Username)
	return true
}

// pingChannel posts a short public note after a successful DM and removes
// it again so the channel stays tidy.
func (w *Welcomer) pingChannel(user *discordgo.User) {
	if w.welcomeChannelID == "" {
		return
	}
	msg, err := w.session.ChannelMessageSend(w.welcomeChannelID,
		fmt.Sprintf("👋 Welcome %s! Check your DMs for a quick guide to get started!", user.Mention()))
	if err != nil {
		w.logger.Warn("cannot post welcome ping", "user", user.Username, "err", err)
		return
	}
	go func(channelID, messageID string) {
		time.Sleep(w.deleteAfter)
		if err := w.session.ChannelMessageDelete(channelID, messageID); err != nil {
			w.logger.Debug("cannot delete welcome ping", "message", messageID, "err", err)
		}
	}(msg.ChannelID, msg.ID)
}
