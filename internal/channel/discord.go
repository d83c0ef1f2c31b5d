// Package channel adapts the Discord gateway to the triage engine: inbound
// messages and reactions go onto the bus, outbound replies are rendered as
// embeds.
package channel

import (
	"context"
	"fmt"
	"log/slog"

	"supportbot/internal/config"
	"supportbot/internal/domain"

	"github.com/bwmarrin/discordgo"
)

// Discord implements domain.ChatChannel for Discord.
type Discord struct {
	cfg     config.DiscordConfig
	session *discordgo.Session
	bus     domain.MessageBus
	welcome *Welcomer
	logger  *slog.Logger
}

func NewDiscord(cfg config.DiscordConfig, logger *slog.Logger) *Discord {
	return &Discord{cfg: cfg, logger: logger}
}

func (d *Discord) Name() string { return "discord" }

// BotID returns the connected bot user's ID, or empty before Start.
func (d *Discord) BotID() string {
	if d.session == nil || d.session.State.User == nil {
		return ""
	}
	return d.session.State.User.ID
}

// Start connects to Discord and forwards gateway events to the bus until
// ctx is cancelled.
func (d *Discord) Start(ctx context.Context, bus domain.MessageBus) error {
	d.bus = bus

	session, err := discordgo.New("Bot " + d.cfg.Token)
	if err != nil {
		return fmt.Errorf("discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	d.session = session
	d.welcome = NewWelcomer(session, d.cfg.WelcomeChannelID, d.cfg.SupportChannelID, d.logger)

	session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author == nil || m.Author.ID == s.State.User.ID {
			return
		}
		if d.cfg.GuildID != "" && m.GuildID != d.cfg.GuildID {
			return
		}
		d.logger.Debug("discord message received",
			"author", m.Author.Username,
			"channel_id", m.ChannelID,
			"content_len", len(m.Content),
		)
		bus.Publish(d.toMessage(m.Message))
	})

	session.AddHandler(func(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
		if d.cfg.GuildID != "" && r.GuildID != d.cfg.GuildID {
			return
		}
		var name string
		var isBot bool
		if r.Member != nil && r.Member.User != nil {
			name = r.Member.User.Username
			isBot = r.Member.User.Bot
		}
		bus.PublishReaction(domain.Reaction{
			MessageID: r.MessageID,
			ChannelID: r.ChannelID,
			UserID:    r.UserID,
			UserName:  name,
			Emoji:     r.Emoji.Name,
			Bot:       isBot || r.UserID == s.State.User.ID,
		})
	})

	session.AddHandler(func(s *discordgo.Session, m *discordgo.GuildMemberAdd) {
		if d.cfg.GuildID != "" && m.GuildID != d.cfg.GuildID {
			return
		}
		d.welcome.Greet(m.Member)
	})

	if err := session.Open(); err != nil {
		return fmt.Errorf("discord connect: %w", err)
	}
	d.logger.Info("discord bot connected", "user", session.State.User.Username)

	<-ctx.Done()
	d.logger.Info("discord bot disconnecting")
	return session.Close()
}

// Dial opens a session without wiring gateway handlers. Used by one-shot
// commands (export) that only need the REST API.
func (d *Discord) Dial() error {
	session, err := discordgo.New("Bot " + d.cfg.Token)
	if err != nil {
		return fmt.Errorf("discord session: %w", err)
	}
	if err := session.Open(); err != nil {
		return fmt.Errorf("discord connect: %w", err)
	}
	d.session = session
	return nil
}

// Close shuts down a session opened with Dial.
func (d *Discord) Close() error {
	if d.session == nil {
		return nil
	}
	return d.session.Close()
}

func (d *Discord) toMessage(m *discordgo.Message) domain.Message {
	return domain.Message{
		ID:                 m.ID,
		ChannelID:          m.ChannelID,
		AuthorID:           m.Author.ID,
		AuthorName:         m.Author.Username,
		Content:            m.Content,
		Timestamp:          m.Timestamp,
		FromSupportChannel: m.ChannelID == d.cfg.SupportChannelID,
		Bot:                m.Author.Bot,
	}
}

const colorBlurple = 0x5865F2

// Reply renders r as a Discord message replying to messageID and returns
// the ID of the posted message.
func (d *Discord) Reply(ctx context.Context, channelID, messageID string, r domain.Reply) (string, error) {
	send := &discordgo.MessageSend{
		Reference: &discordgo.MessageReference{ChannelID: channelID, MessageID: messageID},
	}

	switch r.Kind {
	case domain.ReplyAnswer:
		embed := &discordgo.MessageEmbed{
			Title:       "💡 Quick Answer",
			Description: r.Body,
			Color:       colorBlurple,
			Footer:      &discordgo.MessageEmbedFooter{Text: "🤖 Automated response"},
		}
		if r.DocsLink != "" {
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
				Name:  "📚 Documentation",
				Value: fmt.Sprintf("[Learn more](%s)", r.DocsLink),
			})
		}
		if r.WithFeedback {
			embed.Fields = append(embed.Fields,
				&discordgo.MessageEmbedField{
					Name:  "💬 Did this help?",
					Value: "React 👍 if helpful, or 👎 if you need more help from the team.",
				},
				&discordgo.MessageEmbedField{
					Name:  "🆘 Need more help?",
					Value: "Reply here and the team will assist you!",
				},
			)
		}
		send.Embeds = []*discordgo.MessageEmbed{embed}

	case domain.ReplyHint:
		embed := &discordgo.MessageEmbed{
			Title:       "📚 Relevant Resources",
			Description: r.Body,
			Color:       colorBlurple,
			Footer:      &discordgo.MessageEmbedFooter{Text: "🤖 Quick links • Team will respond soon"},
		}
		if r.DocsLink != "" {
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
				Name:  "📖 Documentation",
				Value: fmt.Sprintf("[Learn more](%s)", r.DocsLink),
			})
		}
		send.Embeds = []*discordgo.MessageEmbed{embed}

	case domain.ReplyEscalation:
		send.Content = r.Body

	default:
		send.Content = r.Body
	}

	msg, err := d.session.ChannelMessageSendComplex(channelID, send, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("discord reply: %w", err)
	}
	return msg.ID, nil
}

func (d *Discord) AddReaction(ctx context.Context, channelID, messageID, emoji string) error {
	if err := d.session.MessageReactionAdd(channelID, messageID, emoji, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord add reaction: %w", err)
	}
	return nil
}

func (d *Discord) ClearReactions(ctx context.Context, channelID, messageID string) error {
	if err := d.session.MessageReactionsRemoveAll(channelID, messageID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord clear reactions: %w", err)
	}
	return nil
}

// History returns up to limit messages, newest first. A non-empty afterID
// restricts the result to messages posted strictly after it.
func (d *Discord) History(ctx context.Context, channelID, afterID string, limit int) ([]domain.Message, error) {
	msgs, err := d.session.ChannelMessages(channelID, limit, "", afterID, "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("discord history: %w", err)
	}
	out := make([]domain.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Author == nil {
			continue
		}
		out = append(out, d.toMessage(m))
	}
	return out, nil
}

// ExportHistory pages through the channel's entire history and returns it
// oldest first. Intended for the export command, not the hot path.
func (d *Discord) ExportHistory(ctx context.Context, channelID string) ([]domain.Message, error) {
	const pageSize = 100

	var all []domain.Message
	beforeID := ""
	for {
		page, err := d.session.ChannelMessages(channelID, pageSize, beforeID, "", "", discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("discord history page: %w", err)
		}
		if len(page) == 0 {
			break
		}
		for _, m := range page {
			if m.Author == nil {
				continue
			}
			all = append(all, d.toMessage(m))
		}
		beforeID = page[len(page)-1].ID
		d.logger.Debug("history page fetched", "channel", channelID, "total", len(all))
	}

	// Pages arrive newest first; flip to chronological order.
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	return all, nil
}

func (d *Discord) FetchMessage(ctx context.Context, channelID, messageID string) (*domain.Message, error) {
	m, err := d.session.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("discord fetch message: %w", err)
	}
	msg := d.toMessage(m)
	return &msg, nil
}

var _ domain.ChatChannel = (*Discord)(nil)
