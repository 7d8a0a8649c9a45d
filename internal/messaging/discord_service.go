package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/BTreeMap/FolioPipe/internal/models"
)

// discordMaxButtonsPerRow is Discord's limit of buttons in one action row.
const discordMaxButtonsPerRow = 5

// discordSession is the subset of *discordgo.Session used by DiscordService.
type discordSession interface {
	AddHandler(handler interface{}) func()
	Open() error
	Close() error
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
}

// NewDiscordSession creates a bot session with the intents the service needs.
func NewDiscordSession(token string) (*discordgo.Session, error) {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent
	return dg, nil
}

// DiscordService implements Service with the Discord gateway. Buttons are
// message components whose custom id is the button label.
type DiscordService struct {
	session  discordSession
	inbound  chan Inbound
	removers []func()

	mu      sync.RWMutex
	stopped bool
}

// NewDiscordService creates a DiscordService over session.
func NewDiscordService(session discordSession) *DiscordService {
	return &DiscordService{
		session: session,
		inbound: make(chan Inbound, DefaultChannelBufferSize),
	}
}

func (s *DiscordService) Platform() Platform { return PlatformDiscord }

func (s *DiscordService) NativeButtons() bool { return true }

// Start registers the gateway handlers and opens the websocket.
func (s *DiscordService) Start(ctx context.Context) error {
	s.removers = append(s.removers,
		s.session.AddHandler(s.onMessageCreate),
		s.session.AddHandler(s.onInteractionCreate),
	)
	if err := s.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	slog.Debug("DiscordService started")
	return nil
}

// Stop removes the handlers, closes the gateway and the inbound channel.
func (s *DiscordService) Stop() error {
	for _, remove := range s.removers {
		remove()
	}
	s.removers = nil

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.inbound)
	if err := s.session.Close(); err != nil {
		return fmt.Errorf("failed to close discord session: %w", err)
	}
	slog.Info("DiscordService stopped")
	return nil
}

// SendResponse posts the reply to the channel with its buttons as components.
func (s *DiscordService) SendResponse(ctx context.Context, to string, resp models.BotResponse) error {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		return ErrServiceStopped
	}

	msg := &discordgo.MessageSend{
		Content:    DiscordMarkdown(resp.Text),
		Components: discordComponents(resp.Buttons),
	}
	if _, err := s.session.ChannelMessageSendComplex(to, msg, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to send discord message to channel %s: %w", to, err)
	}
	return nil
}

// Inbound returns the channel of incoming messages.
func (s *DiscordService) Inbound() <-chan Inbound {
	return s.inbound
}

func discordComponents(buttons []string) []discordgo.MessageComponent {
	var rows []discordgo.MessageComponent
	for start := 0; start < len(buttons); start += discordMaxButtonsPerRow {
		end := min(start+discordMaxButtonsPerRow, len(buttons))
		row := discordgo.ActionsRow{}
		for _, label := range buttons[start:end] {
			row.Components = append(row.Components, discordgo.Button{
				Label:    label,
				Style:    discordgo.PrimaryButton,
				CustomID: label,
			})
		}
		rows = append(rows, row)
	}
	return rows
}

func discordUser(id string) (int64, bool) {
	userID, err := strconv.ParseInt(id, 10, 64)
	return userID, err == nil
}

func (s *DiscordService) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Message == nil || m.Author == nil || m.Author.Bot || m.Content == "" {
		return
	}
	userID, ok := discordUser(m.Author.ID)
	if !ok {
		return
	}
	emit(&s.mu, &s.stopped, s.inbound, Inbound{
		Platform:    PlatformDiscord,
		MessageID:   m.ID,
		UserID:      userID,
		ReplyTo:     m.ChannelID,
		Text:        m.Content,
		DisplayName: m.Author.Username,
		Time:        m.Timestamp.Unix(),
	})
}

func (s *DiscordService) onInteractionCreate(_ *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Interaction == nil || i.Type != discordgo.InteractionMessageComponent {
		return
	}

	// Acknowledge the press; the reply is sent as a new message.
	err := s.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	})
	if err != nil {
		slog.Warn("DiscordService failed to acknowledge interaction", "error", err)
	}

	user := i.User
	if i.Member != nil && i.Member.User != nil {
		user = i.Member.User
	}
	if user == nil {
		return
	}
	userID, ok := discordUser(user.ID)
	if !ok {
		return
	}
	emit(&s.mu, &s.stopped, s.inbound, Inbound{
		Platform:    PlatformDiscord,
		MessageID:   "interaction:" + i.ID,
		UserID:      userID,
		ReplyTo:     i.ChannelID,
		Text:        i.MessageComponentData().CustomID,
		DisplayName: user.Username,
	})
}
