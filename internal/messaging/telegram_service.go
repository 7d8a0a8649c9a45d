package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/BTreeMap/FolioPipe/internal/models"
)

// telegramAPI is the subset of *tgbotapi.BotAPI used by TelegramService.
type telegramAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// DefaultTelegramPollTimeout is the long-polling timeout in seconds.
const DefaultTelegramPollTimeout = 60

// TelegramService implements Service with the Telegram Bot API. Buttons are
// inline keyboards whose callback data is the button label.
type TelegramService struct {
	bot     telegramAPI
	inbound chan Inbound
	done    chan struct{}

	mu      sync.RWMutex
	stopped bool
}

// NewTelegramBot connects to the Bot API with token.
func NewTelegramBot(token string) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	slog.Info("Telegram bot authorized", "username", bot.Self.UserName)
	return bot, nil
}

// NewTelegramService creates a TelegramService over bot.
func NewTelegramService(bot telegramAPI) *TelegramService {
	return &TelegramService{
		bot:     bot,
		inbound: make(chan Inbound, DefaultChannelBufferSize),
		done:    make(chan struct{}),
	}
}

func (s *TelegramService) Platform() Platform { return PlatformTelegram }

func (s *TelegramService) NativeButtons() bool { return true }

// Start begins long polling for updates.
func (s *TelegramService) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = DefaultTelegramPollTimeout
	updates := s.bot.GetUpdatesChan(u)

	go func() {
		defer slog.Debug("TelegramService update loop stopped")
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				s.handleUpdate(update)
			case <-s.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	slog.Debug("TelegramService started")
	return nil
}

// Stop stops polling and closes the inbound channel.
func (s *TelegramService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.done)
	s.bot.StopReceivingUpdates()
	close(s.inbound)
	slog.Info("TelegramService stopped")
	return nil
}

// SendResponse sends the reply in HTML parse mode with an inline keyboard,
// one button per row.
func (s *TelegramService) SendResponse(ctx context.Context, to string, resp models.BotResponse) error {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		return ErrServiceStopped
	}

	chatID, err := strconv.ParseInt(to, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q: %w", to, err)
	}

	msg := tgbotapi.NewMessage(chatID, TelegramHTML(resp.Text))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if resp.HasButtons() {
		msg.ReplyMarkup = telegramKeyboard(resp.Buttons)
	}

	if _, err := s.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram message to %d: %w", chatID, err)
	}
	return nil
}

// Inbound returns the channel of incoming messages.
func (s *TelegramService) Inbound() <-chan Inbound {
	return s.inbound
}

func telegramKeyboard(buttons []string) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, label := range buttons {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(label, label)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// inboundFromUpdate converts a text message or a button press.
func inboundFromUpdate(update tgbotapi.Update) (Inbound, bool) {
	switch {
	case update.CallbackQuery != nil:
		cb := update.CallbackQuery
		if cb.From == nil || cb.Message == nil || cb.Message.Chat == nil {
			return Inbound{}, false
		}
		return Inbound{
			Platform:    PlatformTelegram,
			MessageID:   "cb:" + cb.ID,
			UserID:      cb.From.ID,
			ReplyTo:     strconv.FormatInt(cb.Message.Chat.ID, 10),
			Text:        cb.Data,
			DisplayName: telegramName(cb.From),
			Time:        int64(cb.Message.Date),
		}, true
	case update.Message != nil:
		m := update.Message
		if m.From == nil || m.Chat == nil || m.Text == "" {
			return Inbound{}, false
		}
		return Inbound{
			Platform:    PlatformTelegram,
			MessageID:   strconv.Itoa(update.UpdateID),
			UserID:      m.From.ID,
			ReplyTo:     strconv.FormatInt(m.Chat.ID, 10),
			Text:        m.Text,
			DisplayName: telegramName(m.From),
			Time:        int64(m.Date),
		}, true
	default:
		return Inbound{}, false
	}
}

func telegramName(u *tgbotapi.User) string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func (s *TelegramService) handleUpdate(update tgbotapi.Update) {
	if update.CallbackQuery != nil {
		// Stops the client's loading indicator on the pressed button.
		if _, err := s.bot.Request(tgbotapi.NewCallback(update.CallbackQuery.ID, "")); err != nil {
			slog.Warn("TelegramService failed to answer callback", "error", err)
		}
	}

	in, ok := inboundFromUpdate(update)
	if !ok {
		slog.Debug("TelegramService ignoring update", "updateID", update.UpdateID)
		return
	}
	emit(&s.mu, &s.stopped, s.inbound, in)
}
