package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/FolioPipe/internal/models"
)

type fakeTelegram struct {
	updates chan tgbotapi.Update
	sendErr error

	mu        sync.Mutex
	sent      []tgbotapi.Chattable
	requests  []tgbotapi.Chattable
	stopCalls int
}

func newFakeTelegram() *fakeTelegram {
	return &fakeTelegram{updates: make(chan tgbotapi.Update, 8)}
}

func (f *fakeTelegram) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeTelegram) StopReceivingUpdates() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
}

func (f *fakeTelegram) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.sendErr != nil {
		return tgbotapi.Message{}, f.sendErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeTelegram) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeTelegram) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func TestTelegramService_ImplementsService(t *testing.T) {
	var _ Service = (*TelegramService)(nil)
}

func textUpdate(text string) tgbotapi.Update {
	return tgbotapi.Update{
		UpdateID: 1001,
		Message: &tgbotapi.Message{
			MessageID: 7,
			From:      &tgbotapi.User{ID: 123456, FirstName: "Ana", LastName: "López"},
			Chat:      &tgbotapi.Chat{ID: 123456},
			Date:      1760000000,
			Text:      text,
		},
	}
}

func TestInboundFromUpdate(t *testing.T) {
	in, ok := inboundFromUpdate(textUpdate("hola"))
	require.True(t, ok)
	assert.Equal(t, Inbound{
		Platform:    PlatformTelegram,
		MessageID:   "1001",
		UserID:      123456,
		ReplyTo:     "123456",
		Text:        "hola",
		DisplayName: "Ana López",
		Time:        1760000000,
	}, in)

	cb := tgbotapi.Update{
		UpdateID: 1002,
		CallbackQuery: &tgbotapi.CallbackQuery{
			ID:      "cbq-1",
			From:    &tgbotapi.User{ID: 123456, FirstName: "Ana"},
			Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: -100200}, Date: 1760000001},
			Data:    "Consultar Folio",
		},
	}
	in, ok = inboundFromUpdate(cb)
	require.True(t, ok)
	assert.Equal(t, "cb:cbq-1", in.MessageID)
	assert.Equal(t, "Consultar Folio", in.Text)
	assert.Equal(t, "-100200", in.ReplyTo)
	assert.Equal(t, int64(123456), in.UserID)
}

func TestInboundFromUpdateIgnored(t *testing.T) {
	sticker := textUpdate("")
	noSender := textUpdate("hola")
	noSender.Message.From = nil

	for _, u := range []tgbotapi.Update{{UpdateID: 5}, sticker, noSender} {
		_, ok := inboundFromUpdate(u)
		assert.False(t, ok)
	}
}

func TestTelegramService_SendResponse(t *testing.T) {
	bot := newFakeTelegram()
	svc := NewTelegramService(bot)

	resp := models.BotResponse{Text: "**Hola** <tú>", Buttons: []string{"Consultar Folio", "Soporte"}}
	require.NoError(t, svc.SendResponse(context.Background(), "123456", resp))

	require.Len(t, bot.sent, 1)
	msg, ok := bot.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, int64(123456), msg.ChatID)
	assert.Equal(t, "<b>Hola</b> &lt;tú&gt;", msg.Text)
	assert.Equal(t, tgbotapi.ModeHTML, msg.ParseMode)

	kb, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, kb.InlineKeyboard, 2)
	assert.Equal(t, "Soporte", kb.InlineKeyboard[1][0].Text)
	require.NotNil(t, kb.InlineKeyboard[1][0].CallbackData)
	assert.Equal(t, "Soporte", *kb.InlineKeyboard[1][0].CallbackData)
}

func TestTelegramService_SendResponseErrors(t *testing.T) {
	bot := newFakeTelegram()
	svc := NewTelegramService(bot)

	assert.Error(t, svc.SendResponse(context.Background(), "not-a-chat", models.BotResponse{Text: "x"}))

	bot.sendErr = errors.New("429 too many requests")
	err := svc.SendResponse(context.Background(), "1", models.BotResponse{Text: "x"})
	assert.ErrorIs(t, err, bot.sendErr)
}

func TestTelegramService_UpdateLoop(t *testing.T) {
	bot := newFakeTelegram()
	svc := NewTelegramService(bot)
	require.NoError(t, svc.Start(context.Background()))

	bot.updates <- tgbotapi.Update{
		UpdateID: 1,
		CallbackQuery: &tgbotapi.CallbackQuery{
			ID:      "cbq-9",
			From:    &tgbotapi.User{ID: 9},
			Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 9}},
			Data:    "Soporte",
		},
	}

	in := <-svc.Inbound()
	assert.Equal(t, "Soporte", in.Text)
	assert.Equal(t, 1, bot.requestCount(), "callback must be answered")

	require.NoError(t, svc.Stop())
	_, ok := <-svc.Inbound()
	assert.False(t, ok)
	assert.Equal(t, 1, bot.stopCalls)
	assert.ErrorIs(t, svc.SendResponse(context.Background(), "9", models.BotResponse{}), ErrServiceStopped)
}
