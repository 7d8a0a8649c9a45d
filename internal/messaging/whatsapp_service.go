package messaging

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/BTreeMap/FolioPipe/internal/models"
	"github.com/BTreeMap/FolioPipe/internal/whatsapp"
	"go.mau.fi/whatsmeow/types/events"
)

// WhatsAppService implements Service using the Whatsmeow-based whatsapp client.
type WhatsAppService struct {
	client   whatsapp.WhatsAppSender
	waClient *whatsapp.Client // Access to underlying client for event handling
	inbound  chan Inbound

	mu      sync.RWMutex
	stopped bool
	handler uint32
}

// NewWhatsAppService creates a new WhatsAppService wrapping the given WhatsAppSender.
func NewWhatsAppService(client whatsapp.WhatsAppSender) *WhatsAppService {
	service := &WhatsAppService{
		client:  client,
		inbound: make(chan Inbound, DefaultChannelBufferSize),
	}

	// If the client is a full Client (not just an interface), store it for event handling
	if waClient, ok := client.(*whatsapp.Client); ok {
		service.waClient = waClient
		slog.Debug("WhatsAppService created with full client for event handling")
	} else {
		slog.Debug("WhatsAppService created with interface client (likely mock)")
	}

	return service
}

func (s *WhatsAppService) Platform() Platform { return PlatformWhatsApp }

func (s *WhatsAppService) NativeButtons() bool { return false }

// Start registers the whatsmeow event handler.
func (s *WhatsAppService) Start(ctx context.Context) error {
	slog.Debug("WhatsAppService Start invoked")

	if s.waClient == nil || s.waClient.GetClient() == nil {
		slog.Debug("WhatsAppService no full client available, skipping event handling (likely mock)")
		return nil
	}

	s.handler = s.waClient.GetClient().AddEventHandler(func(evt interface{}) {
		switch v := evt.(type) {
		case *events.Message:
			s.handleIncomingMessage(v)
		case *events.Connected:
			slog.Info("WhatsAppService connected")
		case *events.Disconnected:
			slog.Warn("WhatsAppService disconnected")
		}
	})
	slog.Debug("WhatsAppService event handler registered")
	return nil
}

// Stop unregisters the event handler and closes the inbound channel.
func (s *WhatsAppService) Stop() error {
	// Handlers run under whatsmeow's handler lock; remove ours before taking s.mu.
	if s.waClient != nil && s.waClient.GetClient() != nil {
		s.waClient.GetClient().RemoveEventHandler(s.handler)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.inbound)
	slog.Info("WhatsAppService stopped and channels closed")
	return nil
}

// SendResponse sends the reply as WhatsApp-formatted text with a numbered option list.
func (s *WhatsAppService) SendResponse(ctx context.Context, to string, resp models.BotResponse) error {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		return ErrServiceStopped
	}

	body := RenderNumbered(WhatsAppText(resp.Text), resp.Buttons)
	slog.Debug("WhatsAppService SendResponse invoked", "to", to, "body_length", len(body))
	if err := s.client.SendMessage(ctx, to, body); err != nil {
		slog.Error("WhatsAppService SendResponse error", "error", err, "to", to)
		return err
	}
	return nil
}

// Inbound returns the channel of incoming messages.
func (s *WhatsAppService) Inbound() <-chan Inbound {
	return s.inbound
}

// inboundFromEvent converts a whatsmeow message event. Group chats, own
// messages and non-text messages are ignored.
func inboundFromEvent(evt *events.Message) (Inbound, bool) {
	if evt.Message == nil || evt.Info.IsFromMe || evt.Info.IsGroup {
		return Inbound{}, false
	}

	var text string
	if evt.Message.Conversation != nil {
		text = *evt.Message.Conversation
	} else if evt.Message.ExtendedTextMessage != nil && evt.Message.ExtendedTextMessage.Text != nil {
		text = *evt.Message.ExtendedTextMessage.Text
	} else {
		slog.Debug("WhatsAppService ignoring non-text message", "from", evt.Info.Sender.String())
		return Inbound{}, false
	}

	userID, err := strconv.ParseInt(evt.Info.Sender.User, 10, 64)
	if err != nil {
		slog.Warn("WhatsAppService ignoring message from non-numeric sender", "from", evt.Info.Sender.String())
		return Inbound{}, false
	}

	return Inbound{
		Platform:    PlatformWhatsApp,
		MessageID:   string(evt.Info.ID),
		UserID:      userID,
		ReplyTo:     evt.Info.Chat.ToNonAD().String(),
		Text:        text,
		DisplayName: evt.Info.PushName,
		Time:        evt.Info.Timestamp.Unix(),
	}, true
}

// handleIncomingMessage forwards text messages to the inbound channel.
func (s *WhatsAppService) handleIncomingMessage(evt *events.Message) {
	in, ok := inboundFromEvent(evt)
	if !ok {
		return
	}
	emit(&s.mu, &s.stopped, s.inbound, in)
}

// emit pushes in onto ch unless the service is stopped, dropping it when the
// channel stays full for DefaultChannelTimeout.
func emit(mu *sync.RWMutex, stopped *bool, ch chan<- Inbound, in Inbound) {
	mu.RLock()
	defer mu.RUnlock()
	if *stopped {
		slog.Warn("Dropping inbound message (service stopped)", "platform", in.Platform, "userID", in.UserID)
		return
	}

	select {
	case ch <- in:
		slog.Debug("Inbound message forwarded", "platform", in.Platform, "userID", in.UserID)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("Inbound channel blocked, dropping message", "platform", in.Platform, "userID", in.UserID, "timeout", DefaultChannelTimeout)
	}
}
