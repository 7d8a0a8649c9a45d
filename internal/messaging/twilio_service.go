package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/BTreeMap/FolioPipe/internal/models"
	"github.com/BTreeMap/FolioPipe/internal/twiliowhatsapp"
	"github.com/twilio/twilio-go/client"
)

// TwilioSignatureHeader carries the request signature computed by Twilio.
const TwilioSignatureHeader = "X-Twilio-Signature"

var phoneNumberRegex = regexp.MustCompile(`\D`)

// TwilioOption configures a TwilioService.
type TwilioOption func(*TwilioService)

// WithSignatureValidation rejects webhook requests whose X-Twilio-Signature
// does not match authToken. webhookURL must be the public URL configured in
// Twilio, since the signature covers it.
func WithSignatureValidation(authToken, webhookURL string) TwilioOption {
	return func(s *TwilioService) {
		v := client.NewRequestValidator(authToken)
		s.validator = &v
		s.webhookURL = webhookURL
	}
}

// TwilioService implements Service on top of Twilio's WhatsApp API. Inbound
// messages arrive through WebhookHandler.
type TwilioService struct {
	client     twiliowhatsapp.TwilioWhatsAppSender // Could be real Twilio client or MockClient
	validator  *client.RequestValidator
	webhookURL string
	inbound    chan Inbound
	mu         sync.RWMutex
	stopped    bool
}

// NewTwilioService creates a new TwilioService.
func NewTwilioService(sender twiliowhatsapp.TwilioWhatsAppSender, opts ...TwilioOption) *TwilioService {
	s := &TwilioService{
		client:  sender,
		inbound: make(chan Inbound, DefaultChannelBufferSize),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *TwilioService) Platform() Platform { return PlatformTwilio }

func (s *TwilioService) NativeButtons() bool { return false }

// ValidateAndCanonicalizeRecipient validates and canonicalizes a WhatsApp phone number.
// It removes all non-numeric characters and validates the result has at least 6 digits.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}

	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(canonical) < 6 {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum 6 digits required)", canonical)
	}
	if canonical != recipient {
		slog.Debug("TwilioService canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}

// Start is a no-op for Twilio; messages arrive through the webhook.
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

// Stop closes the inbound channel.
func (s *TwilioService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.inbound)
	return nil
}

// SendResponse sends the reply as WhatsApp-formatted text with a numbered option list.
func (s *TwilioService) SendResponse(ctx context.Context, to string, resp models.BotResponse) error {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		return ErrServiceStopped
	}

	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService SendResponse validation error", "error", err, "to", to)
		return err
	}

	body := RenderNumbered(WhatsAppText(resp.Text), resp.Buttons)
	return s.client.SendMessage(ctx, "+"+canonicalTo, body)
}

// Inbound returns the channel of incoming messages.
func (s *TwilioService) Inbound() <-chan Inbound {
	return s.inbound
}

// WebhookHandler handles inbound Twilio webhook requests and emits them on
// the Inbound channel. It answers with an empty TwiML document; replies are
// sent asynchronously through the REST API.
func (s *TwilioService) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		slog.Error("Failed to parse Twilio webhook form", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	if s.validator != nil {
		params := make(map[string]string, len(r.PostForm))
		for k := range r.PostForm {
			params[k] = r.PostForm.Get(k)
		}
		if !s.validator.Validate(s.webhookURL, params, r.Header.Get(TwilioSignatureHeader)) {
			slog.Warn("Twilio webhook signature mismatch", "remote", r.RemoteAddr)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
	}

	from := r.PostForm.Get("From")
	body := r.PostForm.Get("Body")
	if from == "" || body == "" {
		slog.Warn("Twilio webhook missing fields", "from_set", from != "", "body_set", body != "")
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	digits, err := s.ValidateAndCanonicalizeRecipient(from)
	if err != nil {
		http.Error(w, "Invalid sender", http.StatusBadRequest)
		return
	}
	userID, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		http.Error(w, "Invalid sender", http.StatusBadRequest)
		return
	}

	emit(&s.mu, &s.stopped, s.inbound, Inbound{
		Platform:    PlatformTwilio,
		MessageID:   r.PostForm.Get("MessageSid"),
		UserID:      userID,
		ReplyTo:     digits,
		Text:        body,
		DisplayName: r.PostForm.Get("ProfileName"),
		Time:        time.Now().Unix(),
	})

	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`)
}
