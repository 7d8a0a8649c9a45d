// Package messaging connects chat platforms to the conversation engine.
//
// Each platform is wrapped in a Service that turns platform events into
// Inbound envelopes and renders models.BotResponse values back into the
// platform's own markup and button primitives. The Dispatcher consumes the
// envelopes of every registered service and runs the engine for each turn.
package messaging

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/BTreeMap/FolioPipe/internal/models"
)

// Constants for service channel configuration
const (
	// DefaultChannelBufferSize defines the default buffer size for inbound channels
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout defines the default timeout for non-blocking channel operations
	DefaultChannelTimeout = 1 * time.Second
)

// ErrServiceStopped is returned when sending through a service after Stop.
var ErrServiceStopped = errors.New("messaging service stopped")

// Platform names a chat transport.
type Platform string

const (
	PlatformWhatsApp Platform = "whatsapp"
	PlatformTwilio   Platform = "twilio"
	PlatformTelegram Platform = "telegram"
	PlatformDiscord  Platform = "discord"
	PlatformConsole  Platform = "console"
)

// Inbound is one user message received from a platform.
type Inbound struct {
	Platform    Platform
	MessageID   string // platform message id, used for deduplication
	UserID      int64  // session key
	ReplyTo     string // platform address the reply is sent to
	Text        string
	DisplayName string
	Time        int64
}

// Message converts the envelope into the engine's input.
func (in Inbound) Message() models.InboundMessage {
	return models.InboundMessage{UserID: in.UserID, Text: in.Text, DisplayName: in.DisplayName}
}

// conversationKey identifies a user on a platform.
func (in Inbound) conversationKey() string {
	return string(in.Platform) + ":" + strconv.FormatInt(in.UserID, 10)
}

// dedupKey identifies a platform message. Message ids are only unique per platform.
func (in Inbound) dedupKey() string {
	return string(in.Platform) + ":" + in.MessageID
}

// Service defines a pluggable chat transport.
type Service interface {
	// Platform returns the transport name.
	Platform() Platform

	// NativeButtons reports whether the platform renders buttons itself.
	// Services without native buttons render them as a numbered list and the
	// dispatcher maps numeric replies back to labels.
	NativeButtons() bool

	// SendResponse delivers a reply to the given platform address.
	SendResponse(ctx context.Context, to string, resp models.BotResponse) error

	// Start begins any background processing (e.g., polling for events).
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error

	// Inbound returns the channel of incoming user messages.
	Inbound() <-chan Inbound
}
