package messaging

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// DefaultButtonTTL is the default lifetime of a remembered button set. It
// equals store.DefaultSessionTTL.
const DefaultButtonTTL = time.Hour

type shownButtons struct {
	labels  []string
	expires time.Time
}

// ButtonMemory remembers the last button set shown to each user on a
// text-only platform so that a numeric reply can be mapped back to its label.
// Entries expire after the configured TTL.
type ButtonMemory struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	labels map[string]shownButtons
}

// NewButtonMemory creates an empty ButtonMemory. Non-positive ttl selects
// DefaultButtonTTL.
func NewButtonMemory(ttl time.Duration) *ButtonMemory {
	if ttl <= 0 {
		ttl = DefaultButtonTTL
	}
	return &ButtonMemory{ttl: ttl, now: time.Now, labels: make(map[string]shownButtons)}
}

// Remember records the buttons shown to key. An empty set forgets the key.
func (m *ButtonMemory) Remember(key string, buttons []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(buttons) == 0 {
		delete(m.labels, key)
		return
	}
	m.labels[key] = shownButtons{
		labels:  append([]string(nil), buttons...),
		expires: m.now().Add(m.ttl),
	}
}

// Resolve returns the label selected by a numeric reply, or text unchanged
// when it is not a valid option number or the remembered set has expired.
func (m *ButtonMemory) Resolve(key, text string) string {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return text
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	shown, ok := m.labels[key]
	if !ok {
		return text
	}
	if !m.now().Before(shown.expires) {
		delete(m.labels, key)
		return text
	}
	if n < 1 || n > len(shown.labels) {
		return text
	}
	return shown.labels[n-1]
}

// Len returns the number of remembered button sets, expired ones included.
func (m *ButtonMemory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.labels)
}

// PurgeExpired drops expired button sets and returns how many were removed.
func (m *ButtonMemory) PurgeExpired(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	var n int64
	for key, shown := range m.labels {
		if !now.Before(shown.expires) {
			delete(m.labels, key)
			n++
		}
	}
	return n, nil
}

// Platform limits on button payloads. Telegram counts callback data in bytes;
// Discord counts custom ids and labels in characters.
const (
	MaxTelegramCallbackBytes = 64
	MaxDiscordCustomIDChars  = 100
	MaxDiscordLabelChars     = 80
)

// ValidateButtonLabels reports labels too long to serve as a button payload
// on platform p. Text-only platforms accept any label.
func ValidateButtonLabels(p Platform, labels []string) error {
	var errs []error
	for _, label := range labels {
		switch p {
		case PlatformTelegram:
			if len(label) > MaxTelegramCallbackBytes {
				errs = append(errs, fmt.Errorf("button label %q is %d bytes; telegram allows %d",
					label, len(label), MaxTelegramCallbackBytes))
			}
		case PlatformDiscord:
			limit := min(MaxDiscordCustomIDChars, MaxDiscordLabelChars)
			if n := utf8.RuneCountInString(label); n > limit {
				errs = append(errs, fmt.Errorf("button label %q is %d characters; discord allows %d",
					label, n, limit))
			}
		}
	}
	return errors.Join(errs...)
}

// RenderNumbered appends the buttons to text as a numbered option list.
func RenderNumbered(text string, buttons []string) string {
	if len(buttons) == 0 {
		return text
	}
	var b strings.Builder
	b.WriteString(text)
	b.WriteString("\n")
	for i, label := range buttons {
		fmt.Fprintf(&b, "\n%d. %s", i+1, label)
	}
	return b.String()
}
