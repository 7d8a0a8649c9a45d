package messaging

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/FolioPipe/internal/models"
)

// ConsoleReplyTimeout bounds how long the console waits for a reply before
// reading the next line.
const ConsoleReplyTimeout = 30 * time.Second

// ConsoleService is a terminal transport for local testing. It reads one
// message per line from in and writes plain-text replies to out. The inbound
// channel closes at end of input.
type ConsoleService struct {
	userID  int64
	name    string
	in      io.Reader
	out     io.Writer
	inbound chan Inbound
	replied chan struct{}

	mu      sync.RWMutex
	stopped bool
	outMu   sync.Mutex
}

// NewConsoleService creates a console transport speaking as userID.
func NewConsoleService(in io.Reader, out io.Writer, userID int64, displayName string) *ConsoleService {
	return &ConsoleService{
		userID:  userID,
		name:    displayName,
		in:      in,
		out:     out,
		inbound: make(chan Inbound, DefaultChannelBufferSize),
		replied: make(chan struct{}, 1),
	}
}

func (s *ConsoleService) Platform() Platform { return PlatformConsole }

func (s *ConsoleService) NativeButtons() bool { return false }

// Start reads lines in the background. After each line it waits for the
// reply so output and input stay in step.
func (s *ConsoleService) Start(ctx context.Context) error {
	go func() {
		defer s.closeInbound()
		scanner := bufio.NewScanner(s.in)
		seq := 0
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			seq++
			emit(&s.mu, &s.stopped, s.inbound, Inbound{
				Platform:    PlatformConsole,
				MessageID:   strconv.Itoa(seq),
				UserID:      s.userID,
				ReplyTo:     "console",
				Text:        line,
				DisplayName: s.name,
				Time:        time.Now().Unix(),
			})

			select {
			case <-s.replied:
			case <-time.After(ConsoleReplyTimeout):
				slog.Warn("ConsoleService reply timed out")
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			slog.Error("ConsoleService read failed", "error", err)
		}
	}()
	return nil
}

func (s *ConsoleService) closeInbound() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped {
		s.stopped = true
		close(s.inbound)
	}
}

// Stop closes the inbound channel.
func (s *ConsoleService) Stop() error {
	s.closeInbound()
	return nil
}

// SendResponse writes the reply as plain text with a numbered option list.
func (s *ConsoleService) SendResponse(ctx context.Context, to string, resp models.BotResponse) error {
	s.outMu.Lock()
	_, err := fmt.Fprintf(s.out, "%s\n\n", RenderNumbered(PlainText(resp.Text), resp.Buttons))
	s.outMu.Unlock()

	select {
	case s.replied <- struct{}{}:
	default:
	}
	if err != nil {
		return fmt.Errorf("failed to write console reply: %w", err)
	}
	return nil
}

// Inbound returns the channel of lines read from the console.
func (s *ConsoleService) Inbound() <-chan Inbound {
	return s.inbound
}
