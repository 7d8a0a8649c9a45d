package messaging

import (
	"context"
	"errors"
	"sync"

	"github.com/BTreeMap/FolioPipe/internal/models"
)

// sentResponse is a reply captured by fakeService.
type sentResponse struct {
	To   string
	Resp models.BotResponse
}

// fakeService is an in-memory Service.
type fakeService struct {
	platform Platform
	native   bool
	inbound  chan Inbound
	sendErr  error

	mu   sync.Mutex
	sent []sentResponse
}

func newFakeService(platform Platform, native bool) *fakeService {
	return &fakeService{platform: platform, native: native, inbound: make(chan Inbound, 16)}
}

func (f *fakeService) Platform() Platform { return f.platform }
func (f *fakeService) NativeButtons() bool { return f.native }
func (f *fakeService) Start(ctx context.Context) error { return nil }
func (f *fakeService) Stop() error {
	close(f.inbound)
	return nil
}

func (f *fakeService) Inbound() <-chan Inbound { return f.inbound }

func (f *fakeService) SendResponse(_ context.Context, to string, resp models.BotResponse) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentResponse{To: to, Resp: resp})
	return nil
}

func (f *fakeService) replies() []sentResponse {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentResponse(nil), f.sent...)
}

// fakeTurns records the messages it receives and answers with resp.
type fakeTurns struct {
	resp models.BotResponse

	mu   sync.Mutex
	seen []models.InboundMessage
}

func (f *fakeTurns) HandleTurn(_ context.Context, msg models.InboundMessage) models.BotResponse {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, msg)
	return f.resp
}

func (f *fakeTurns) messages() []models.InboundMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.InboundMessage(nil), f.seen...)
}

// failingDedup fails every call.
type failingDedup struct{}

var errDedup = errors.New("dedup unavailable")

func (failingDedup) IsDuplicate(context.Context, string) (bool, error) { return false, errDedup }
func (failingDedup) RecordInbound(context.Context, string, int64) (bool, error) {
	return false, errDedup
}
func (failingDedup) MarkProcessed(context.Context, string) error { return errDedup }
