package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/FolioPipe/internal/folio"
	"github.com/BTreeMap/FolioPipe/internal/models"
	"github.com/BTreeMap/FolioPipe/internal/views"
)

// DefaultCallTimeout bounds each session store and repository call.
const DefaultCallTimeout = 5 * time.Second

// Opts holds configuration options for the Engine.
type Opts struct {
	CallTimeout time.Duration
}

// Option defines a configuration option for the Engine.
type Option func(*Opts)

// WithCallTimeout sets the timeout applied to each collaborator call.
func WithCallTimeout(d time.Duration) Option {
	return func(o *Opts) {
		o.CallTimeout = d
	}
}

// turnResult is what a state handler decides: the reply and the next state.
type turnResult struct {
	response models.BotResponse
	next     models.ConversationState
}

type stateHandler func(ctx context.Context, msg models.InboundMessage, session models.Session) (turnResult, error)

// Engine is the conversation state machine. It holds no per-user state;
// concurrent turns for different users are independent.
type Engine struct {
	sessions *SessionManager
	repo     ServiceRepository
	views    *views.Renderer
	vocab    views.Vocabulary
	timeout  time.Duration
	handlers map[models.ConversationState]stateHandler
}

// NewEngine creates an Engine over the given collaborators.
func NewEngine(sessions SessionStore, repo ServiceRepository, renderer *views.Renderer, opts ...Option) *Engine {
	cfg := Opts{CallTimeout: DefaultCallTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}

	e := &Engine{
		sessions: NewSessionManager(sessions, cfg.CallTimeout),
		repo:     repo,
		views:    renderer,
		vocab:    renderer.Vocabulary(),
		timeout:  cfg.CallTimeout,
	}
	e.handlers = map[models.ConversationState]stateHandler{
		models.StateStart:           e.handleStart,
		models.StateMainMenu:        e.handleMainMenu,
		models.StateWaitingForFolio: e.handleWaitingForFolio,
	}
	slog.Debug("Engine created", "callTimeout", cfg.CallTimeout)
	return e
}

// Renderer returns the view renderer used by the engine.
func (e *Engine) Renderer() *views.Renderer {
	return e.views
}

// HandleTurn processes one inbound message and returns the reply. It never
// fails: collaborator errors, timeouts and panics become the generic error view.
func (e *Engine) HandleTurn(ctx context.Context, msg models.InboundMessage) (resp models.BotResponse) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Engine HandleTurn panic", "panic", r, "userID", msg.UserID)
			resp = e.views.GenericError()
		}
	}()

	resp, err := e.handleTurn(ctx, msg)
	if err != nil {
		slog.Error("Engine HandleTurn failed", "error", err, "userID", msg.UserID)
		return e.views.GenericError()
	}
	return resp
}

func (e *Engine) handleTurn(ctx context.Context, msg models.InboundMessage) (models.BotResponse, error) {
	reset := e.vocab.IsReset(msg.Text)

	session, err := e.sessions.Load(ctx, msg.UserID)
	if err != nil {
		return models.BotResponse{}, err
	}

	var result turnResult
	if reset {
		slog.Debug("Engine reset", "userID", msg.UserID, "from", session.State)
		result = turnResult{response: e.views.Welcome(), next: models.StateMainMenu}
	} else {
		handler, ok := e.handlers[session.State]
		if !ok {
			// Reserved and unknown states take the start path.
			handler = e.handleStart
		}
		result, err = handler(ctx, msg, session)
		if err != nil {
			return models.BotResponse{}, err
		}
	}

	if result.next != session.State {
		if err := e.sessions.Save(ctx, msg.UserID, session.WithState(result.next)); err != nil {
			return models.BotResponse{}, err
		}
	}
	slog.Debug("Engine turn complete", "userID", msg.UserID, "from", session.State, "to", result.next)
	return result.response, nil
}

func (e *Engine) handleStart(_ context.Context, _ models.InboundMessage, _ models.Session) (turnResult, error) {
	return turnResult{response: e.views.Welcome(), next: models.StateMainMenu}, nil
}

func (e *Engine) handleMainMenu(_ context.Context, msg models.InboundMessage, _ models.Session) (turnResult, error) {
	switch e.vocab.Command(msg.Text) {
	case views.CommandConsult:
		return turnResult{response: e.views.RequestFolio(), next: models.StateWaitingForFolio}, nil
	case views.CommandSupport:
		return turnResult{response: e.views.SupportContact(), next: models.StateMainMenu}, nil
	case views.CommandAI:
		return turnResult{response: e.views.AIUnderConstruction(), next: models.StateMainMenu}, nil
	default:
		return turnResult{response: e.views.InvalidOption(), next: models.StateMainMenu}, nil
	}
}

func (e *Engine) handleWaitingForFolio(ctx context.Context, msg models.InboundMessage, _ models.Session) (turnResult, error) {
	f, ok := folio.Extract(msg.Text)
	if !ok {
		return turnResult{
			response: e.views.InvalidFolio(strings.TrimSpace(msg.Text)),
			next:     models.StateWaitingForFolio,
		}, nil
	}

	rec, err := e.findByFolio(ctx, f)
	if err != nil {
		return turnResult{}, err
	}
	if rec == nil {
		return turnResult{
			response: e.views.FolioNotFound(strings.TrimSpace(msg.Text)),
			next:     models.StateWaitingForFolio,
		}, nil
	}
	return turnResult{response: e.views.ServiceDetails(*rec), next: models.StateMainMenu}, nil
}

func (e *Engine) findByFolio(ctx context.Context, f string) (*models.ServiceRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	rec, err := e.repo.FindByFolio(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to look up folio %s: %w", f, err)
	}
	if rec == nil {
		slog.Debug("Engine folio not found", "folio", f)
	}
	return rec, nil
}
