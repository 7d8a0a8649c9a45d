package flow

import (
	"context"
	"errors"
	"sync"

	"github.com/BTreeMap/FolioPipe/internal/models"
	"github.com/BTreeMap/FolioPipe/internal/views"
)

var errBackend = errors.New("backend unavailable")

// fakeSessions is an in-memory SessionStore that can be told to fail.
type fakeSessions struct {
	mu       sync.Mutex
	data     map[int64]models.Session
	getErr   error
	saveErr  error
	saves    int
	panicGet bool
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{data: make(map[int64]models.Session)}
}

func (f *fakeSessions) GetSession(_ context.Context, userID int64) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicGet {
		panic("session store exploded")
	}
	if f.getErr != nil {
		return nil, f.getErr
	}
	s, ok := f.data[userID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (f *fakeSessions) SaveSession(_ context.Context, userID int64, s models.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saves++
	f.data[userID] = s
	return nil
}

func (f *fakeSessions) set(userID int64, state models.ConversationState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[userID] = models.Session{State: state, Metadata: map[string]any{}}
}

func (f *fakeSessions) state(userID int64) (models.ConversationState, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.data[userID]
	return s.State, ok
}

// fakeRepo is an in-memory ServiceRepository.
type fakeRepo struct {
	records map[string]models.ServiceRecord
	err     error
	block   bool
	lookups []string
}

func (r *fakeRepo) FindByFolio(ctx context.Context, folio string) (*models.ServiceRecord, error) {
	r.lookups = append(r.lookups, folio)
	if r.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if r.err != nil {
		return nil, r.err
	}
	rec, ok := r.records[folio]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func newTestEngine(sessions *fakeSessions, repo *fakeRepo, opts ...Option) *Engine {
	return NewEngine(sessions, repo, views.NewRenderer(views.DefaultVocabulary(), views.DefaultSupportContact()), opts...)
}
