package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/FolioPipe/internal/models"
)

type memorySession struct {
	payload   []byte
	expiresAt time.Time
}

type memoryDedup struct {
	userID      int64
	receivedAt  time.Time
	processedAt *time.Time
}

// InMemoryStore keeps sessions and dedup records in process memory.
// Sessions are stored encoded so that readers never share maps with writers.
type InMemoryStore struct {
	mu       sync.Mutex
	sessions map[int64]memorySession
	dedup    map[string]memoryDedup
	ttl      time.Duration
	now      func() time.Time
}

var (
	_ SessionStore = (*InMemoryStore)(nil)
	_ Purger       = (*InMemoryStore)(nil)
	_ DedupRepo    = (*InMemoryStore)(nil)
)

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore(opts ...Option) *InMemoryStore {
	cfg := applyOptions(opts)
	return &InMemoryStore{
		sessions: make(map[int64]memorySession),
		dedup:    make(map[string]memoryDedup),
		ttl:      cfg.TTL,
		now:      cfg.Now,
	}
}

func (s *InMemoryStore) GetSession(_ context.Context, userID int64) (*models.Session, error) {
	s.mu.Lock()
	entry, ok := s.sessions[userID]
	if ok && !s.now().Before(entry.expiresAt) {
		delete(s.sessions, userID)
		ok = false
	}
	s.mu.Unlock()

	if !ok {
		return nil, nil
	}
	sess, err := models.UnmarshalSession(entry.payload)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *InMemoryStore) SaveSession(_ context.Context, userID int64, session models.Session) error {
	payload, err := models.MarshalSession(session)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.sessions[userID] = memorySession{payload: payload, expiresAt: s.now().Add(s.ttl)}
	s.mu.Unlock()
	return nil
}

func (s *InMemoryStore) DeleteSession(_ context.Context, userID int64) error {
	s.mu.Lock()
	delete(s.sessions, userID)
	s.mu.Unlock()
	return nil
}

func (s *InMemoryStore) PurgeExpired(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var n int64
	for id, entry := range s.sessions {
		if !now.Before(entry.expiresAt) {
			delete(s.sessions, id)
			n++
		}
	}
	cutoff := now.Add(-DedupRetention)
	for id, rec := range s.dedup {
		if rec.receivedAt.Before(cutoff) {
			delete(s.dedup, id)
		}
	}
	slog.Debug("InMemoryStore PurgeExpired succeeded", "sessions", n)
	return n, nil
}

func (s *InMemoryStore) IsDuplicate(_ context.Context, messageID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.dedup[messageID]
	return ok, nil
}

func (s *InMemoryStore) RecordInbound(_ context.Context, messageID string, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dedup[messageID]; ok {
		return false, nil
	}
	s.dedup[messageID] = memoryDedup{userID: userID, receivedAt: s.now()}
	return true, nil
}

func (s *InMemoryStore) MarkProcessed(_ context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.dedup[messageID]
	if !ok {
		return nil
	}
	now := s.now()
	rec.processedAt = &now
	s.dedup[messageID] = rec
	return nil
}

func (s *InMemoryStore) Close() error {
	return nil
}

// InMemoryServiceRepository serves service records from a map keyed by folio.
type InMemoryServiceRepository struct {
	mu      sync.RWMutex
	records map[string]models.ServiceRecord
}

// NewInMemoryServiceRepository creates a repository holding records.
func NewInMemoryServiceRepository(records ...models.ServiceRecord) *InMemoryServiceRepository {
	r := &InMemoryServiceRepository{records: make(map[string]models.ServiceRecord, len(records))}
	for _, rec := range records {
		r.records[rec.Folio] = rec
	}
	return r
}

// FindByFolio returns the record for folio, or nil if none exists.
func (r *InMemoryServiceRepository) FindByFolio(_ context.Context, folio string) (*models.ServiceRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[folio]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// Upsert inserts or replaces a record.
func (r *InMemoryServiceRepository) Upsert(_ context.Context, rec models.ServiceRecord) error {
	r.mu.Lock()
	r.records[rec.Folio] = rec
	r.mu.Unlock()
	return nil
}
