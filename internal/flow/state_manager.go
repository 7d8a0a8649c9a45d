package flow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/FolioPipe/internal/models"
)

// SessionManager wraps a SessionStore with per-call timeouts and default
// session synthesis.
type SessionManager struct {
	store   SessionStore
	timeout time.Duration
}

// NewSessionManager creates a SessionManager backed by st.
func NewSessionManager(st SessionStore, timeout time.Duration) *SessionManager {
	slog.Debug("Creating SessionManager", "timeout", timeout)
	return &SessionManager{store: st, timeout: timeout}
}

// Load returns the user's session, or the default session if none is stored.
func (sm *SessionManager) Load(ctx context.Context, userID int64) (models.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, sm.timeout)
	defer cancel()

	s, err := sm.store.GetSession(ctx, userID)
	if err != nil {
		slog.Error("SessionManager Load error", "error", err, "userID", userID)
		return models.Session{}, fmt.Errorf("failed to load session for user %d: %w", userID, err)
	}
	if s == nil {
		slog.Debug("SessionManager Load not found, using default", "userID", userID)
		return models.NewSession(), nil
	}
	if s.Metadata == nil {
		s.Metadata = map[string]any{}
	}
	slog.Debug("SessionManager Load found", "userID", userID, "state", s.State)
	return *s, nil
}

// Save overwrites the user's session.
func (sm *SessionManager) Save(ctx context.Context, userID int64, s models.Session) error {
	ctx, cancel := context.WithTimeout(ctx, sm.timeout)
	defer cancel()

	if err := sm.store.SaveSession(ctx, userID, s); err != nil {
		slog.Error("SessionManager Save error", "error", err, "userID", userID, "state", s.State)
		return fmt.Errorf("failed to save session for user %d: %w", userID, err)
	}
	slog.Debug("SessionManager Save succeeded", "userID", userID, "state", s.State)
	return nil
}
