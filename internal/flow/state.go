// Package flow implements the menu conversation engine.
//
// The engine reads the user's session, dispatches on its state, consults the
// folio extractor and the service repository when needed, and returns the
// rendered reply. Storage is reached only through the interfaces below.
package flow

import (
	"context"

	"github.com/BTreeMap/FolioPipe/internal/models"
)

// SessionStore persists per-user sessions with expiry.
type SessionStore interface {
	// GetSession returns the stored session, or nil if none exists or it has expired.
	GetSession(ctx context.Context, userID int64) (*models.Session, error)
	// SaveSession overwrites the user's session and refreshes its expiry.
	SaveSession(ctx context.Context, userID int64, session models.Session) error
}

// ServiceRepository looks up technical services by canonical folio.
type ServiceRepository interface {
	// FindByFolio returns the record for folio, or nil if none exists.
	FindByFolio(ctx context.Context, folio string) (*models.ServiceRecord, error)
}
