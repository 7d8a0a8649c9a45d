package store

import (
	"encoding/json"
	"fmt"

	"github.com/BTreeMap/FolioPipe/internal/models"
)

// encodeMetadata marshals session metadata for a metadata column.
func encodeMetadata(meta map[string]any) ([]byte, error) {
	if meta == nil {
		meta = map[string]any{}
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session metadata: %w", err)
	}
	return data, nil
}

// decodeSessionRow rebuilds a session from its state and metadata columns.
// Unknown states and malformed metadata are decode failures.
func decodeSessionRow(state string, metadata []byte) (*models.Session, error) {
	st, err := models.ParseConversationState(state)
	if err != nil {
		return nil, err
	}
	meta := map[string]any{}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &meta); err != nil {
			return nil, fmt.Errorf("failed to decode session metadata: %w", err)
		}
		if meta == nil {
			meta = map[string]any{}
		}
	}
	return &models.Session{State: st, Metadata: meta}, nil
}
