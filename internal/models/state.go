package models

import (
	"encoding/json"
	"fmt"
)

// ConversationState is the position of a user in the menu conversation.
// The string value is the name persisted in session records.
type ConversationState string

const (
	// StateStart is the state of a user with no stored session.
	StateStart ConversationState = "START"
	// StateMainMenu is the state after the welcome menu has been shown.
	StateMainMenu ConversationState = "MAIN_MENU"
	// StateWaitingForFolio is the state while the bot expects a folio.
	StateWaitingForFolio ConversationState = "WAITING_FOR_FOLIO"
	// StateAIAssistant is reserved. No transition enters it.
	StateAIAssistant ConversationState = "AI_ASSISTANT"
	// StateSupportConnect is reserved. No transition enters it.
	StateSupportConnect ConversationState = "SUPPORT_CONNECT"
)

// ConversationStates lists every known state in declaration order.
var ConversationStates = []ConversationState{
	StateStart,
	StateMainMenu,
	StateWaitingForFolio,
	StateAIAssistant,
	StateSupportConnect,
}

// IsValid reports whether s is one of the known states.
func (s ConversationState) IsValid() bool {
	for _, known := range ConversationStates {
		if s == known {
			return true
		}
	}
	return false
}

// ParseConversationState converts a persisted state name into a ConversationState.
func ParseConversationState(name string) (ConversationState, error) {
	s := ConversationState(name)
	if !s.IsValid() {
		return "", fmt.Errorf("unknown conversation state %q", name)
	}
	return s, nil
}

// Session is the persisted per-user conversation state.
type Session struct {
	State    ConversationState `json:"state"`
	Metadata map[string]any    `json:"metadata"`
}

// NewSession returns the default session for a user without a stored record.
func NewSession() Session {
	return Session{State: StateStart, Metadata: map[string]any{}}
}

// WithState returns a copy of s in the given state. The metadata map is
// copied so the result can be stored without aliasing the original.
func (s Session) WithState(state ConversationState) Session {
	meta := make(map[string]any, len(s.Metadata))
	for k, v := range s.Metadata {
		meta[k] = v
	}
	return Session{State: state, Metadata: meta}
}

// MarshalSession encodes a session in the persisted JSON layout.
func MarshalSession(s Session) ([]byte, error) {
	if s.Metadata == nil {
		s.Metadata = map[string]any{}
	}
	return json.Marshal(s)
}

// UnmarshalSession decodes a persisted session. Unknown state names and
// malformed payloads are errors.
func UnmarshalSession(data []byte) (Session, error) {
	var raw struct {
		State    string         `json:"state"`
		Metadata map[string]any `json:"metadata"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Session{}, fmt.Errorf("failed to decode session: %w", err)
	}
	state, err := ParseConversationState(raw.State)
	if err != nil {
		return Session{}, err
	}
	if raw.Metadata == nil {
		raw.Metadata = map[string]any{}
	}
	return Session{State: state, Metadata: raw.Metadata}, nil
}
