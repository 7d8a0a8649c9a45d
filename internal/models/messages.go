package models

// InboundMessage is one user turn as seen by the conversation engine.
type InboundMessage struct {
	UserID      int64  `json:"user_id" binding:"required"`
	Text        string `json:"text"`
	DisplayName string `json:"display_name,omitempty"`
}

// BotResponse is the reply produced for a turn. Buttons holds the labels of
// the navigation buttons to present, in order.
type BotResponse struct {
	Text    string   `json:"text"`
	Buttons []string `json:"buttons"`
}

// HasButtons reports whether the response offers any navigation buttons.
func (r BotResponse) HasButtons() bool {
	return len(r.Buttons) > 0
}
