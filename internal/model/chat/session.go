package chat

import "time"

// Session is the per-connection conversational and billing state.
type Session struct {
	ID              string     `json:"id"`
	Turns           []Turn     `json:"turns"`
	Paid            bool       `json:"paid"`
	PaidAt          *time.Time `json:"paidAt,omitempty"`
	Category        string     `json:"category,omitempty"`
	ReadyForPayment bool       `json:"readyForPayment"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// Clone returns a deep copy so callers can never mutate stored state.
func (s Session) Clone() Session {
	out := s
	out.Turns = append([]Turn(nil), s.Turns...)
	if s.PaidAt != nil {
		paidAt := *s.PaidAt
		out.PaidAt = &paidAt
	}
	return out
}

// CountBySender counts the turns produced by sender.
func (s Session) CountBySender(sender Sender) int {
	n := 0
	for _, turn := range s.Turns {
		if turn.Sender == sender {
			n++
		}
	}
	return n
}

// Summary returns the listing view of the session.
func (s Session) Summary() Summary {
	return Summary{
		ID:              s.ID,
		Turns:           len(s.Turns),
		Paid:            s.Paid,
		Category:        s.Category,
		ReadyForPayment: s.ReadyForPayment,
		UpdatedAt:       s.UpdatedAt,
	}
}

// Summary is the compact view used by the agent dashboard.
type Summary struct {
	ID              string    `json:"id"`
	Turns           int       `json:"turns"`
	Paid            bool      `json:"paid"`
	Category        string    `json:"category,omitempty"`
	ReadyForPayment bool      `json:"readyForPayment"`
	UpdatedAt       time.Time `json:"updatedAt"`
}
