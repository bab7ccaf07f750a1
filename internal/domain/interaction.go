package domain

import "time"

// Interaction is an anonymized record of one completed assessment. It never
// carries message text.
type Interaction struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Category  Category  `json:"category"`
	Symptoms  []string  `json:"symptoms"`
	Duration  string    `json:"duration,omitempty"`
	Age       int       `json:"age,omitempty"` // 0 when not stated
	RiskTier  RiskTier  `json:"risk_level"`
	Source    Source    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// Complete reports whether both symptoms and a duration were collected.
func (i *Interaction) Complete() bool {
	return len(i.Symptoms) > 0 && i.Duration != ""
}
