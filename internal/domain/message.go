package domain

import "time"

// Role describes who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ReplyKind tells the presentation layer how to treat an assistant message.
type ReplyKind string

const (
	KindGreeting   ReplyKind = "greeting"
	KindQuestion   ReplyKind = "question"
	KindAssessment ReplyKind = "assessment"
	KindApology    ReplyKind = "apology"
)

// Source records which analyzer produced a reply.
type Source string

const (
	SourceLocal  Source = "local"
	SourceRemote Source = "remote"
)

// Message is one immutable transcript entry.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	RiskTier  *RiskTier `json:"risk_level"`
	Kind      ReplyKind `json:"kind,omitempty"`
	Source    Source    `json:"source,omitempty"`
	Timestamp string    `json:"timestamp,omitempty"`
}

// NewUserMessage builds a user transcript entry stamped with now.
func NewUserMessage(content string, now time.Time) Message {
	return Message{
		Role:      RoleUser,
		Content:   content,
		Timestamp: now.UTC().Format(time.RFC3339),
	}
}

// NewAssistantMessage builds an assistant transcript entry stamped with now.
// A nil tier means the tier is withheld for this reply.
func NewAssistantMessage(content string, tier *RiskTier, kind ReplyKind, source Source, now time.Time) Message {
	return Message{
		Role:      RoleAssistant,
		Content:   content,
		RiskTier:  tier,
		Kind:      kind,
		Source:    source,
		Timestamp: now.UTC().Format(time.RFC3339),
	}
}
