// internal/types/models.go
package types

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one persisted turn or turn fragment. Timestamp is the creation
// time in milliseconds since the epoch and never changes.
type Message struct {
	ID        MessageID `json:"id,omitempty"`
	SessionID SessionID `json:"sessionId"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	EventType EventType `json:"eventType"`
	Timestamp int64     `json:"timestamp"`
}

// SessionSummary is derived from the message log, never stored.
type SessionSummary struct {
	SessionID      SessionID `json:"sessionId"`
	Title          string    `json:"title"`
	FirstTimestamp int64     `json:"firstTimestamp"`
	LastTimestamp  int64     `json:"lastTimestamp"`
	Messages       int       `json:"messages"`
}
