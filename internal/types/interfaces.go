// internal/types/interfaces.go
package types

import (
	"context"
	"time"
)

// Renderer is the output contract the core uses to mutate the visible
// transcript. Implementations own all presentation details.
type Renderer interface {
	AppendMessage(role Role, content string, event EventType) MessageID
	AppendToMessage(id MessageID, delta string)
	ShowIndicator()
	RemoveIndicator()
	ClearTranscript()
}

// HistoryStore is the durable, size-bounded message log.
type HistoryStore interface {
	Append(ctx context.Context, msg *Message) error
	List(ctx context.Context, sessionID SessionID) []Message
	Sessions(ctx context.Context) []SessionSummary
	Remove(ctx context.Context, sessionID SessionID) error
	Search(ctx context.Context, text string) []SessionSummary
	Prune(ctx context.Context, before time.Time) (int, error)
}
