// Package reducer turns the frames of one streamed reply into renderer calls
// and the assistant messages that end up in history.
package reducer

import (
	"log/slog"
	"strings"
	"time"

	"github.com/user/memchat/internal/sse"
	"github.com/user/memchat/internal/types"
)

// Phase is the lifecycle state of a Turn.
type Phase int

const (
	Awaiting Phase = iota
	Streaming
	Closed
)

func (p Phase) String() string {
	switch p {
	case Awaiting:
		return "awaiting"
	case Streaming:
		return "streaming"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Default texts for terminal messages that arrive without a payload.
const (
	DefaultErrorText     = "An error occurred."
	DefaultTimeoutText   = "The response timed out."
	DefaultTransportText = "Connection failed, please retry."
)

// Outcome tells the caller what a frame did to the turn.
type Outcome struct {
	// Done is set when the frame closed the turn.
	Done bool
	// Discarded is set when the turn was already closed.
	Discarded bool
}

// Turn is the state of one in-flight reply for a session. It is not safe for
// concurrent use; the owner serializes calls.
type Turn struct {
	sessionID types.SessionID
	phase     Phase
	messages  []*types.Message
	open      int
	view      types.Renderer
	handles   map[int]types.MessageID
	drained   bool
	now       func() time.Time
}

// NewTurn starts a turn and shows the thinking indicator on view. A nil
// view starts the turn detached.
func NewTurn(sessionID types.SessionID, view types.Renderer) *Turn {
	t := &Turn{
		sessionID: sessionID,
		phase:     Awaiting,
		open:      -1,
		handles:   make(map[int]types.MessageID),
		now:       time.Now,
	}
	if view != nil {
		t.view = view
		view.ShowIndicator()
	}
	return t
}

func (t *Turn) SessionID() types.SessionID { return t.sessionID }

func (t *Turn) Phase() Phase { return t.phase }

// Apply feeds one frame to the turn.
func (t *Turn) Apply(frame sse.Frame) Outcome {
	if t.phase == Closed {
		slog.Debug("discarding frame after turn closed", "session_id", t.sessionID, "event", frame.Event)
		return Outcome{Discarded: true}
	}
	t.firstFrame()

	kind := types.Classify(frame.Event)
	switch kind {
	case types.KindModel:
		t.appendModel(frame.Data)
	case types.KindTool, types.KindThinking, types.KindContext, types.KindInterrupt:
		t.annotate(types.EventType(frame.Event), frame.Data)
	case types.KindComplete:
		t.close()
		return Outcome{Done: true}
	case types.KindError:
		t.terminate(types.EventError, frame.Data, DefaultErrorText)
		return Outcome{Done: true}
	case types.KindTimeout:
		t.terminate(types.EventTimeout, frame.Data, DefaultTimeoutText)
		return Outcome{Done: true}
	default:
		slog.Warn("unknown stream event", "session_id", t.sessionID, "error", &types.ProtocolError{Event: frame.Event})
		t.annotate(types.EventType(frame.Event), frame.Data)
	}
	return Outcome{}
}

// Fail closes the turn after a transport failure, as if an error frame
// without payload had arrived.
func (t *Turn) Fail(err error) Outcome {
	if t.phase == Closed {
		slog.Debug("ignoring transport failure after turn closed", "session_id", t.sessionID, "error", err)
		return Outcome{Discarded: true}
	}
	slog.Warn("stream failed", "session_id", t.sessionID, "error", err)
	t.firstFrame()
	t.terminate(types.EventError, "", DefaultTransportText)
	return Outcome{Done: true}
}

// Cancel closes the turn at the user's request. What streamed so far is kept
// for Drain; no terminal message is added.
func (t *Turn) Cancel() Outcome {
	if t.phase == Closed {
		return Outcome{Discarded: true}
	}
	t.firstFrame()
	t.close()
	return Outcome{Done: true}
}

// Attach binds the turn to view and replays everything produced so far.
func (t *Turn) Attach(view types.Renderer) {
	t.view = view
	t.handles = make(map[int]types.MessageID, len(t.messages))
	for i, msg := range t.messages {
		t.handles[i] = view.AppendMessage(msg.Role, msg.Content, msg.EventType)
	}
	if t.phase == Awaiting {
		view.ShowIndicator()
	}
}

// Detach stops rendering. Frames keep being reduced.
func (t *Turn) Detach() {
	if t.view != nil && t.phase == Awaiting {
		t.view.RemoveIndicator()
	}
	t.view = nil
	t.handles = make(map[int]types.MessageID)
}

// Messages returns a copy of the assistant messages produced so far.
func (t *Turn) Messages() []types.Message {
	out := make([]types.Message, 0, len(t.messages))
	for _, msg := range t.messages {
		out = append(out, *msg)
	}
	return out
}

// Drain returns the messages to persist. It yields them once, and only after
// the turn closed; later calls return nil.
func (t *Turn) Drain() []types.Message {
	if t.phase != Closed || t.drained {
		return nil
	}
	t.drained = true
	var out []types.Message
	for _, msg := range t.messages {
		if msg.Content == "" {
			continue
		}
		out = append(out, *msg)
	}
	return out
}

func (t *Turn) firstFrame() {
	if t.phase != Awaiting {
		return
	}
	t.phase = Streaming
	if t.view != nil {
		t.view.RemoveIndicator()
	}
}

func (t *Turn) appendModel(text string) {
	if text == "" {
		return
	}
	if t.open >= 0 {
		msg := t.messages[t.open]
		msg.Content += text
		if id, ok := t.handles[t.open]; ok && t.view != nil {
			t.view.AppendToMessage(id, text)
		}
		return
	}
	t.open = t.add(types.EventModel, text)
}

// annotate adds a closed, display-only message. An open MODEL message stays
// open so later MODEL text continues it.
func (t *Turn) annotate(event types.EventType, text string) {
	if text == "" {
		return
	}
	t.add(event, text)
}

func (t *Turn) terminate(event types.EventType, text, fallback string) {
	t.close()
	if strings.TrimSpace(text) == "" {
		text = fallback
	}
	t.add(event, text)
}

func (t *Turn) close() {
	t.open = -1
	t.phase = Closed
}

func (t *Turn) add(event types.EventType, text string) int {
	msg := &types.Message{
		ID:        types.NewMessageID(),
		SessionID: t.sessionID,
		Role:      types.RoleAssistant,
		Content:   text,
		EventType: event,
		Timestamp: t.now().UnixMilli(),
	}
	t.messages = append(t.messages, msg)
	idx := len(t.messages) - 1
	if t.view != nil {
		t.handles[idx] = t.view.AppendMessage(msg.Role, msg.Content, msg.EventType)
	}
	return idx
}
