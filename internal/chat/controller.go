// Package chat wires the history store, the renderer and live streams into
// one session controller. Every callback and user command runs under the
// controller's lock, so handlers never interleave.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/user/memchat/internal/gateway"
	"github.com/user/memchat/internal/reducer"
	"github.com/user/memchat/internal/session"
	"github.com/user/memchat/internal/state"
	"github.com/user/memchat/internal/types"
)

// ErrClosed is returned by commands issued after Close.
var ErrClosed = errors.New("chat controller closed")

// Options configures a Controller.
type Options struct {
	Store   types.HistoryStore
	View    types.Renderer
	Manager *gateway.Manager
	// Session is the initially active session; empty generates one.
	Session types.SessionID
	// DefaultTitle labels sessions without a user message yet.
	DefaultTitle string
}

type liveTurn struct {
	turn *reducer.Turn
	conn *gateway.Connection
	done chan struct{}
}

// Controller is the single owner of chat state for one client.
type Controller struct {
	store        types.HistoryStore
	view         types.Renderer
	manager      *gateway.Manager
	registry     *session.Registry
	defaultTitle string

	mu     sync.Mutex
	turns  map[types.SessionID]*liveTurn
	closed bool
}

// New creates a Controller. Call Reload to draw the active session.
func New(opts Options) *Controller {
	if opts.Manager == nil {
		opts.Manager = gateway.NewManager(gateway.Options{})
	}
	if opts.DefaultTitle == "" {
		opts.DefaultTitle = state.DefaultTitle
	}
	return &Controller{
		store:        opts.Store,
		view:         opts.View,
		manager:      opts.Manager,
		registry:     session.NewRegistry(opts.Session),
		defaultTitle: opts.DefaultTitle,
		turns:        make(map[types.SessionID]*liveTurn),
	}
}

// Active returns the active session id.
func (c *Controller) Active() types.SessionID {
	return c.registry.Active()
}

// Reload redraws the active session from history.
func (c *Controller) Reload(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.switchLocked(ctx, c.registry.Active())
}

// CreateSession starts a new empty session and makes it active.
func (c *Controller) CreateSession(ctx context.Context) (types.SessionID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", ErrClosed
	}
	id := types.NewSessionID()
	c.switchLocked(ctx, id)
	slog.Info("session created", "session_id", id)
	return id, nil
}

// SwitchTo makes id the active session and redraws its transcript. A stream
// running for the previous session keeps running in the background.
func (c *Controller) SwitchTo(ctx context.Context, id types.SessionID) error {
	id = types.SessionID(strings.TrimSpace(string(id)))
	if id == "" {
		return &types.ValidationError{Reason: "please enter a session id"}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.switchLocked(ctx, id)
	return nil
}

func (c *Controller) switchLocked(ctx context.Context, id types.SessionID) {
	prev := c.registry.Activate(id)
	if lt, ok := c.turns[prev]; ok {
		lt.turn.Detach()
	}

	c.view.ClearTranscript()
	for _, msg := range c.stored(ctx, id) {
		event := msg.EventType
		if msg.Role == types.RoleAssistant && event == "" {
			event = types.EventModel
		}
		c.view.AppendMessage(msg.Role, msg.Content, event)
	}
	if lt, ok := c.turns[id]; ok {
		lt.turn.Attach(c.view)
	}
}

func (c *Controller) stored(ctx context.Context, id types.SessionID) []types.Message {
	msgs := c.store.List(ctx, id)
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp < msgs[j].Timestamp
	})
	return msgs
}

// SendMessage records the prompt in the active session and streams the reply.
// Only one turn may be live per session; a second is rejected, not queued.
func (c *Controller) SendMessage(ctx context.Context, prompt string) error {
	text := strings.TrimSpace(prompt)
	if text == "" {
		return types.ErrEmptyPrompt
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	id := c.registry.Active()
	if _, busy := c.turns[id]; busy {
		return types.ErrTurnInProgress
	}

	c.recordUser(ctx, id, text)
	c.startLocked(id, gateway.Request{Prompt: text})
	return nil
}

// Decision answers a tool-approval request.
type Decision int

const (
	Approve Decision = 1
	Edit    Decision = 2
	Reject  Decision = 3
)

func (d Decision) String() string {
	switch d {
	case Approve:
		return "approve"
	case Edit:
		return "edit"
	case Reject:
		return "reject"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Respond sends a tool-approval decision for the active session, which
// resumes the interrupted reply as a new turn.
func (c *Controller) Respond(ctx context.Context, d Decision) error {
	if d < Approve || d > Reject {
		return &types.ValidationError{Reason: fmt.Sprintf("unknown decision %d", int(d))}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	id := c.registry.Active()
	if _, busy := c.turns[id]; busy {
		return types.ErrTurnInProgress
	}

	c.recordUser(ctx, id, d.String())
	c.startLocked(id, gateway.Request{HumanResponse: int(d)})
	return nil
}

func (c *Controller) recordUser(ctx context.Context, id types.SessionID, text string) {
	msg := &types.Message{
		ID:        types.NewMessageID(),
		SessionID: id,
		Role:      types.RoleUser,
		Content:   text,
		Timestamp: time.Now().UnixMilli(),
	}
	if err := c.store.Append(ctx, msg); err != nil {
		slog.Warn("failed to persist user message", "session_id", id, "error", err)
	}
	c.view.AppendMessage(types.RoleUser, text, "")
}

func (c *Controller) startLocked(id types.SessionID, req gateway.Request) {
	lt := &liveTurn{
		turn: reducer.NewTurn(id, c.view),
		done: make(chan struct{}),
	}
	c.turns[id] = lt

	conn, err := c.manager.Open(id, req, c.dispatch)
	if err != nil {
		lt.turn.Fail(err)
		c.finishLocked(id, lt)
		return
	}
	lt.conn = conn
}

// dispatch is the connection handler. Events from connections that are no
// longer current are dropped.
func (c *Controller) dispatch(conn *gateway.Connection, ev gateway.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	lt, ok := c.turns[conn.SessionID]
	if c.closed || !ok || lt.conn != conn || !c.manager.Current(conn) {
		slog.Debug("dropping event from stale connection", "session_id", conn.SessionID, "event", ev.Frame.Event)
		return
	}

	var out reducer.Outcome
	if ev.Err != nil {
		out = lt.turn.Fail(ev.Err)
	} else {
		out = lt.turn.Apply(ev.Frame)
	}
	if out.Done {
		c.finishLocked(conn.SessionID, lt)
	}
}

// finishLocked persists the closed turn and releases its connection.
func (c *Controller) finishLocked(id types.SessionID, lt *liveTurn) {
	ctx := context.Background()
	for _, msg := range lt.turn.Drain() {
		if err := c.store.Append(ctx, &msg); err != nil {
			slog.Warn("failed to persist assistant message", "session_id", id, "event", msg.EventType, "error", err)
		}
	}
	delete(c.turns, id)
	c.manager.Dispose(id)
	close(lt.done)
}

// Cancel ends the live turn of a session, keeping the partial reply. It
// reports whether a turn was running.
func (c *Controller) Cancel(id types.SessionID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	lt, ok := c.turns[id]
	if c.closed || !ok {
		return false
	}
	lt.turn.Cancel()
	c.finishLocked(id, lt)
	slog.Info("turn cancelled", "session_id", id)
	return true
}

// DeleteSession removes a session's history and any live stream for it. When
// the active session is deleted a new one is started.
func (c *Controller) DeleteSession(ctx context.Context, id types.SessionID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	if lt, ok := c.turns[id]; ok {
		delete(c.turns, id)
		c.manager.Dispose(id)
		close(lt.done)
	}
	err := c.store.Remove(ctx, id)
	if err != nil {
		slog.Warn("failed to remove session", "session_id", id, "error", err)
	}
	if c.registry.Active() == id {
		c.switchLocked(ctx, types.NewSessionID())
	}
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Sessions lists every stored session plus the active one, most recent first.
func (c *Controller) Sessions(ctx context.Context) []session.Entry {
	return c.registry.Selection(c.store.Sessions(ctx), c.defaultTitle)
}

// Search lists sessions with a message containing text, ignoring case.
func (c *Controller) Search(ctx context.Context, text string) []types.SessionSummary {
	return c.store.Search(ctx, text)
}

// Transcript returns the stored messages of a session in timestamp order,
// followed by whatever a live turn has produced so far.
func (c *Controller) Transcript(ctx context.Context, id types.SessionID) []types.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := c.stored(ctx, id)
	if lt, ok := c.turns[id]; ok {
		msgs = append(msgs, lt.turn.Messages()...)
	}
	return msgs
}

// IsStreaming reports whether a turn is live for the session.
func (c *Controller) IsStreaming(id types.SessionID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.turns[id]
	return ok
}

// Live returns the sessions with a stream in flight.
func (c *Controller) Live() []types.SessionID {
	return c.manager.Live()
}

var closedCh = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Done returns a channel closed when the session's live turn ends. With no
// live turn the channel is already closed.
func (c *Controller) Done(id types.SessionID) <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if lt, ok := c.turns[id]; ok {
		return lt.done
	}
	return closedCh
}

// Close tears down every live stream without persisting partial replies and
// waits for the readers to exit.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for id, lt := range c.turns {
		delete(c.turns, id)
		close(lt.done)
	}
	c.manager.DisposeAll()
	c.mu.Unlock()

	c.manager.Wait()
}
