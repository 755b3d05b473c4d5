// Package gateway owns the live stream connections, at most one per session.
package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/user/memchat/internal/sse"
	"github.com/user/memchat/internal/types"
)

const (
	DefaultStreamPath    = "/stream/mem/agent"
	DefaultMaxConcurrent = 4
)

// ErrTooManyStreams is returned by Open when every stream slot is taken.
var ErrTooManyStreams = errors.New("too many live streams")

// Dialer opens an event stream body for a URL.
type Dialer interface {
	Connect(ctx context.Context, url string) (io.ReadCloser, error)
}

// Options configures a Manager. Zero values take defaults.
type Options struct {
	BaseURL       string
	StreamPath    string
	MaxConcurrent int64
	Retry         *RetryPolicy
	Dialer        Dialer
}

// Request is the input of one turn.
type Request struct {
	Prompt string
	// HumanResponse carries a tool-approval decision; zero omits it.
	HumanResponse int
}

// Event is delivered for every frame, and once with Err set when the stream
// fails before a terminal frame.
type Event struct {
	Frame sse.Frame
	Err   error
}

// Handler receives the events of one connection in arrival order, from a
// single goroutine per connection.
type Handler func(*Connection, Event)

// Manager tracks live connections keyed by session id. Streams for different
// sessions run side by side; a semaphore caps how many may be live at once.
type Manager struct {
	opts  Options
	slots *semaphore.Weighted

	mu    sync.Mutex
	conns map[types.SessionID]*Connection
	wg    sync.WaitGroup
}

// NewManager creates a Manager.
func NewManager(opts Options) *Manager {
	if opts.StreamPath == "" {
		opts.StreamPath = DefaultStreamPath
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.Retry == nil {
		opts.Retry = DefaultRetryPolicy()
	}
	if opts.Dialer == nil {
		opts.Dialer = sse.NewClient(nil)
	}
	return &Manager{
		opts:  opts,
		slots: semaphore.NewWeighted(opts.MaxConcurrent),
		conns: make(map[types.SessionID]*Connection),
	}
}

// URL builds the stream endpoint for a turn. Parameters are percent-encoded
// with spaces as %20.
func (m *Manager) URL(sessionID types.SessionID, req Request) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(m.opts.BaseURL, "/"))
	b.WriteString(m.opts.StreamPath)
	b.WriteString("?prompt=")
	b.WriteString(escape(req.Prompt))
	b.WriteString("&sessionId=")
	b.WriteString(escape(string(sessionID)))
	if req.HumanResponse != 0 {
		b.WriteString("&humanResponse=")
		b.WriteString(strconv.Itoa(req.HumanResponse))
	}
	return b.String()
}

func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// Open starts a stream for the session, disposing any connection the session
// already has. The handler runs on the connection's reader goroutine.
func (m *Manager) Open(sessionID types.SessionID, req Request, handler Handler) (*Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.conns[sessionID]; ok {
		delete(m.conns, sessionID)
		prev.close()
	}
	if !m.slots.TryAcquire(1) {
		return nil, &types.TransportError{SessionID: sessionID, Op: "open", Err: ErrTooManyStreams}
	}

	ctx, cancel := context.WithCancel(context.Background())
	conn := &Connection{
		SessionID: sessionID,
		URL:       m.URL(sessionID, req),
		ctx:       ctx,
		cancel:    cancel,
		release:   func() { m.slots.Release(1) },
	}
	m.conns[sessionID] = conn

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.forget(conn)
		conn.run(m.opts.Dialer, m.opts.Retry, handler)
	}()

	slog.Debug("stream opened", "session_id", sessionID, "url", conn.URL)
	return conn, nil
}

// Dispose closes the session's connection if there is one. Safe to call
// repeatedly.
func (m *Manager) Dispose(sessionID types.SessionID) {
	m.mu.Lock()
	conn, ok := m.conns[sessionID]
	delete(m.conns, sessionID)
	m.mu.Unlock()

	if ok {
		conn.close()
		slog.Debug("stream disposed", "session_id", sessionID)
	}
}

// forget drops a finished connection unless it was already replaced.
func (m *Manager) forget(conn *Connection) {
	m.mu.Lock()
	if m.conns[conn.SessionID] == conn {
		delete(m.conns, conn.SessionID)
	}
	m.mu.Unlock()
	conn.close()
}

// DisposeAll closes every live connection.
func (m *Manager) DisposeAll() {
	m.mu.Lock()
	conns := m.conns
	m.conns = make(map[types.SessionID]*Connection)
	m.mu.Unlock()

	for _, conn := range conns {
		conn.close()
	}
}

// Current reports whether conn is still the live connection of its session.
func (m *Manager) Current(conn *Connection) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conns[conn.SessionID] == conn
}

// Live returns the sessions with an open connection, sorted.
func (m *Manager) Live() []types.SessionID {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]types.SessionID, 0, len(m.conns))
	for id := range m.conns {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Wait blocks until every reader goroutine has exited.
func (m *Manager) Wait() {
	m.wg.Wait()
}
