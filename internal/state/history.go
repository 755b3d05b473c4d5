package state

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/user/memchat/internal/types"
)

const (
	DefaultKey         = "memchat-history"
	DefaultCapacity    = 1000
	DefaultTitleLength = 30
	DefaultTitle       = "New chat"
)

// Options configures a HistoryStore. Zero values fall back to the defaults.
type Options struct {
	Key         string
	Capacity    int
	TitleLength int
}

// HistoryStore is a bounded append log of messages for all sessions,
// persisted under a single backend key. Every operation re-reads the
// backend, so external modification between calls is tolerated. Writers
// hold mu across load and save so concurrent read-modify-writes from one
// process do not overwrite each other.
type HistoryStore struct {
	mu          sync.RWMutex
	backend     Backend
	key         string
	capacity    int
	titleLength int
}

// NewHistoryStore creates a HistoryStore persisting to backend.
func NewHistoryStore(backend Backend, opts Options) *HistoryStore {
	s := &HistoryStore{
		backend:     backend,
		key:         opts.Key,
		capacity:    opts.Capacity,
		titleLength: opts.TitleLength,
	}
	if s.key == "" {
		s.key = DefaultKey
	}
	if s.capacity <= 0 {
		s.capacity = DefaultCapacity
	}
	if s.titleLength <= 0 {
		s.titleLength = DefaultTitleLength
	}
	return s
}

// Capacity returns the maximum number of retained messages.
func (s *HistoryStore) Capacity() int {
	return s.capacity
}

// load reads the log. A corrupt blob decodes as an empty log; a backend
// failure is returned so writers do not clobber data they could not read.
func (s *HistoryStore) load(ctx context.Context) ([]types.Message, error) {
	data, err := s.backend.Load(ctx, s.key)
	if err != nil {
		return nil, &types.PersistenceError{Op: "read", Key: s.key, Err: err}
	}
	if len(data) == 0 {
		return nil, nil
	}
	var log []types.Message
	if err := json.Unmarshal(data, &log); err != nil {
		slog.Warn("history blob is corrupt, treating as empty", "key", s.key, "error", err)
		return nil, nil
	}
	return log, nil
}

// read is load for readers: any failure yields an empty log.
func (s *HistoryStore) read(ctx context.Context) []types.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	log, err := s.load(ctx)
	if err != nil {
		slog.Warn("history read failed", "error", err)
		return nil
	}
	return log
}

func (s *HistoryStore) save(ctx context.Context, log []types.Message) error {
	if log == nil {
		log = []types.Message{}
	}
	data, err := json.Marshal(log)
	if err != nil {
		return &types.PersistenceError{Op: "encode", Key: s.key, Err: err}
	}
	if err := s.backend.Save(ctx, s.key, data); err != nil {
		return &types.PersistenceError{Op: "write", Key: s.key, Err: err}
	}
	return nil
}

// Append adds msg to the end of the log and evicts the oldest records when
// the log exceeds capacity. A returned error is always a
// *types.PersistenceError; the message is then not persisted but the caller
// may continue.
func (s *HistoryStore) Append(ctx context.Context, msg *types.Message) error {
	if msg.ID == "" {
		msg.ID = types.NewMessageID()
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	log, err := s.load(ctx)
	if err != nil {
		return err
	}
	log = append(log, *msg)
	log = evictOldest(log, s.capacity)
	return s.save(ctx, log)
}

// evictOldest drops whole records with the lowest timestamps (earliest
// inserted first on ties) until len(log) <= capacity. Survivors keep their
// insertion order.
func evictOldest(log []types.Message, capacity int) []types.Message {
	over := len(log) - capacity
	if over <= 0 {
		return log
	}
	idx := make([]int, len(log))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return log[idx[a]].Timestamp < log[idx[b]].Timestamp
	})
	drop := make(map[int]bool, over)
	for _, i := range idx[:over] {
		drop[i] = true
	}
	kept := make([]types.Message, 0, capacity)
	for i, m := range log {
		if !drop[i] {
			kept = append(kept, m)
		}
	}
	return kept
}

// List returns a copy of the messages for sessionID in insertion order, or
// every message when sessionID is empty.
func (s *HistoryStore) List(ctx context.Context, sessionID types.SessionID) []types.Message {
	log := s.read(ctx)
	out := make([]types.Message, 0, len(log))
	for _, m := range log {
		if sessionID == "" || m.SessionID == sessionID {
			out = append(out, m)
		}
	}
	return out
}

// Sessions summarizes every session, most recently active first.
func (s *HistoryStore) Sessions(ctx context.Context) []types.SessionSummary {
	return s.summarize(s.read(ctx), nil)
}

// Search returns summaries of sessions with at least one message whose
// content contains text, ignoring case. Blank text matches every session.
func (s *HistoryStore) Search(ctx context.Context, text string) []types.SessionSummary {
	needle := strings.ToLower(strings.TrimSpace(text))
	log := s.read(ctx)
	if needle == "" {
		return s.summarize(log, nil)
	}
	matched := make(map[types.SessionID]bool)
	for _, m := range log {
		if strings.Contains(strings.ToLower(m.Content), needle) {
			matched[m.SessionID] = true
		}
	}
	return s.summarize(log, matched)
}

// Remove deletes every message of sessionID. Removing an absent session is
// a no-op.
func (s *HistoryStore) Remove(ctx context.Context, sessionID types.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log, err := s.load(ctx)
	if err != nil {
		return err
	}
	kept := log[:0]
	for _, m := range log {
		if m.SessionID != sessionID {
			kept = append(kept, m)
		}
	}
	if len(kept) == len(log) {
		return nil
	}
	return s.save(ctx, kept)
}

// Prune removes whole sessions whose last message is older than before and
// returns how many sessions were removed.
func (s *HistoryStore) Prune(ctx context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log, err := s.load(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := before.UnixMilli()
	stale := make(map[types.SessionID]bool)
	for _, sum := range s.summarize(log, nil) {
		if sum.LastTimestamp < cutoff {
			stale[sum.SessionID] = true
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	kept := log[:0]
	for _, m := range log {
		if !stale[m.SessionID] {
			kept = append(kept, m)
		}
	}
	if err := s.save(ctx, kept); err != nil {
		return 0, err
	}
	return len(stale), nil
}

// summarize groups log by session. When only is non-nil, sessions absent
// from it are skipped.
func (s *HistoryStore) summarize(log []types.Message, only map[types.SessionID]bool) []types.SessionSummary {
	byID := make(map[types.SessionID]*types.SessionSummary)
	var order []types.SessionID
	for _, m := range log {
		if only != nil && !only[m.SessionID] {
			continue
		}
		sum, ok := byID[m.SessionID]
		if !ok {
			sum = &types.SessionSummary{
				SessionID:      m.SessionID,
				FirstTimestamp: m.Timestamp,
				LastTimestamp:  m.Timestamp,
			}
			byID[m.SessionID] = sum
			order = append(order, m.SessionID)
		}
		sum.Messages++
		if m.Timestamp < sum.FirstTimestamp {
			sum.FirstTimestamp = m.Timestamp
		}
		if m.Timestamp > sum.LastTimestamp {
			sum.LastTimestamp = m.Timestamp
		}
		if sum.Title == "" && m.Role == types.RoleUser {
			sum.Title = Truncate(m.Content, s.titleLength)
		}
	}

	out := make([]types.SessionSummary, 0, len(order))
	for _, id := range order {
		sum := byID[id]
		if sum.Title == "" {
			sum.Title = DefaultTitle
		}
		out = append(out, *sum)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastTimestamp > out[j].LastTimestamp
	})
	return out
}

// Truncate shortens text to at most n runes, marking a cut with "...".
func Truncate(text string, n int) string {
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	runes := []rune(text)
	return string(runes[:n]) + "..."
}
