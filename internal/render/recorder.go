package render

import (
	"fmt"
	"sync"

	"github.com/user/memchat/internal/types"
)

// Bubble is one rendered message as seen by a Recorder.
type Bubble struct {
	ID      types.MessageID
	Role    types.Role
	Content string
	Event   types.EventType
}

// Recorder is an in-memory renderer. It keeps the transcript as plain data
// so callers can inspect exactly what was drawn.
type Recorder struct {
	mu        sync.Mutex
	bubbles   []Bubble
	indicator bool
	shown     int
	clears    int
	next      int
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) AppendMessage(role types.Role, content string, event types.EventType) types.MessageID {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	id := types.MessageID(fmt.Sprintf("bubble-%d", r.next))
	r.bubbles = append(r.bubbles, Bubble{ID: id, Role: role, Content: content, Event: event})
	return id
}

func (r *Recorder) AppendToMessage(id types.MessageID, delta string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.bubbles {
		if r.bubbles[i].ID == id {
			r.bubbles[i].Content += delta
			return
		}
	}
}

func (r *Recorder) ShowIndicator() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indicator = true
	r.shown++
}

func (r *Recorder) RemoveIndicator() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indicator = false
}

func (r *Recorder) ClearTranscript() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bubbles = nil
	r.indicator = false
	r.clears++
}

// Bubbles returns a copy of the current transcript.
func (r *Recorder) Bubbles() []Bubble {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Bubble, len(r.bubbles))
	copy(out, r.bubbles)
	return out
}

// IndicatorVisible reports whether the thinking indicator is showing.
func (r *Recorder) IndicatorVisible() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.indicator
}

// IndicatorShown counts ShowIndicator calls.
func (r *Recorder) IndicatorShown() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.shown
}

// Clears counts ClearTranscript calls.
func (r *Recorder) Clears() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clears
}
