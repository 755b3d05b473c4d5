// Package devserver is a local stream endpoint that replays scripted frames,
// for trying the client without a real agent behind it.
package devserver

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

const DefaultPath = "/stream/mem/agent"

// Step is one frame of a scripted reply. Delay is waited before sending.
type Step struct {
	Event   string `json:"event"`
	Data    string `json:"data"`
	DelayMS int    `json:"delay_ms,omitempty"`
}

// Script chooses the frames sent for a request. Prompts match the prompt
// exactly; Decisions match the humanResponse value. "{{prompt}}" in a step's
// data is replaced with the request's prompt.
type Script struct {
	Default   []Step            `json:"default"`
	Prompts   map[string][]Step `json:"prompts,omitempty"`
	Decisions map[string][]Step `json:"decisions,omitempty"`
}

// DefaultScript echoes the prompt back as a model reply.
func DefaultScript() *Script {
	return &Script{
		Default: []Step{
			{Event: "[THINKING]", Data: "Reading the question."},
			{Event: "[MODEL]", Data: "You said: "},
			{Event: "[MODEL]", Data: "{{prompt}}"},
			{Event: "[COMPLETE]", Data: "Stream completed"},
		},
		Decisions: map[string][]Step{
			"1": {{Event: "[MODEL]", Data: "Tool call approved."}, {Event: "[COMPLETE]", Data: "Stream completed"}},
			"2": {{Event: "[MODEL]", Data: "Tool call edited."}, {Event: "[COMPLETE]", Data: "Stream completed"}},
			"3": {{Event: "[MODEL]", Data: "Tool call rejected."}, {Event: "[COMPLETE]", Data: "Stream completed"}},
		},
	}
}

// LoadScript reads a Script from a JSON file.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	var script Script
	if err := json.Unmarshal(data, &script); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	return &script, nil
}

func (s *Script) steps(prompt string, humanResponse int) []Step {
	if humanResponse != 0 {
		if steps, ok := s.Decisions[strconv.Itoa(humanResponse)]; ok {
			return steps
		}
	}
	if steps, ok := s.Prompts[prompt]; ok {
		return steps
	}
	return s.Default
}

// Received is one request the server accepted.
type Received struct {
	Prompt        string
	SessionID     string
	HumanResponse int
}

// Server is an http.Handler serving the scripted stream.
type Server struct {
	script *Script
	mux    *http.ServeMux

	mu       sync.Mutex
	received []Received
}

// NewServer creates a Server mounting the stream at path.
func NewServer(script *Script, path string) *Server {
	if script == nil {
		script = DefaultScript()
	}
	if path == "" {
		path = DefaultPath
	}
	s := &Server{
		script: script,
		mux:    http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET "+path, s.handleStream)
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Received returns the accepted requests in arrival order.
func (s *Server) Received() []Received {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Received, len(s.received))
	copy(out, s.received)
	return out
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := Received{Prompt: q.Get("prompt"), SessionID: q.Get("sessionId")}
	if req.SessionID == "" {
		http.Error(w, `{"error":"sessionId is required"}`, http.StatusBadRequest)
		return
	}
	if v := q.Get("humanResponse"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, `{"error":"humanResponse must be an integer"}`, http.StatusBadRequest)
			return
		}
		req.HumanResponse = n
	}
	if req.Prompt == "" && req.HumanResponse == 0 {
		http.Error(w, `{"error":"prompt is required"}`, http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.received = append(s.received, req)
	s.mu.Unlock()
	slog.Info("stream request", "session_id", req.SessionID, "human_response", req.HumanResponse)

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	for _, step := range s.script.steps(req.Prompt, req.HumanResponse) {
		if step.DelayMS > 0 {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(time.Duration(step.DelayMS) * time.Millisecond):
			}
		}
		data := strings.ReplaceAll(step.Data, "{{prompt}}", req.Prompt)
		if err := writeFrame(w, step.Event, data); err != nil {
			slog.Warn("stream write failed", "session_id", req.SessionID, "error", err)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func writeFrame(w http.ResponseWriter, event, data string) error {
	var b strings.Builder
	if event != "" {
		fmt.Fprintf(&b, "event:%s\n", event)
	}
	for _, line := range strings.Split(data, "\n") {
		fmt.Fprintf(&b, "data:%s\n", line)
	}
	b.WriteString("\n")
	_, err := w.Write([]byte(b.String()))
	return err
}
