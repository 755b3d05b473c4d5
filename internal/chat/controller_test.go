package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/user/memchat/internal/devserver"
	"github.com/user/memchat/internal/gateway"
	"github.com/user/memchat/internal/reducer"
	"github.com/user/memchat/internal/render"
	"github.com/user/memchat/internal/state"
	"github.com/user/memchat/internal/types"
)

type harness struct {
	ctl   *Controller
	store *state.HistoryStore
	view  *render.Recorder
}

func newHarness(t *testing.T, handler http.Handler) *harness {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	store := state.NewHistoryStore(state.NewMemoryBackend(), state.Options{})
	view := render.NewRecorder()
	manager := gateway.NewManager(gateway.Options{
		BaseURL: server.URL,
		Retry:   &gateway.RetryPolicy{MaxAttempts: 1, InitialDelay: time.Millisecond, Multiplier: 1, MaxDelay: time.Millisecond},
	})
	ctl := New(Options{Store: store, View: view, Manager: manager, Session: "session_a"})
	t.Cleanup(ctl.Close)
	return &harness{ctl: ctl, store: store, view: view}
}

func scripted(t *testing.T, script *devserver.Script) (*harness, *devserver.Server) {
	t.Helper()
	srv := devserver.NewServer(script, "")
	return newHarness(t, srv), srv
}

func wait(t *testing.T, ctl *Controller, id types.SessionID) {
	t.Helper()
	select {
	case <-ctl.Done(id):
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for turn on %s", id)
	}
}

// gated streams one frame, then holds the response open until gate closes.
func gated(gate chan struct{}) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event:[MODEL]\ndata:part\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
		fmt.Fprint(w, "event:[MODEL]\ndata: two\n\nevent:[COMPLETE]\ndata:\n\n")
	})
}

func TestSendMessageCompleteTurn(t *testing.T) {
	h, srv := scripted(t, &devserver.Script{Default: []devserver.Step{
		{Event: "[MODEL]", Data: "He"},
		{Event: "[MODEL]", Data: "llo"},
		{Event: "[COMPLETE]", Data: ""},
	}})
	ctx := context.Background()

	if err := h.ctl.SendMessage(ctx, "hi"); err != nil {
		t.Fatal(err)
	}
	wait(t, h.ctl, "session_a")

	msgs := h.store.List(ctx, "session_a")
	if len(msgs) != 2 {
		t.Fatalf("expected user and assistant messages, got %+v", msgs)
	}
	if msgs[0].Role != types.RoleUser || msgs[0].Content != "hi" || msgs[0].EventType != "" {
		t.Errorf("unexpected user message: %+v", msgs[0])
	}
	if msgs[1].Role != types.RoleAssistant || msgs[1].Content != "Hello" || msgs[1].EventType != types.EventModel {
		t.Errorf("unexpected assistant message: %+v", msgs[1])
	}
	if h.ctl.IsStreaming("session_a") {
		t.Error("expected streaming to end")
	}

	bubbles := h.view.Bubbles()
	if len(bubbles) != 2 || bubbles[1].Content != "Hello" {
		t.Errorf("unexpected transcript: %+v", bubbles)
	}
	if h.view.IndicatorVisible() {
		t.Error("expected indicator removed")
	}
	if got := srv.Received(); len(got) != 1 || got[0].SessionID != "session_a" || got[0].Prompt != "hi" {
		t.Errorf("unexpected requests: %+v", got)
	}
}

func TestSendMessageErrorFrame(t *testing.T) {
	h, _ := scripted(t, &devserver.Script{Default: []devserver.Step{
		{Event: "[ERROR]", Data: "rate limited"},
	}})
	ctx := context.Background()

	if err := h.ctl.SendMessage(ctx, "hi"); err != nil {
		t.Fatal(err)
	}
	wait(t, h.ctl, "session_a")

	msgs := h.store.List(ctx, "session_a")
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[1].EventType != types.EventError || msgs[1].Content != "rate limited" {
		t.Errorf("unexpected error message: %+v", msgs[1])
	}
	if h.ctl.IsStreaming("session_a") {
		t.Error("expected streaming to end after error")
	}
}

func TestSendMessageTransportFailure(t *testing.T) {
	h := newHarness(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no", http.StatusBadRequest)
	}))
	ctx := context.Background()

	if err := h.ctl.SendMessage(ctx, "hi"); err != nil {
		t.Fatalf("expected transport failure to be rendered, not returned: %v", err)
	}
	wait(t, h.ctl, "session_a")

	msgs := h.store.List(ctx, "session_a")
	if len(msgs) != 2 || msgs[1].Content != reducer.DefaultTransportText {
		t.Errorf("expected generic failure message persisted, got %+v", msgs)
	}
	if len(h.ctl.Live()) != 0 {
		t.Errorf("expected no live connections, got %v", h.ctl.Live())
	}
}

func TestSendMessageValidation(t *testing.T) {
	gate := make(chan struct{})
	t.Cleanup(func() { close(gate) })
	h := newHarness(t, gated(gate))
	ctx := context.Background()

	if err := h.ctl.SendMessage(ctx, "   "); !errors.Is(err, types.ErrEmptyPrompt) {
		t.Errorf("expected ErrEmptyPrompt, got %v", err)
	}
	if err := h.ctl.SendMessage(ctx, "first"); err != nil {
		t.Fatal(err)
	}
	if err := h.ctl.SendMessage(ctx, "second"); !errors.Is(err, types.ErrTurnInProgress) {
		t.Errorf("expected ErrTurnInProgress, got %v", err)
	}
	if err := h.ctl.Respond(ctx, Approve); !errors.Is(err, types.ErrTurnInProgress) {
		t.Errorf("expected ErrTurnInProgress for respond, got %v", err)
	}

	msgs := h.store.List(ctx, "session_a")
	if len(msgs) != 1 || msgs[0].Content != "first" {
		t.Errorf("expected only the first prompt stored, got %+v", msgs)
	}
	if live := h.ctl.Live(); len(live) != 1 {
		t.Errorf("expected one live connection, got %v", live)
	}
}

func TestBackgroundStreamKeepsRunning(t *testing.T) {
	gate := make(chan struct{})
	h := newHarness(t, gated(gate))
	ctx := context.Background()

	if err := h.ctl.SendMessage(ctx, "long task"); err != nil {
		t.Fatal(err)
	}
	if err := h.ctl.SwitchTo(ctx, "session_b"); err != nil {
		t.Fatal(err)
	}
	if !h.ctl.IsStreaming("session_a") {
		t.Fatal("expected session_a to keep streaming in the background")
	}

	close(gate)
	wait(t, h.ctl, "session_a")

	for _, b := range h.view.Bubbles() {
		if strings.Contains(b.Content, "part") || b.Content == "long task" {
			t.Errorf("expected session_a content kept off session_b's transcript, got %+v", b)
		}
	}

	msgs := h.store.List(ctx, "session_a")
	if len(msgs) != 2 || msgs[1].Content != "parttwo" {
		t.Fatalf("expected background reply persisted, got %+v", msgs)
	}

	if err := h.ctl.SwitchTo(ctx, "session_a"); err != nil {
		t.Fatal(err)
	}
	bubbles := h.view.Bubbles()
	if len(bubbles) != 2 || bubbles[1].Content != "parttwo" {
		t.Errorf("expected stored transcript after switching back, got %+v", bubbles)
	}
}

func TestSwitchBackReattachesLiveTurn(t *testing.T) {
	gate := make(chan struct{})
	h := newHarness(t, gated(gate))
	ctx := context.Background()

	if err := h.ctl.SendMessage(ctx, "long task"); err != nil {
		t.Fatal(err)
	}
	h.ctl.SwitchTo(ctx, "session_b")
	h.ctl.SwitchTo(ctx, "session_a")

	close(gate)
	wait(t, h.ctl, "session_a")

	bubbles := h.view.Bubbles()
	if len(bubbles) != 2 {
		t.Fatalf("expected user prompt and live reply, got %+v", bubbles)
	}
	if bubbles[0].Content != "long task" || bubbles[1].Content != "parttwo" {
		t.Errorf("unexpected transcript: %+v", bubbles)
	}
}

func TestCancelPersistsPartialReply(t *testing.T) {
	gate := make(chan struct{})
	t.Cleanup(func() { close(gate) })
	h := newHarness(t, gated(gate))
	ctx := context.Background()

	if err := h.ctl.SendMessage(ctx, "long task"); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for len(h.ctl.Transcript(ctx, "session_a")) < 2 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for the first frame")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if !h.ctl.Cancel("session_a") {
		t.Fatal("expected a live turn to cancel")
	}
	wait(t, h.ctl, "session_a")
	if h.ctl.IsStreaming("session_a") || len(h.ctl.Live()) != 0 {
		t.Errorf("expected no live stream after cancel")
	}
	msgs := h.store.List(ctx, "session_a")
	if len(msgs) != 2 || msgs[1].Content != "part" {
		t.Errorf("expected prompt and partial reply persisted, got %+v", msgs)
	}
	if h.ctl.Cancel("session_a") {
		t.Error("expected cancel of an idle session to report false")
	}
}

func TestSwitchToRendersSortedHistory(t *testing.T) {
	h, _ := scripted(t, nil)
	ctx := context.Background()

	h.store.Append(ctx, &types.Message{SessionID: "old", Role: types.RoleAssistant, Content: "answer", Timestamp: 20})
	h.store.Append(ctx, &types.Message{SessionID: "old", Role: types.RoleUser, Content: "question", Timestamp: 10})

	if err := h.ctl.SwitchTo(ctx, "old"); err != nil {
		t.Fatal(err)
	}
	bubbles := h.view.Bubbles()
	if len(bubbles) != 2 {
		t.Fatalf("expected 2 bubbles, got %d", len(bubbles))
	}
	if bubbles[0].Content != "question" || bubbles[1].Content != "answer" {
		t.Errorf("expected timestamp order, got %+v", bubbles)
	}
	if bubbles[1].Event != types.EventModel {
		t.Errorf("expected untagged assistant message shown as model, got %q", bubbles[1].Event)
	}
	if h.view.Clears() != 1 {
		t.Errorf("expected transcript cleared once, got %d", h.view.Clears())
	}
	if err := h.ctl.SwitchTo(ctx, " "); err == nil {
		t.Error("expected empty session id to be rejected")
	}
}

func TestRespondSendsDecision(t *testing.T) {
	h, srv := scripted(t, nil)
	ctx := context.Background()

	if err := h.ctl.Respond(ctx, Decision(9)); err == nil {
		t.Error("expected unknown decision to be rejected")
	}
	if err := h.ctl.Respond(ctx, Approve); err != nil {
		t.Fatal(err)
	}
	wait(t, h.ctl, "session_a")

	got := srv.Received()
	if len(got) != 1 || got[0].HumanResponse != 1 {
		t.Fatalf("expected humanResponse=1, got %+v", got)
	}
	msgs := h.store.List(ctx, "session_a")
	if len(msgs) != 2 || msgs[1].Content != "Tool call approved." {
		t.Errorf("unexpected transcript: %+v", msgs)
	}
}

func TestCreateAndDeleteSession(t *testing.T) {
	h, _ := scripted(t, nil)
	ctx := context.Background()

	if err := h.ctl.SendMessage(ctx, "keep me"); err != nil {
		t.Fatal(err)
	}
	wait(t, h.ctl, "session_a")

	created, err := h.ctl.CreateSession(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if created == "session_a" || h.ctl.Active() != created {
		t.Fatalf("expected a new active session, got %s", created)
	}
	if len(h.view.Bubbles()) != 0 {
		t.Errorf("expected empty transcript for the new session")
	}

	entries := h.ctl.Sessions(ctx)
	if len(entries) != 2 || !entries[0].Active || entries[0].Title != state.DefaultTitle {
		t.Errorf("expected pending new session first, got %+v", entries)
	}

	h.ctl.SwitchTo(ctx, "session_a")
	if err := h.ctl.DeleteSession(ctx, "session_a"); err != nil {
		t.Fatal(err)
	}
	if h.ctl.Active() == "session_a" {
		t.Error("expected deleting the active session to start a new one")
	}
	if msgs := h.store.List(ctx, "session_a"); len(msgs) != 0 {
		t.Errorf("expected session removed, got %+v", msgs)
	}
	if err := h.ctl.DeleteSession(ctx, "session_a"); err != nil {
		t.Errorf("expected repeated delete to be a no-op, got %v", err)
	}
}

func TestSearchAndTranscript(t *testing.T) {
	h, _ := scripted(t, nil)
	ctx := context.Background()

	if err := h.ctl.SendMessage(ctx, "Weather in Paris"); err != nil {
		t.Fatal(err)
	}
	wait(t, h.ctl, "session_a")

	results := h.ctl.Search(ctx, "paris")
	if len(results) != 1 || results[0].SessionID != "session_a" {
		t.Errorf("expected session_a found, got %+v", results)
	}

	transcript := h.ctl.Transcript(ctx, "session_a")
	if len(transcript) != 3 {
		t.Fatalf("expected prompt, thinking and reply, got %+v", transcript)
	}
	if transcript[2].Content != "You said: Weather in Paris" {
		t.Errorf("unexpected reply: %q", transcript[2].Content)
	}
}

func TestCloseDropsPartialTurn(t *testing.T) {
	gate := make(chan struct{})
	t.Cleanup(func() { close(gate) })
	h := newHarness(t, gated(gate))
	ctx := context.Background()

	if err := h.ctl.SendMessage(ctx, "long task"); err != nil {
		t.Fatal(err)
	}
	done := h.ctl.Done("session_a")
	h.ctl.Close()

	select {
	case <-done:
	default:
		t.Error("expected Done closed after Close")
	}
	if msgs := h.store.List(ctx, "session_a"); len(msgs) != 1 {
		t.Errorf("expected partial reply not persisted, got %+v", msgs)
	}
	if err := h.ctl.SendMessage(ctx, "again"); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	clears := h.view.Clears()
	if _, err := h.ctl.CreateSession(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed from CreateSession, got %v", err)
	}
	if h.view.Clears() != clears {
		t.Errorf("expected no redraw after Close")
	}
}
