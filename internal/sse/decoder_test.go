package sse

import (
	"errors"
	"strings"
	"testing"
)

func decodeAll(t *testing.T, input string) []Frame {
	t.Helper()
	var frames []Frame
	err := Decode(strings.NewReader(input), func(f Frame) error {
		frames = append(frames, f)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return frames
}

func TestDecodeNamedEvents(t *testing.T) {
	input := "event:[MODEL]\ndata:He\n\nevent:[MODEL]\ndata:llo\n\nevent:[COMPLETE]\ndata:\n\n"
	frames := decodeAll(t, input)
	if len(frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(frames))
	}
	if frames[0].Event != "[MODEL]" || frames[0].Data != "He" {
		t.Errorf("unexpected first frame: %+v", frames[0])
	}
	if frames[1].Data != "llo" {
		t.Errorf("expected llo, got %q", frames[1].Data)
	}
	if frames[2].Event != "[COMPLETE]" || frames[2].Data != "" {
		t.Errorf("unexpected terminal frame: %+v", frames[2])
	}
}

func TestDecodeKeepsPayloadWhitespace(t *testing.T) {
	// Only the single space after the colon is part of the framing.
	frames := decodeAll(t, "event: [MODEL]\ndata:  world \n\n")
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	if frames[0].Data != " world " {
		t.Errorf("expected %q, got %q", " world ", frames[0].Data)
	}
}

func TestDecodeMultiLineData(t *testing.T) {
	frames := decodeAll(t, "event:[MODEL]\ndata:```go\ndata:fmt.Println()\ndata:```\n\n")
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	if want := "```go\nfmt.Println()\n```"; frames[0].Data != want {
		t.Errorf("expected %q, got %q", want, frames[0].Data)
	}
}

func TestDecodeCRLFCommentsAndFields(t *testing.T) {
	input := ": keep-alive\r\nid: 7\r\nretry: 1500\r\nevent: [TOOL]\r\ndata: weather\r\n\r\n"
	frames := decodeAll(t, input)
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	f := frames[0]
	if f.Event != "[TOOL]" || f.Data != "weather" || f.ID != "7" || f.Retry != 1500 {
		t.Errorf("unexpected frame: %+v", f)
	}
}

func TestDecodeDefaultEventAndTrailingFrame(t *testing.T) {
	frames := decodeAll(t, "data: plain\n\nevent: [COMPLETE]\ndata: done")
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if frames[0].Event != "message" {
		t.Errorf("expected default event name, got %q", frames[0].Event)
	}
	if frames[1].Event != "[COMPLETE]" || frames[1].Data != "done" {
		t.Errorf("expected trailing frame flushed at EOF, got %+v", frames[1])
	}
}

func TestDecodeStopsOnHandlerError(t *testing.T) {
	stop := errors.New("stop")
	calls := 0
	err := Decode(strings.NewReader("data: a\n\ndata: b\n\n"), func(Frame) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) {
		t.Errorf("expected handler error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDecodeIgnoresBlankLinesWithoutFields(t *testing.T) {
	frames := decodeAll(t, "\n\n: ping\n\n")
	if len(frames) != 0 {
		t.Errorf("expected no frames, got %d", len(frames))
	}
}
