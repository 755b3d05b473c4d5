package types

import (
	"encoding/json"
	"strings"
)

// EventType is the wire name of a stream event, e.g. "[MODEL]". The empty
// value marks plain user input and encodes as JSON null.
type EventType string

const (
	EventModel     EventType = "[MODEL]"
	EventTool      EventType = "[TOOL]"
	EventThinking  EventType = "[THINKING]"
	EventContext   EventType = "[CONTEXT]"
	EventInterrupt EventType = "[INTERRUPT]"
	EventComplete  EventType = "[COMPLETE]"
	EventError     EventType = "[ERROR]"
	EventTimeout   EventType = "[TIMEOUT]"
)

// EventKind is the closed set of event categories the reducer understands.
type EventKind int

const (
	KindUnknown EventKind = iota
	KindModel
	KindTool
	KindThinking
	KindContext
	KindInterrupt
	KindComplete
	KindError
	KindTimeout
)

var kindNames = map[EventKind]string{
	KindUnknown:   "unknown",
	KindModel:     "model",
	KindTool:      "tool",
	KindThinking:  "thinking",
	KindContext:   "context",
	KindInterrupt: "interrupt",
	KindComplete:  "complete",
	KindError:     "error",
	KindTimeout:   "timeout",
}

func (k EventKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether the kind ends a turn.
func (k EventKind) Terminal() bool {
	return k == KindComplete || k == KindError || k == KindTimeout
}

// Classify maps a wire event name to its kind. Names are matched exactly;
// anything else is KindUnknown.
func Classify(name string) EventKind {
	switch EventType(name) {
	case EventModel:
		return KindModel
	case EventTool:
		return KindTool
	case EventThinking:
		return KindThinking
	case EventContext:
		return KindContext
	case EventInterrupt:
		return KindInterrupt
	case EventComplete:
		return KindComplete
	case EventError:
		return KindError
	case EventTimeout:
		return KindTimeout
	default:
		return KindUnknown
	}
}

func (e EventType) Kind() EventKind {
	return Classify(string(e))
}

// Label is the tag shown next to a message, without brackets.
func (e EventType) Label() string {
	return strings.Trim(string(e), "[]")
}

func (e EventType) MarshalJSON() ([]byte, error) {
	if e == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(e))
}

func (e *EventType) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*e = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*e = EventType(s)
	return nil
}
