package main

import "testing"

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line string
		ok   bool
		name string
		arg  string
	}{
		{"hello there", false, "", ""},
		{"/new", true, "new", ""},
		{"/cancel", true, "cancel", ""},
		{"  /Switch  session_1_abc ", true, "switch", "session_1_abc"},
		{"/search weather in paris", true, "search", "weather in paris"},
	}
	for _, tt := range tests {
		cmd, ok := parseCommand(tt.line)
		if ok != tt.ok || cmd.name != tt.name || cmd.arg != tt.arg {
			t.Errorf("parseCommand(%q): expected (%q, %q, %v), got (%q, %q, %v)",
				tt.line, tt.name, tt.arg, tt.ok, cmd.name, cmd.arg, ok)
		}
	}
}
