// internal/types/ids_test.go
package types

import (
	"regexp"
	"strings"
	"testing"
)

var sessionIDPattern = regexp.MustCompile(`^session_\d{13}_[0-9a-z]{9}$`)

func TestNewSessionID(t *testing.T) {
	id := NewSessionID()
	if !sessionIDPattern.MatchString(string(id)) {
		t.Errorf("unexpected session id format: %s", id)
	}
	if other := NewSessionID(); other == id {
		t.Errorf("expected distinct ids, got %s twice", id)
	}
}

func TestNewMessageID(t *testing.T) {
	id := NewMessageID()
	if !strings.HasPrefix(string(id), "msg_") {
		t.Errorf("expected msg_ prefix, got %s", id)
	}
	if len(string(id)) != len("msg_")+36 {
		t.Errorf("expected UUID suffix, got %s", id)
	}
}
