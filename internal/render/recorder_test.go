package render

import (
	"testing"

	"github.com/user/memchat/internal/types"
)

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	r.ShowIndicator()
	id := r.AppendMessage(types.RoleAssistant, "a", types.EventModel)
	r.AppendToMessage(id, "b")
	r.AppendToMessage("missing", "x")
	r.RemoveIndicator()

	bubbles := r.Bubbles()
	if len(bubbles) != 1 || bubbles[0].Content != "ab" {
		t.Errorf("unexpected bubbles: %+v", bubbles)
	}
	if r.IndicatorVisible() || r.IndicatorShown() != 1 {
		t.Errorf("unexpected indicator state")
	}

	r.ClearTranscript()
	if len(r.Bubbles()) != 0 || r.Clears() != 1 {
		t.Errorf("expected transcript cleared")
	}
}
