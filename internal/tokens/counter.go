// Package tokens estimates how many model tokens stored history occupies.
package tokens

import (
	"log/slog"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"github.com/user/memchat/internal/types"
)

// perMessage is the framing overhead counted for every chat message.
const perMessage = 4

// Counter counts tokens with a tiktoken encoding, or estimates four runes
// per token when no encoding could be loaded.
type Counter struct {
	enc *tiktoken.Tiktoken
}

// NewCounter selects the encoding for model, falling back to cl100k_base.
func NewCounter(model string) *Counter {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			slog.Warn("tokenizer unavailable, estimating token counts", "model", model, "error", err)
			return &Counter{}
		}
	}
	return &Counter{enc: enc}
}

// Exact reports whether counts come from a real tokenizer.
func (c *Counter) Exact() bool {
	return c.enc != nil
}

// Count returns the token count for text.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	if c.enc != nil {
		return len(c.enc.Encode(text, nil, nil))
	}
	return (utf8.RuneCountInString(text) + 3) / 4
}

// Messages returns the token count of a transcript including per-message
// overhead.
func (c *Counter) Messages(msgs []types.Message) int {
	total := 0
	for _, m := range msgs {
		total += perMessage + c.Count(m.Content)
	}
	return total
}
