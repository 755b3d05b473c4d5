// Package render draws the chat transcript.
package render

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/fatih/color"

	"github.com/user/memchat/internal/types"
)

// TerminalOptions configures a Terminal.
type TerminalOptions struct {
	Out   io.Writer
	Color bool
	// Live repaints a growing message in place with ANSI cursor movement.
	// Without it deltas are written as they arrive.
	Live     bool
	Width    int
	Markdown Markdown
	Now      func() time.Time
}

type block struct {
	id      types.MessageID
	role    types.Role
	event   types.EventType
	content string
	at      time.Time
}

// Terminal renders the transcript to a text stream.
type Terminal struct {
	mu       sync.Mutex
	out      io.Writer
	live     bool
	width    int
	markdown Markdown
	now      func() time.Time

	blocks    map[types.MessageID]*block
	last      *block
	lastLines int
	pending   bool
	indicator bool
	next      int

	user, dim *color.Color
	tags      map[types.EventKind]*color.Color
}

// NewTerminal creates a Terminal.
func NewTerminal(opts TerminalOptions) *Terminal {
	if opts.Width <= 0 {
		opts.Width = 100
	}
	if opts.Markdown == nil {
		opts.Markdown = Plain
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	t := &Terminal{
		out:      opts.Out,
		live:     opts.Live,
		width:    opts.Width,
		markdown: opts.Markdown,
		now:      opts.Now,
		blocks:   make(map[types.MessageID]*block),
		user:     color.New(color.FgCyan, color.Bold),
		dim:      color.New(color.FgHiBlack),
		tags: map[types.EventKind]*color.Color{
			types.KindModel:     color.New(color.FgGreen, color.Bold),
			types.KindTool:      color.New(color.FgYellow),
			types.KindThinking:  color.New(color.FgHiBlack, color.Italic),
			types.KindContext:   color.New(color.FgBlue),
			types.KindInterrupt: color.New(color.FgMagenta, color.Bold),
			types.KindError:     color.New(color.FgRed, color.Bold),
			types.KindTimeout:   color.New(color.FgRed),
			types.KindUnknown:   color.New(color.FgWhite),
		},
	}
	if !opts.Color {
		t.user.DisableColor()
		t.dim.DisableColor()
		for _, c := range t.tags {
			c.DisableColor()
		}
	}
	return t
}

func (t *Terminal) AppendMessage(role types.Role, content string, event types.EventType) types.MessageID {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clearIndicator()

	t.next++
	b := &block{
		id:      types.MessageID(fmt.Sprintf("term-%d", t.next)),
		role:    role,
		event:   event,
		content: content,
		at:      t.now(),
	}
	t.blocks[b.id] = b
	t.print(b)
	return b.id
}

func (t *Terminal) AppendToMessage(id types.MessageID, delta string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.blocks[id]
	if !ok {
		return
	}
	b.content += delta
	t.clearIndicator()

	switch {
	case t.live && b == t.last:
		fmt.Fprintf(t.out, "\x1b[%dA\x1b[J", t.lastLines)
		t.print(b)
	case t.live:
		t.print(b)
	case b == t.last:
		fmt.Fprint(t.out, delta)
	default:
		t.endLine()
		fmt.Fprintf(t.out, "%s %s\n%s", t.header(b), t.dim.Sprint("(cont.)"), delta)
		t.last = b
		t.pending = true
	}
}

// Break tells the terminal that something else wrote to the screen, such as
// echoed input or a notice. Live repaint moves the cursor up by the line count
// of its own last block, so after a Break the next delta prints the block
// again below instead of repainting.
func (t *Terminal) Break() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.endLine()
	if t.live {
		t.last = nil
		t.lastLines = 0
		t.indicator = false
	}
}

// Flush terminates a message left open by plain output.
func (t *Terminal) Flush() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.endLine()
}

func (t *Terminal) endLine() {
	if t.pending {
		fmt.Fprint(t.out, "\n")
		t.pending = false
	}
}

func (t *Terminal) ShowIndicator() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.indicator || !t.live {
		return
	}
	fmt.Fprintln(t.out, t.dim.Sprint("thinking..."))
	t.indicator = true
}

func (t *Terminal) RemoveIndicator() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clearIndicator()
}

func (t *Terminal) clearIndicator() {
	if !t.indicator {
		return
	}
	fmt.Fprint(t.out, "\x1b[1A\x1b[2K")
	t.indicator = false
}

func (t *Terminal) ClearTranscript() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.live {
		fmt.Fprint(t.out, "\x1b[2J\x1b[H")
	} else {
		t.endLine()
		fmt.Fprintln(t.out, t.dim.Sprint(strings.Repeat("─", 40)))
	}
	t.blocks = make(map[types.MessageID]*block)
	t.last = nil
	t.lastLines = 0
	t.pending = false
	t.indicator = false
}

func (t *Terminal) header(b *block) string {
	clock := t.dim.Sprint(b.at.Format("15:04"))
	if b.role == types.RoleUser {
		return fmt.Sprintf("%s %s", clock, t.user.Sprint("you"))
	}
	label := b.event.Label()
	if label == "" {
		label = types.EventModel.Label()
	}
	return fmt.Sprintf("%s %s", clock, t.tags[b.event.Kind()].Sprint(label))
}

func (t *Terminal) body(b *block) string {
	if b.role == types.RoleUser {
		return b.content
	}
	switch b.event.Kind() {
	case types.KindModel:
		if !t.live {
			return b.content
		}
		return t.markdown(b.content)
	case types.KindTool, types.KindInterrupt:
		if LooksLikeHTML(b.content) {
			return t.markdown(HTMLToMarkdown(b.content))
		}
		return b.content
	case types.KindThinking:
		return t.dim.Sprint(b.content)
	default:
		return b.content
	}
}

// print writes a whole block. Live output ends every block with a newline so
// it can be repainted; plain output leaves the line open for deltas.
func (t *Terminal) print(b *block) {
	t.endLine()
	text := strings.TrimSuffix(t.header(b)+"\n"+t.body(b), "\n")
	t.last = b
	if !t.live {
		fmt.Fprint(t.out, text)
		t.pending = true
		return
	}
	fmt.Fprint(t.out, text+"\n")
	t.lastLines = visualLines(text, t.width)
}

var ansi = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)

// visualLines counts the terminal rows text occupies at width, ignoring
// escape sequences.
func visualLines(text string, width int) int {
	text = strings.TrimSuffix(ansi.ReplaceAllString(text, ""), "\n")
	n := 0
	for _, line := range strings.Split(text, "\n") {
		runes := utf8.RuneCountInString(line)
		if runes == 0 {
			n++
			continue
		}
		n += (runes + width - 1) / width
	}
	return n
}
