package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/user/memchat/internal/sse"
	"github.com/user/memchat/internal/types"
)

var errTerminal = errors.New("terminal frame")

// Connection is one live stream for a session.
type Connection struct {
	SessionID types.SessionID
	URL       string

	ctx     context.Context
	cancel  context.CancelFunc
	release func()
	once    sync.Once
}

// Closed reports whether the connection has been disposed or has finished.
func (c *Connection) Closed() bool {
	return c.ctx.Err() != nil
}

func (c *Connection) close() {
	c.once.Do(func() {
		c.cancel()
		c.release()
	})
}

// run dials, then decodes frames until a terminal frame, a failure, or
// disposal. Nothing is delivered once the connection is closed.
func (c *Connection) run(dialer Dialer, retry *RetryPolicy, handler Handler) {
	var body io.ReadCloser
	err := retry.Execute(c.ctx, func() error {
		b, err := dialer.Connect(c.ctx, c.URL)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		if !c.Closed() {
			handler(c, Event{Err: &types.TransportError{SessionID: c.SessionID, Op: "dial", Err: err}})
		}
		return
	}
	defer body.Close()

	err = sse.Decode(body, func(f sse.Frame) error {
		if c.Closed() {
			return c.ctx.Err()
		}
		handler(c, Event{Frame: f})
		if types.Classify(f.Event).Terminal() {
			return errTerminal
		}
		return nil
	})
	if c.Closed() || errors.Is(err, errTerminal) {
		return
	}
	if err == nil {
		err = fmt.Errorf("stream ended without a terminal event: %w", io.ErrUnexpectedEOF)
	}
	handler(c, Event{Err: &types.TransportError{SessionID: c.SessionID, Op: "read", Err: err}})
}
