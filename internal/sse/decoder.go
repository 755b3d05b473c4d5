// Package sse decodes text/event-stream bodies into frames.
package sse

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

const maxLineSize = 1 << 20

// Frame is one dispatched server-sent event.
type Frame struct {
	Event string
	Data  string
	ID    string
	Retry int
}

// Handler is called for each frame. Returning an error stops decoding.
type Handler func(Frame) error

// Decode reads r until EOF, calling fn for every dispatched frame. A frame
// is dispatched on a blank line; a pending frame at EOF is flushed too.
func Decode(r io.Reader, fn Handler) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var (
		frame   Frame
		data    []string
		pending bool
	)
	dispatch := func() error {
		if !pending {
			return nil
		}
		frame.Data = strings.Join(data, "\n")
		if frame.Event == "" {
			frame.Event = "message"
		}
		err := fn(frame)
		frame, data, pending = Frame{}, nil, false
		return err
	}

	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == "" {
			if err := dispatch(); err != nil {
				return err
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			frame.Event = value
			pending = true
		case "data":
			data = append(data, value)
			pending = true
		case "id":
			frame.ID = value
		case "retry":
			if ms, err := strconv.Atoi(value); err == nil {
				frame.Retry = ms
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return dispatch()
}
