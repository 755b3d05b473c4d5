package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/fatih/color"

	"github.com/user/memchat/internal/config"
	"github.com/user/memchat/internal/gateway"
	"github.com/user/memchat/internal/render"
	"github.com/user/memchat/internal/state"
)

// openStore builds the history store for the configured backend. The
// returned close func releases the backend.
func openStore(cfg *config.Config) (*state.HistoryStore, func(), error) {
	opts := state.Options{
		Key:         cfg.History.Key,
		Capacity:    cfg.History.Capacity,
		TitleLength: cfg.History.TitleLength,
	}
	switch cfg.History.Backend {
	case "memory":
		return state.NewHistoryStore(state.NewMemoryBackend(), opts), func() {}, nil
	case "sqlite":
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, nil, fmt.Errorf("create data dir: %w", err)
		}
		backend, err := state.NewSQLiteBackend(cfg.SQLitePath())
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if err := backend.Close(); err != nil {
				slog.Warn("failed to close history database", "error", err)
			}
		}
		return state.NewHistoryStore(backend, opts), closeFn, nil
	default:
		return state.NewHistoryStore(state.NewFileBackend(cfg.DataDir), opts), func() {}, nil
	}
}

func newManager(cfg *config.Config) *gateway.Manager {
	retry := gateway.DefaultRetryPolicy()
	retry.MaxAttempts = max(cfg.Streams.DialAttempts, 1)
	return gateway.NewManager(gateway.Options{
		BaseURL:       cfg.Server.BaseURL,
		StreamPath:    cfg.Server.StreamPath,
		MaxConcurrent: int64(cfg.Streams.MaxConcurrent),
		Retry:         retry,
	})
}

// liveOutput reports whether stdout is a terminal that can be repainted.
func liveOutput() bool {
	return !color.NoColor
}

// newTerminal renders to out. Output is repainted in place only when stdout
// is a terminal.
func newTerminal(cfg *config.Config, out io.Writer) *render.Terminal {
	tty := liveOutput()
	md := render.Markdown(render.Plain)
	if cfg.Render.Markdown && tty {
		glam, err := render.NewGlamour(cfg.Render.Width, cfg.Render.Color)
		if err != nil {
			slog.Warn("markdown rendering disabled", "error", err)
		} else {
			md = glam
		}
	}
	return render.NewTerminal(render.TerminalOptions{
		Out:      out,
		Color:    cfg.Render.Color && tty,
		Live:     tty,
		Width:    cfg.Render.Width,
		Markdown: md,
		Now:      time.Now,
	})
}
