package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/user/memchat/internal/chat"
	"github.com/user/memchat/internal/types"
)

var askSession string

func init() {
	askCmd.Flags().StringVar(&askSession, "session", "", "session id to continue (default: a new session)")
	rootCmd.AddCommand(askCmd)
}

var askCmd = &cobra.Command{
	Use:   "ask <prompt>",
	Short: "Send one prompt and stream the reply",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		defer setupLiveLogging(cfg, liveOutput())()

		store, closeStore, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		view := newTerminal(cfg, os.Stdout)
		ctl := chat.New(chat.Options{
			Store:   store,
			View:    view,
			Manager: newManager(cfg),
			Session: types.SessionID(askSession),
		})
		defer ctl.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		id := ctl.Active()
		if err := ctl.SendMessage(ctx, strings.Join(args, " ")); err != nil {
			return err
		}
		select {
		case <-ctl.Done(id):
		case <-ctx.Done():
		}
		view.Flush()

		transcript := ctl.Transcript(ctx, id)
		if n := len(transcript); n > 0 {
			switch transcript[n-1].EventType {
			case types.EventError, types.EventTimeout:
				return fmt.Errorf("turn ended with %s", transcript[n-1].EventType.Label())
			}
		}
		fmt.Fprintf(os.Stderr, "session %s\n", id)
		return nil
	},
}
