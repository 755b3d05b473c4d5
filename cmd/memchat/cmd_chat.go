package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/user/memchat/internal/chat"
	"github.com/user/memchat/internal/render"
	"github.com/user/memchat/internal/scheduler"
	"github.com/user/memchat/internal/types"
)

var chatSession string

func init() {
	chatCmd.Flags().StringVar(&chatSession, "session", "", "resume this session id")
	rootCmd.AddCommand(chatCmd)
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat",
	Args:  cobra.NoArgs,
	RunE:  runChat,
}

const chatHelp = `Commands:
  /new               start a new session
  /switch <id>       switch to a session (a running turn keeps streaming)
  /cancel            stop the running turn (also Ctrl-C)
  /sessions          list sessions
  /search <text>     find sessions mentioning text
  /delete [id]       delete a session (default: current)
  /approve /edit /reject
                     answer a tool approval request
  /quit              exit`

func runChat(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	defer setupLiveLogging(cfg, liveOutput())()

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	if cfg.History.RetentionDays > 0 {
		retention := scheduler.NewRetention(store, time.Duration(cfg.History.RetentionDays)*24*time.Hour, cfg.History.RetentionSchedule)
		if _, err := retention.RunOnce(cmd.Context()); err != nil {
			fmt.Fprintf(os.Stderr, "Retention sweep failed: %v\n", err)
		}
		if err := retention.Start(); err != nil {
			return err
		}
		defer retention.Stop()
	}

	view := newTerminal(cfg, os.Stdout)
	ctl := chat.New(chat.Options{
		Store:   store,
		View:    view,
		Manager: newManager(cfg),
		Session: types.SessionID(chatSession),
	})
	defer ctl.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	ctl.Reload(ctx)
	notice := color.New(color.FgYellow)
	fmt.Println(notice.Sprintf("session %s (type /help for commands)", ctl.Active()))

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	// The prompt stays live while a turn streams; its end only reprints "> ".
	showPrompt := true
	for {
		if showPrompt {
			fmt.Print("> ")
			showPrompt = false
		}
		var turnDone <-chan struct{}
		if active := ctl.Active(); ctl.IsStreaming(active) {
			turnDone = ctl.Done(active)
		}

		select {
		case sig := <-sigs:
			if sig == syscall.SIGINT && ctl.Cancel(ctl.Active()) {
				view.Break()
				fmt.Println(notice.Sprint("turn cancelled"))
				showPrompt = true
				continue
			}
			fmt.Println()
			return nil
		case <-turnDone:
			view.Break()
			showPrompt = true
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			view.Break()
			quit, err := handleLine(ctx, ctl, line)
			if err != nil {
				var verr *types.ValidationError
				if errors.As(err, &verr) {
					fmt.Println(notice.Sprint(verr.Reason))
				} else {
					fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				}
			}
			if quit {
				return nil
			}
			view.Break()
			showPrompt = !ctl.IsStreaming(ctl.Active())
		}
	}
}

// command is one parsed REPL line.
type command struct {
	name string
	arg  string
}

// parseCommand splits a slash command from its argument. Lines without a
// leading slash are prompts and return ok=false.
func parseCommand(line string) (command, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return command{}, false
	}
	name, arg, _ := strings.Cut(line[1:], " ")
	return command{name: strings.ToLower(name), arg: strings.TrimSpace(arg)}, true
}

func handleLine(ctx context.Context, ctl *chat.Controller, line string) (bool, error) {
	cmd, ok := parseCommand(line)
	if !ok {
		return false, ctl.SendMessage(ctx, line)
	}

	switch cmd.name {
	case "quit", "exit":
		return true, nil
	case "help":
		fmt.Println(chatHelp)
	case "new":
		id, err := ctl.CreateSession(ctx)
		if err != nil {
			return false, err
		}
		fmt.Printf("session %s\n", id)
	case "switch":
		return false, ctl.SwitchTo(ctx, types.SessionID(cmd.arg))
	case "cancel":
		if !ctl.Cancel(ctl.Active()) {
			fmt.Println("No turn is running.")
		}
	case "sessions":
		now := time.Now()
		live := make(map[types.SessionID]bool)
		for _, id := range ctl.Live() {
			live[id] = true
		}
		for _, e := range ctl.Sessions(ctx) {
			marker := " "
			if e.Active {
				marker = "*"
			}
			if live[e.SessionID] {
				marker += "~"
			} else {
				marker += " "
			}
			when := "-"
			if e.LastTimestamp > 0 {
				when = render.Ago(e.LastTimestamp, now)
			}
			fmt.Printf("%s %s  %s  (%s)\n", marker, e.SessionID, e.Title, when)
		}
	case "search":
		results := ctl.Search(ctx, cmd.arg)
		if len(results) == 0 {
			fmt.Println("No matching sessions.")
		}
		for _, s := range results {
			fmt.Printf("  %s  %s\n", s.SessionID, s.Title)
		}
	case "delete":
		id := types.SessionID(cmd.arg)
		if id == "" {
			id = ctl.Active()
		}
		if err := ctl.DeleteSession(ctx, id); err != nil {
			return false, err
		}
		fmt.Printf("deleted %s\n", id)
	case "approve":
		return false, ctl.Respond(ctx, chat.Approve)
	case "edit":
		return false, ctl.Respond(ctx, chat.Edit)
	case "reject":
		return false, ctl.Respond(ctx, chat.Reject)
	default:
		return false, &types.ValidationError{Reason: fmt.Sprintf("unknown command /%s", cmd.name)}
	}
	return false, nil
}
