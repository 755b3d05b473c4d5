package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/memchat/internal/render"
	"github.com/user/memchat/internal/scheduler"
	"github.com/user/memchat/internal/tokens"
	"github.com/user/memchat/internal/types"
)

var (
	showTokens bool
	showModel  string
	pruneDays  int
)

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd, historyShowCmd, historySearchCmd, historyRmCmd, historyPruneCmd)
	historyShowCmd.Flags().BoolVar(&showTokens, "tokens", false, "print an estimated token count")
	historyShowCmd.Flags().StringVar(&showModel, "model", "gpt-4", "tokenizer model for --tokens")
	historyPruneCmd.Flags().IntVar(&pruneDays, "days", 0, "remove sessions idle for this many days (default: history.retention_days)")
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect and manage stored chat history",
}

func printSummaries(list []types.SessionSummary) error {
	if len(list) == 0 {
		fmt.Println("No sessions found.")
		return nil
	}
	now := time.Now()
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tMESSAGES\tLAST ACTIVE")
	for _, s := range list {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", s.SessionID, s.Title, s.Messages, render.Ago(s.LastTimestamp, now))
	}
	return w.Flush()
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, most recent first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)
		store, closeStore, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer closeStore()
		return printSummaries(store.Sessions(context.Background()))
	},
}

var historySearchCmd = &cobra.Command{
	Use:   "search <text>",
	Short: "List sessions containing text (case-insensitive)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)
		store, closeStore, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer closeStore()
		return printSummaries(store.Search(context.Background(), strings.Join(args, " ")))
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Print a session transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)
		store, closeStore, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		msgs := store.List(context.Background(), types.SessionID(args[0]))
		if len(msgs) == 0 {
			return fmt.Errorf("session %s not found", args[0])
		}
		sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].Timestamp < msgs[j].Timestamp })

		view := newTerminal(cfg, os.Stdout)
		for _, m := range msgs {
			event := m.EventType
			if m.Role == types.RoleAssistant && event == "" {
				event = types.EventModel
			}
			view.AppendMessage(m.Role, m.Content, event)
		}
		view.Flush()

		if showTokens {
			counter := tokens.NewCounter(showModel)
			kind := "exact"
			if !counter.Exact() {
				kind = "estimated"
			}
			fmt.Printf("%d messages, %d tokens (%s)\n", len(msgs), counter.Messages(msgs), kind)
		}
		return nil
	},
}

var historyRmCmd = &cobra.Command{
	Use:   "rm <session-id>...",
	Short: "Delete sessions",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)
		store, closeStore, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		for _, id := range args {
			if err := store.Remove(context.Background(), types.SessionID(id)); err != nil {
				return fmt.Errorf("remove %s: %w", id, err)
			}
			fmt.Printf("Removed %s\n", id)
		}
		return nil
	},
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove sessions with no recent activity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)
		days := pruneDays
		if days == 0 {
			days = cfg.History.RetentionDays
		}
		if days <= 0 {
			return fmt.Errorf("no retention configured: pass --days or set history.retention_days")
		}

		store, closeStore, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		retention := scheduler.NewRetention(store, time.Duration(days)*24*time.Hour, cfg.History.RetentionSchedule)
		n, err := retention.RunOnce(context.Background())
		if err != nil {
			return err
		}
		fmt.Printf("Pruned %d sessions.\n", n)
		return nil
	},
}
