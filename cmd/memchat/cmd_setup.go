package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/memchat/internal/config"
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		scanner := bufio.NewScanner(os.Stdin)

		fmt.Println("memchat setup")
		fmt.Println("Press Enter to accept the default value shown in brackets.")
		fmt.Println()

		cfg.Server.BaseURL = prompt(scanner, "Agent server URL", cfg.Server.BaseURL)
		cfg.Server.StreamPath = prompt(scanner, "Stream path", cfg.Server.StreamPath)
		cfg.History.Backend = prompt(scanner, "History backend (file, sqlite, memory)", cfg.History.Backend)
		cfg.History.Capacity = promptInt(scanner, "History capacity (messages)", cfg.History.Capacity)
		cfg.History.RetentionDays = promptInt(scanner, "Delete sessions idle for N days (0 keeps all)", cfg.History.RetentionDays)

		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := config.Save(cfgPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		fmt.Println()
		fmt.Println("Configuration saved to", cfgPath)
		return nil
	},
}

// prompt displays a labeled prompt with a default value and reads user input.
// If the user enters nothing, the default is returned.
func prompt(scanner *bufio.Scanner, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", label, defaultVal)
	} else {
		fmt.Printf("%s: ", label)
	}
	if scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input != "" {
			return input
		}
	}
	return defaultVal
}

func promptInt(scanner *bufio.Scanner, label string, defaultVal int) int {
	s := prompt(scanner, label, strconv.Itoa(defaultVal))
	n, err := strconv.Atoi(s)
	if err != nil {
		fmt.Printf("  not a number, keeping %d\n", defaultVal)
		return defaultVal
	}
	return n
}
