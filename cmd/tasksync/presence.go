package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskflow/tasksync/internal/api"
	"github.com/taskflow/tasksync/internal/config"
	"github.com/taskflow/tasksync/internal/presence"
)

func init() {
	rootCmd.AddCommand(presenceCmd)
}

var presenceCmd = &cobra.Command{
	Use:   "presence",
	Short: "Fetch and print the current presence roster",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadAndValidate(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger := newLogger(cfg.Logging.Level)

		if cfg.Server.RestURL == "" {
			return fmt.Errorf("server.rest_url is required for the presence command")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		client := api.NewClient(cfg.Server.RestURL, cfg.Server.Token, api.WithLogger(logger))
		users, err := client.OnlineUsers(ctx, cfg.Presence.ProjectID)
		if err != nil {
			return fmt.Errorf("fetch online users: %w", err)
		}

		if len(users) == 0 {
			fmt.Println("Nobody is online.")
			return nil
		}

		for _, u := range users {
			c := infoColor
			if u.Status == presence.StatusOnline {
				c = successColor
			}
			name := u.DisplayName
			if name == "" {
				name = u.UserID
			}
			c.Printf("%-8s", u.Status)
			fmt.Printf(" %s", name)
			if !u.LastSeen.IsZero() {
				dimColor.Printf("  last seen %s", u.LastSeen.Format(time.RFC3339))
			}
			fmt.Println()
		}
		return nil
	},
}
