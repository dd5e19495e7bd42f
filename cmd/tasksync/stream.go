package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/taskflow/tasksync/internal/api"
	"github.com/taskflow/tasksync/internal/cache"
	"github.com/taskflow/tasksync/internal/config"
	"github.com/taskflow/tasksync/internal/connection"
	"github.com/taskflow/tasksync/internal/notify"
	"github.com/taskflow/tasksync/internal/presence"
	"github.com/taskflow/tasksync/internal/router"
)

func init() {
	rootCmd.AddCommand(streamCmd)
}

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Connect and stream live sync events to the console",
	Long: "Opens the WebSocket session and prints routed notifications and\n" +
		"cache invalidations as they happen. Press Enter to register an\n" +
		"activity signal; Ctrl-C to disconnect.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadAndValidate(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger := newLogger(cfg.Logging.Level)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// Notification chain: console sink behind the de-duplication
		// window.
		notifier := notify.NewDeduper(consoleNotifier(), cfg.Notify.DedupTTL)

		store := cache.NewStore(logger)
		store.OnInvalidate(printInvalidation)

		mgrCfg := connection.ManagerConfig{
			BaseURL:                 cfg.Server.WSURL,
			Token:                   cfg.Server.Token,
			AutoReconnect:           cfg.AutoReconnectEnabled(),
			ReconnectInterval:       cfg.Sync.ReconnectInterval,
			MaxReconnectAttempts:    cfg.Sync.MaxReconnectAttempts,
			BackoffCap:              cfg.Sync.BackoffCap,
			InitialConnectDelay:     cfg.Sync.InitialConnectDelay,
			HeartbeatInterval:       cfg.Sync.HeartbeatInterval,
			WriteTimeout:            cfg.Sync.WriteTimeout,
			TransportNoticeInterval: cfg.Notify.TransportNoticeInterval,
		}
		mgr := connection.NewManager(mgrCfg, logger, connection.WithNotifier(notifier))

		tracker := presence.NewTracker(presence.Config{
			LocalUserID:       cfg.Server.UserID,
			ProjectID:         cfg.Presence.ProjectID,
			HeartbeatInterval: cfg.Presence.HeartbeatInterval,
			AwayTimeout:       cfg.Presence.AwayTimeout,
		}, mgr, mgr.States(), logger)

		rtr := router.NewRouter(router.Config{
			LocalUserID: cfg.Server.UserID,
		}, mgr.Messages(), store, tracker, notifier, logger)

		if err := mgr.Start(ctx); err != nil {
			return fmt.Errorf("start connection manager: %w", err)
		}
		if err := tracker.Start(ctx); err != nil {
			return fmt.Errorf("start presence tracker: %w", err)
		}
		if err := rtr.Start(ctx); err != nil {
			return fmt.Errorf("start router: %w", err)
		}

		// Seed the roster before events start mutating it. Best effort;
		// the stream works without it.
		if cfg.Server.RestURL != "" {
			apiClient := api.NewClient(cfg.Server.RestURL, cfg.Server.Token, api.WithLogger(logger))
			bootCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			if err := tracker.Bootstrap(bootCtx, apiClient); err != nil {
				logger.Warn("presence bootstrap failed", "error", err)
			}
			cancel()
		}

		g, gctx := errgroup.WithContext(ctx)

		// Stdin lines count as user activity.
		g.Go(func() error {
			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				tracker.Signal()
			}
			return nil
		})

		// Periodic stats line.
		g.Go(func() error {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					cs := mgr.Stats()
					rs := rtr.Stats()
					logger.Info("stats",
						"state", cs.State,
						"reconnect_attempts", cs.ReconnectAttempts,
						"received", rs.Received,
						"invalidated", rs.Invalidated,
						"notified", rs.Notified,
						"roster", tracker.Stats().RosterSize,
						"cached", store.Len(),
					)
				}
			}
		})

		<-gctx.Done()
		logger.Info("shutting down")

		// Orderly teardown: offline broadcast first, while the transport
		// may still be up, then the clean close.
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		tracker.Stop(stopCtx)
		mgr.Disconnect()
		rtr.Stop(stopCtx)

		return nil
	},
}
