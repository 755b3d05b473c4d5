package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/memchat/internal/devserver"
)

var (
	devAddr   string
	devScript string
)

func init() {
	devserverCmd.Flags().StringVar(&devAddr, "listen", "127.0.0.1:8080", "address to listen on")
	devserverCmd.Flags().StringVar(&devScript, "script", "", "JSON script of frames to replay (default: echo)")
	rootCmd.AddCommand(devserverCmd)
}

var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Serve a scripted stream endpoint for local testing",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)

		script := devserver.DefaultScript()
		if devScript != "" {
			s, err := devserver.LoadScript(devScript)
			if err != nil {
				return err
			}
			script = s
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		httpServer := &http.Server{
			Addr:    devAddr,
			Handler: devserver.NewServer(script, cfg.Server.StreamPath),
		}
		errCh := make(chan error, 1)
		go func() {
			slog.Info("dev server started", "listen", devAddr, "path", cfg.Server.StreamPath)
			fmt.Printf("Serving %s on http://%s\n", cfg.Server.StreamPath, devAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("dev server: %w", err)
			}
			return nil
		case <-ctx.Done():
		}

		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	},
}
