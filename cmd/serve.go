package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pltanton/insightloop/internal/cron"
	"github.com/pltanton/insightloop/internal/logger"
	"github.com/pltanton/insightloop/internal/webui"
)

var (
	serveAddr      string
	serveSchedules bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the web UI and HTTP API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default server.addr from config)")
	serveCmd.Flags().BoolVar(&serveSchedules, "schedules", false, "Also run configured research schedules")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := webui.NewServer(a.pipeline, a.store, logger.Default())
	if serveSchedules {
		sched := cron.NewScheduler(a.pipeline, a.store, logger.Default())
		if err := sched.Load(cfg.Schedules); err != nil {
			return err
		}
		sched.Start()
		defer sched.Stop()
		srv.WithScheduler(sched)
	}

	addr := serveAddr
	if addr == "" {
		addr = cfg.Server.Addr
	}
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Web UI listening on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("web UI server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
