package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"examprep-service/internal/config"
	"examprep-service/internal/logger"
	transport "examprep-service/internal/transport/http"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	var fixturesPath string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port, fixturesPath)
		},
	}
	cmd.Flags().StringVar(&fixturesPath, "fixtures", "", "fixture file to load and publish when running without postgres")
	return cmd
}

func runServer(ctx context.Context, configPath, portFlag, fixturesPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return err
	}
	defer log.Sync()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	svc, err := buildServices(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer svc.Close()

	if svc.memory != nil && fixturesPath != "" {
		if err := seedServices(ctx, log, svc, fixturesPath, true); err != nil {
			return err
		}
	}

	replayCtx, stopReplay := context.WithCancel(context.Background())
	defer stopReplay()
	go svc.attempts.RunRollupReplayer(replayCtx, config.Duration(cfg.Rollup.ReplayInterval, time.Minute), cfg.Rollup.ReplayBatch)

	mux := http.NewServeMux()
	transport.NewAPI(svc.attempts, svc.publisher, log).Register(mux)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("starting examprep service", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("failed to start server", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}

	stopReplay()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
