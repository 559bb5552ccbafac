package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"signsense-quiz-service/internal/app"
	"signsense-quiz-service/internal/config"
	transport "signsense-quiz-service/internal/transport/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz room server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
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

	d, err := wire(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer d.Close()

	rooms := app.NewRoomService(d.rooms, d.questions, logger, app.WithRetryPolicy(retryPolicy(cfg)))
	poller := app.NewPoller(rooms, config.TTLDuration(cfg.Sync.PollInterval, app.DefaultPollInterval), logger)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     transport.NewRouter(rooms, poller, logger),
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: websocket feeds are long-lived.
	}

	go func() {
		logger.Info("starting quiz service", zap.String("addr", server.Addr), zap.String("store", cfg.Store.Backend))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("failed to start server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down server")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
