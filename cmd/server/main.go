package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"division-service/internal/config"
	"division-service/internal/db"
	"division-service/internal/httpapi"
	"division-service/internal/logging"
	"division-service/internal/repository"
	"division-service/internal/service"
)

var envFiles = []string{".env", ".env.local"}

var rootCmd = &cobra.Command{
	Use:           "division-service",
	Short:         "Organizational division hierarchy service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, database, err := bootstrap()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		migrate, _ := cmd.Flags().GetBool("migrate")
		if migrate {
			if err := db.Migrate(database); err != nil {
				return err
			}
		}

		return serve(cmd.Context(), cfg, logger, database)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the divisions and users tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, logger, database, err := bootstrap()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		if err := db.Migrate(database); err != nil {
			return err
		}
		logger.Info("migrations applied")
		return nil
	},
}

func init() {
	serveCmd.Flags().Bool("migrate", false, "run migrations before serving")
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func bootstrap() (config.Config, *zap.Logger, *gorm.DB, error) {
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return config.Config{}, nil, nil, err
	}

	logger := logging.New(cfg.Logging)

	database, err := db.Connect(cfg.Database, logger)
	if err != nil {
		logger.Error("database connection error", zap.Error(err))
		return config.Config{}, nil, nil, err
	}

	return cfg, logger, database, nil
}

func serve(ctx context.Context, cfg config.Config, logger *zap.Logger, database *gorm.DB) error {
	divisionService := service.NewDivisionService(repository.NewGormStore(database), logger)
	handler := httpapi.NewHandler(divisionService, logger.Named("http"))

	// -- Router --
	mux := http.NewServeMux()
	mux.Handle("/divisions", handler)
	mux.Handle("/divisions/", handler)
	mux.Handle("/users", handler)
	mux.Handle("/users/", handler)
	mux.HandleFunc("/healthcheck", healthcheck)
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpapi.Instrument(logger.Named("access"), mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			logger.Error("server failed", zap.Error(err))
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func healthcheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}
