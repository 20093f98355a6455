package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"
	"github.com/spf13/cobra"

	"github.com/enxitry/enxitry/internal/config"
	sqlitestore "github.com/enxitry/enxitry/internal/enxitry/store/sqlite"
	"github.com/enxitry/enxitry/internal/logging"
	"github.com/enxitry/enxitry/internal/tableserver"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configFlag string
	cmd := &cobra.Command{
		Use:           "enxitry-tabled",
		Short:         "Serve attendance tables over HTTP from SQLite",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := config.Load(configFlag)
			if err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	return cmd
}

func run(parent context.Context, cfg *config.Config) error {
	logger, closer, err := logging.New(logging.Options{
		Level:         cfg.Logging.Level,
		Format:        cfg.Logging.Format,
		Dir:           cfg.Logging.Dir,
		RetentionDays: cfg.Logging.RetentionDays,
	})
	if err != nil {
		return err
	}
	defer closer.Close()
	logger = logging.NewComponentLogger(logger, "tabled")

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := sqlitestore.Open(ctx, cfg.Tabled.DBPath)
	if err != nil {
		return fmt.Errorf("open table store: %w", err)
	}
	defer backend.Close()

	if cfg.Tabled.Token == "" {
		logger.Warn("tabled.token is empty; table API is unauthenticated")
	}
	gin.SetMode(gin.ReleaseMode)
	router := tableserver.Router(&tableserver.Handler{
		Catalog: backend,
		Token:   cfg.Tabled.Token,
		Logger:  logger,
	})
	srv := &http.Server{
		Addr:              cfg.Tabled.Bind,
		Handler:           gzhttp.GzipHandler(router),
		ReadHeaderTimeout: 5 * time.Second,
	}

	health := tableserver.NewHealthServer()
	if cfg.Tabled.GRPCBind != "" {
		lis, err := net.Listen("tcp", cfg.Tabled.GRPCBind)
		if err != nil {
			return fmt.Errorf("listen grpc: %w", err)
		}
		go func() {
			logger.Info("health service listening", slog.String("addr", cfg.Tabled.GRPCBind))
			if err := health.Serve(lis); err != nil {
				logger.Error("health service stopped", logging.Error(err))
			}
		}()
		defer health.Stop()
	}

	go func() {
		logger.Info("table api listening",
			slog.String("addr", cfg.Tabled.Bind),
			slog.String("db", cfg.Tabled.DBPath),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("table api stopped", logging.Error(err))
			stop()
		}
	}()
	health.SetServing(true)

	<-ctx.Done()

	health.SetServing(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	logger.Info("table daemon stopped")
	return nil
}
