package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/enxitry/enxitry/internal/device"
	"github.com/enxitry/enxitry/internal/enxitry/service"
	"github.com/enxitry/enxitry/internal/httpapi"
	"github.com/enxitry/enxitry/internal/kiosk"
	"github.com/enxitry/enxitry/internal/logging"
	"github.com/enxitry/enxitry/internal/notifications"
)

func newKioskCommand(ctx *commandContext) *cobra.Command {
	var (
		tui    bool
		reader string
	)
	cmd := &cobra.Command{
		Use:   "kiosk",
		Short: "Run the attendance kiosk",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKiosk(cmd, ctx, tui, reader)
		},
	}
	cmd.Flags().BoolVar(&tui, "tui", false, "Render the kiosk screen in this terminal")
	cmd.Flags().StringVar(&reader, "reader", "", "Card reader device (overrides reader.device; - for stdin)")
	return cmd
}

func runKiosk(cmd *cobra.Command, cctx *commandContext, tui bool, readerPath string) error {
	cfg := cctx.config
	if readerPath == "" {
		readerPath = cfg.Reader.Device
	}

	lockPath := filepath.Join(cfg.Paths.DataDir, "kiosk.lock")
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another kiosk is already running (lock %s)", lockPath)
	}
	defer func() { _ = lock.Unlock() }()

	var stdout io.Writer = cmd.OutOrStdout()
	if tui {
		stdout = io.Discard
	}
	logger, closer, err := cctx.newLogger(stdout)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := cctx.openBackend(ctx)
	if err != nil {
		return err
	}
	defer backend.Close()
	dir := cctx.newDirectory(backend, logger)

	display := service.NewDisplay()
	notices := service.NewNoticeBoard(32, logger)

	cardReader := device.NewLineReader(readerPath, logger)
	defer cardReader.Close()
	hotplug := device.NewHotplugMonitor(readerPath, cardReader, logger)
	_ = hotplug.Start(ctx)
	defer hotplug.Stop()

	scanner := service.NewScanner(cardReader, service.ScannerConfig{
		PollInterval: cfg.Reader.PollInterval(),
		PollWindow:   cfg.Reader.PollWindow(),
	}, display, logger)

	recognizer := device.TextRecognizer{
		Engine: device.TesseractEngine{
			Path:      cfg.Recognizer.TesseractPath,
			Languages: cfg.Recognizer.Languages,
		},
		IDLength:  cfg.Recognizer.IDLength,
		Separator: cfg.Recognizer.NameSeparator,
		Rotation:  cfg.Camera.Rotation,
	}
	if cfg.Camera.Source == "" {
		logger.Warn("camera.source is not set; unknown cards cannot be enrolled")
	}
	enrollment := service.NewEnrollment(service.EnrollmentConfig{
		FrameInterval:     cfg.Camera.FrameInterval(),
		CaptureTimeout:    cfg.Enrollment.CaptureTimeout(),
		ConfirmTimeout:    cfg.Enrollment.ConfirmTimeout(),
		CompletionDisplay: cfg.Enrollment.CompletionDisplay(),
		MaxRestarts:       cfg.Enrollment.MaxRestarts,
	}, device.NewSnapshotCamera(cfg.Camera.Source), recognizer, scanner, dir, display, logger)

	attendance := service.NewAttendance(dir, enrollment, display, notices, notifications.NewAlerter(cfg), logger)
	refresher := service.NewRefresher(dir, display, cfg.Refresh.Interval(), logger)
	supervisor := service.NewSupervisor(scanner, refresher, attendance, display, logger)

	api := httpapi.NewServer(httpapi.Dependencies{
		Logger:         logger,
		Addr:           cfg.API.Bind,
		Display:        display,
		Notices:        notices,
		Sessions:       supervisor,
		SessionContext: ctx,
	})
	if cfg.API.Bind != "" {
		go func() {
			logger.Info("status api listening", slog.String("addr", cfg.API.Bind))
			if err := api.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("status api stopped", logging.Error(err))
			}
		}()
	}

	logger.Info("kiosk starting",
		slog.String("config", cctx.configPath),
		slog.String("store", cfg.Store.Backend),
		slog.String("reader", readerPath),
	)
	supervisor.StartSession(ctx)

	if tui {
		err = runScreen(ctx, cfg.Enrollment.ConfirmTimeout(), display, notices, supervisor)
	} else {
		<-ctx.Done()
	}

	stop()
	supervisor.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = api.Shutdown(shutdownCtx)
	logger.Info("kiosk stopped")
	return err
}

func runScreen(ctx context.Context, confirm time.Duration, display *service.Display, notices *service.NoticeBoard, sessions kiosk.SessionStarter) error {
	model := kiosk.NewModel(kiosk.Options{
		Display:        display,
		Notices:        notices,
		Sessions:       sessions,
		SessionContext: ctx,
		ConfirmTimeout: confirm,
	})
	defer model.Close()

	_, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}
