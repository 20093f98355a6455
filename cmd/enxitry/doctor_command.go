package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/enxitry/enxitry/internal/config"
	"github.com/enxitry/enxitry/internal/tableserver"
)

type checkResult struct {
	name   string
	ok     bool
	detail string
}

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var healthAddr string
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, store and devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.config
			checks := []checkResult{{name: "config", ok: true, detail: orDefault(ctx.configPath, "defaults + environment")}}
			checks = append(checks, ctx.checkStore(cmd.Context()))
			if cfg.Store.Backend == "remote" {
				checks = append(checks, checkHealth(cmd.Context(), orDefault(healthAddr, remoteHealthAddr(cfg))))
			}
			checks = append(checks,
				checkReader(cfg.Reader.Device),
				checkCamera(cfg.Camera.Source),
				checkTesseract(cfg.Recognizer.TesseractPath),
			)

			rows := make([][]string, len(checks))
			failed := 0
			for i, c := range checks {
				status := "ok"
				if !c.ok {
					status = "FAIL"
					failed++
				}
				rows[i] = []string{c.name, status, c.detail}
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(out, []string{"Check", "Status", "Detail"}, rows, nil))
			if failed > 0 {
				return fmt.Errorf("%d check(s) failed", failed)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&healthAddr, "health-addr", "", "gRPC health address of the table daemon (remote store only)")
	return cmd
}

func (c *commandContext) checkStore(ctx context.Context) checkResult {
	res := checkResult{name: "store (" + c.config.Store.Backend + ")"}
	logger, closer, err := c.newLogger(io.Discard)
	if err != nil {
		res.detail = err.Error()
		return res
	}
	defer closer.Close()

	backend, err := c.openBackend(ctx)
	if err != nil {
		res.detail = err.Error()
		return res
	}
	defer backend.Close()

	dir := c.newDirectory(backend, logger)
	persons, err := dir.Persons(ctx)
	if err != nil {
		res.detail = err.Error()
		return res
	}
	events, err := dir.Events(ctx)
	if err != nil {
		res.detail = err.Error()
		return res
	}
	res.ok = true
	res.detail = fmt.Sprintf("%d people, %d events", len(persons), len(events))
	return res
}

func checkHealth(ctx context.Context, addr string) checkResult {
	res := checkResult{name: "table daemon health"}
	if addr == "" {
		res.detail = "no health address"
		return res
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	status, err := tableserver.CheckHealth(ctx, addr)
	if err != nil {
		res.detail = err.Error()
		return res
	}
	res.ok = status == healthpb.HealthCheckResponse_SERVING
	res.detail = addr + ": " + status.String()
	return res
}

// remoteHealthAddr pairs the remote store host with the daemon's gRPC port.
func remoteHealthAddr(cfg *config.Config) string {
	u, err := url.Parse(cfg.Store.Remote.URL)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	_, port, err := net.SplitHostPort(cfg.Tabled.GRPCBind)
	if err != nil {
		return ""
	}
	if _, err := strconv.Atoi(port); err != nil {
		return ""
	}
	return net.JoinHostPort(u.Hostname(), port)
}

func checkReader(path string) checkResult {
	res := checkResult{name: "card reader", detail: path}
	if path == "-" {
		res.ok = true
		res.detail = "stdin"
		return res
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			res.detail = path + " not present"
		} else {
			res.detail = err.Error()
		}
		return res
	}
	res.ok = true
	return res
}

func checkCamera(source string) checkResult {
	if source == "" {
		return checkResult{name: "camera", detail: "camera.source not set"}
	}
	return checkResult{name: "camera", ok: true, detail: source}
}

func checkTesseract(path string) checkResult {
	res := checkResult{name: "tesseract"}
	found, err := exec.LookPath(orDefault(path, "tesseract"))
	if err != nil {
		res.detail = err.Error()
		return res
	}
	res.ok = true
	res.detail = found
	return res
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
