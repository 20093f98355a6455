package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/enxitry/enxitry/internal/config"
	"github.com/enxitry/enxitry/internal/enxitry/service"
	"github.com/enxitry/enxitry/internal/enxitry/store"
	"github.com/enxitry/enxitry/internal/enxitry/store/memory"
	"github.com/enxitry/enxitry/internal/enxitry/store/remote"
	sqlitestore "github.com/enxitry/enxitry/internal/enxitry/store/sqlite"
	"github.com/enxitry/enxitry/internal/logging"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, used, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = used
	})
	return c.config, c.configErr
}

// newLogger builds the process logger. Console output goes to stdout unless
// a full-screen UI owns the terminal.
func (c *commandContext) newLogger(stdout io.Writer) (*slog.Logger, io.Closer, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	return logging.New(logging.Options{
		Level:         cfg.Logging.Level,
		Format:        cfg.Logging.Format,
		Dir:           cfg.Logging.Dir,
		RetentionDays: cfg.Logging.RetentionDays,
		Stdout:        stdout,
	})
}

// openBackend returns the configured table backend.
func (c *commandContext) openBackend(ctx context.Context) (store.Backend, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	switch cfg.Store.Backend {
	case "memory":
		return memory.New(), nil
	case "sqlite":
		b, err := sqlitestore.Open(ctx, cfg.Store.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return b, nil
	case "remote":
		return remote.New(remote.Options{
			BaseURL:  cfg.Store.Remote.URL,
			Encoding: cfg.Store.Remote.Encoding,
			Token:    cfg.Store.Remote.Token,
			Timeout:  cfg.Store.Remote.Timeout(),
		})
	}
	return nil, fmt.Errorf("unsupported store backend %q", cfg.Store.Backend)
}

func (c *commandContext) retryPolicy() store.RetryPolicy {
	cfg := c.config
	return store.RetryPolicy{
		MaxAttempts: cfg.Store.RetryAttempts,
		Backoff:     cfg.Store.RetryBackoff(),
		MaxBackoff:  cfg.Store.RetryMaxBackoff(),
	}
}

// newDirectory binds the Person and EventLog tables on backend.
func (c *commandContext) newDirectory(backend store.Backend, logger *slog.Logger) *service.Directory {
	cfg := c.config
	policy := c.retryPolicy()
	return service.NewDirectory(
		store.NewTable(backend, store.PersonSchema(cfg.Store.PersonTable), policy, logger),
		store.NewTable(backend, store.EventSchema(cfg.Store.EventTable, cfg.Location()), policy, logger),
	)
}

// withAdmin opens the store for a one-shot admin command.
func (c *commandContext) withAdmin(ctx context.Context, fn func(*service.Admin) error) error {
	logger, closer, err := c.newLogger(io.Discard)
	if err != nil {
		return err
	}
	defer closer.Close()

	backend, err := c.openBackend(ctx)
	if err != nil {
		return err
	}
	defer backend.Close()

	return fn(service.NewAdmin(c.newDirectory(backend, logger), logger))
}
