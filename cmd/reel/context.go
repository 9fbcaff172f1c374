package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"reel/internal/config"
	"reel/internal/history"
	"reel/internal/logging"
	"reel/internal/publish"
	"reel/internal/render"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) logger() (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return logger, nil
}

// historyClaim is an open history store held under a shared lock by a
// process that renders into it.
type historyClaim struct {
	store *history.Store
	lock  *flock.Flock
}

func (h *historyClaim) Close() {
	_ = h.store.Close()
	_ = h.lock.Unlock()
}

// claimHistory opens the history store for a rendering process. Every
// renderer holds a shared lock on the store; a process that finds no other
// holder marks rows left rendering by a crashed process as failed before
// taking its shared lock.
func (c *commandContext) claimHistory(ctx context.Context, logger *slog.Logger) (*historyClaim, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	store, err := history.Open(cfg)
	if err != nil {
		return nil, err
	}
	lock := flock.New(cfg.LockPath("history"))

	alone, err := lock.TryLock()
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("lock history: %w", err)
	}
	if alone {
		if n, err := store.FailInterrupted(ctx); err != nil {
			logging.WarnWithContext(logger, "interrupted render cleanup failed", "history_recover_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "renders from a crashed process stay marked rendering"),
			)
		} else if n > 0 {
			logger.Info("marked interrupted renders failed",
				logging.String(logging.FieldEventType, "history_recovered"),
				logging.Int64("count", n),
			)
		}
		_ = lock.Unlock()
	}
	if err := lock.RLock(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("lock history: %w", err)
	}
	return &historyClaim{store: store, lock: lock}, nil
}

// newRenderer wires a renderer that records into store and publishes with
// the configured provider.
func (c *commandContext) newRenderer(ctx context.Context, logger *slog.Logger, store *history.Store) (*render.Renderer, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	publisher, err := publish.New(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init publisher: %w", err)
	}
	opts := render.Options{Config: cfg, Logger: logger, Publisher: publisher}
	if store != nil {
		opts.Recorder = store
	}
	return render.New(opts)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
