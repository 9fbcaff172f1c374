// Package publish uploads finished render artifacts to a configured
// destination. Publishing runs after the artifact is in the output directory;
// a failed upload never fails the render.
package publish

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"reel/internal/config"
)

// Receipt describes where an artifact was published.
type Receipt struct {
	Provider string `json:"provider"`
	// Location is a path for localfs and a file id for gdrive.
	Location string `json:"location"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum,omitempty"`
}

// String renders the receipt as provider:location for history rows.
func (r Receipt) String() string {
	if r.Provider == "" {
		return r.Location
	}
	return r.Provider + ":" + r.Location
}

// Publisher uploads one artifact. path may be a file or, for image
// sequences, a directory.
type Publisher interface {
	Provider() string
	Publish(ctx context.Context, path string) (Receipt, error)
}

// New builds the publisher named by cfg.Publish.Provider. It returns nil
// when publishing is disabled.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Publisher, error) {
	if cfg == nil {
		return nil, nil
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Publish.Provider)) {
	case "", config.PublishNone:
		return nil, nil
	case config.PublishLocalFS:
		return NewLocalFS(cfg.Publish.LocalRoot), nil
	case config.PublishGDrive:
		return NewGDriveFromConfig(ctx, cfg.Publish, logger)
	default:
		return nil, fmt.Errorf("unknown publish provider %q", cfg.Publish.Provider)
	}
}
