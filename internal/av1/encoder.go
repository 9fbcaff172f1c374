package av1

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"

	draptolib "github.com/five82/drapto"

	"reel/internal/logging"
	"reel/internal/progress"
	"reel/internal/reelerr"
)

// Client encodes input into outputDir and returns the produced file.
type Client interface {
	Encode(ctx context.Context, inputPath, outputDir string, sink progress.Sink) (string, error)
}

// Library implements Client with the drapto Go library.
type Library struct {
	logger *slog.Logger
}

var _ Client = (*Library)(nil)

// NewLibrary constructs a Library client.
func NewLibrary(logger *slog.Logger) *Library {
	return &Library{logger: logging.NewComponentLogger(logger, "av1")}
}

// Encode runs drapto on inputPath. drapto names its output <stem>.mkv inside
// outputDir.
func (l *Library) Encode(ctx context.Context, inputPath, outputDir string, sink progress.Sink) (string, error) {
	if inputPath == "" {
		return "", errors.New("input path required")
	}
	if strings.TrimSpace(outputDir) == "" {
		return "", errors.New("output directory required")
	}

	enc, err := draptolib.New(draptolib.WithResponsive())
	if err != nil {
		return "", reelerr.Wrap(reelerr.ErrExternalTool, "av1", "init", "create drapto encoder", err)
	}

	rep := newReporter(sink, logging.WithContext(ctx, l.logger))
	if _, err := enc.EncodeWithReporter(ctx, inputPath, outputDir, rep); err != nil {
		if ctx.Err() != nil {
			return "", reelerr.Wrap(reelerr.ErrCanceled, "av1", "encode", "", ctx.Err())
		}
		return "", reelerr.Wrap(reelerr.ErrEncodeFailed, "av1", "encode", rep.failure(), err)
	}
	return OutputPath(inputPath, outputDir), nil
}

// OutputPath is where drapto writes the encode of inputPath.
func OutputPath(inputPath, outputDir string) string {
	base := filepath.Base(inputPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		stem = base
	}
	return filepath.Join(strings.TrimSpace(outputDir), stem+".mkv")
}
