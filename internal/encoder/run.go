package encoder

import (
	"context"
	"errors"
	"fmt"
	"os/exec"

	"reel/internal/procgroup"
	"reel/internal/reelerr"
)

// Runner executes a one-shot command. Components accept a Runner so tests can
// replace ffmpeg.
type Runner func(ctx context.Context, binary string, args ...string) error

// Run executes binary to completion. A non-zero exit returns
// *reelerr.EncodeFailedError carrying the tail of the diagnostic stream.
func Run(ctx context.Context, binary string, args ...string) error {
	tail := newTailBuffer(DefaultTailBytes)
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	procgroup.Set(cmd)
	cmd.Stdout = tail
	cmd.Stderr = tail
	if err := cmd.Run(); err != nil {
		return commandError(ctx, binary, err, tail.String())
	}
	return nil
}

func commandError(ctx context.Context, binary string, err error, tail string) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return reelerr.Wrap(reelerr.ErrCanceled, "encoder", binary, "interrupted", ctxErr)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &reelerr.EncodeFailedError{Binary: binary, ExitCode: exitErr.ExitCode(), Tail: tail}
	}
	return reelerr.Wrap(reelerr.ErrExternalTool, "encoder", binary, fmt.Sprintf("run %s", binary), err)
}
