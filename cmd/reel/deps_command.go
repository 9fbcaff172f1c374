package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"reel/internal/deps"
)

func newDepsCommand(ctx *commandContext) *cobra.Command {
	var skipEncoders bool

	cmd := &cobra.Command{
		Use:   "deps",
		Short: "Check external programs and ffmpeg encoders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := isTerminal(out)

			statuses := deps.CheckBinaries(deps.Requirements(cfg))
			for _, line := range renderSectionHeader("Binaries", colorize) {
				fmt.Fprintln(out, line)
			}
			for _, s := range statuses {
				fmt.Fprintln(out, renderStatusLine(s.Name, binaryStatusKind(s), binaryStatusMessage(s), colorize))
			}

			missing := deps.MissingRequired(statuses)
			if !skipEncoders && !containsName(missing, "FFmpeg") {
				encoders, err := deps.CheckEncoders(cmd.Context(), cfg.Encoder.FFmpegBinary)
				fmt.Fprintln(out)
				if err != nil {
					fmt.Fprintln(out, renderStatusLine("Encoders", statusWarn, err.Error(), colorize))
				} else {
					rows := make([][]string, 0, len(encoders))
					for _, e := range encoders {
						rows = append(rows, []string{string(e.Codec), e.Encoder, yesNo(e.Available)})
					}
					fmt.Fprintln(out, renderTable([]string{"Codec", "Encoder", "Available"}, rows, nil))
				}
			}

			if len(missing) > 0 {
				return fmt.Errorf("missing required dependencies: %s", strings.Join(missing, ", "))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipEncoders, "skip-encoders", false, "Do not query ffmpeg for its encoder list")
	return cmd
}

func binaryStatusKind(s deps.Status) statusKind {
	switch {
	case s.Available:
		return statusOK
	case s.Optional:
		return statusWarn
	default:
		return statusError
	}
}

func binaryStatusMessage(s deps.Status) string {
	if s.Available {
		return s.Command
	}
	if s.Detail != "" {
		return s.Detail
	}
	return "unavailable"
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
