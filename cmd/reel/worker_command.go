package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"reel/internal/history"
	"reel/internal/jobqueue"
	"reel/internal/logging"
	"reel/internal/progress"
	"reel/internal/reelerr"
)

func newWorkerCommand(ctx *commandContext) *cobra.Command {
	var events bool

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run queued renders from Redis",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cfg.QueueEnabled() {
				return errors.New("worker: queue.redis_addr is not configured")
			}
			logger, err := ctx.logger()
			if err != nil {
				return err
			}

			claim, err := ctx.claimHistory(cmd.Context(), logger)
			if err != nil {
				return err
			}
			defer claim.Close()

			renderer, err := ctx.newRenderer(cmd.Context(), logger, claim.store)
			if err != nil {
				return err
			}
			queue, client, err := jobqueue.Dial(cmd.Context(), cfg.Queue)
			if err != nil {
				return err
			}
			defer client.Close()

			var sink progress.Sink = progress.SinkFunc(nil)
			if events {
				sink = progress.NewWriter(cmd.OutOrStdout())
			}
			handle := func(ctx context.Context, msg jobqueue.Message) error {
				_, err := renderer.Render(ctx, msg.ID, msg.Job, sink)
				if err != nil && reelerr.IsValidation(err) {
					// Rejected jobs never start, so close out the queued row here.
					_ = claim.store.Finish(context.WithoutCancel(ctx), msg.ID, history.Outcome{Err: err})
				}
				return err
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "Worker consuming %s on %s\n", queue.Key(), cfg.Queue.RedisAddr)
			logger.Info("worker started",
				logging.String(logging.FieldEventType, "worker_started"),
				logging.String("queue", queue.Key()),
			)
			return jobqueue.Consume(cmd.Context(), queue, handle, logger)
		},
	}

	cmd.Flags().BoolVar(&events, "events", false, "Write NDJSON progress events for every render to stdout")
	return cmd
}
