package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"reel/internal/jobqueue"
	"reel/internal/server"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP render API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if bind != "" {
				cfg.Server.Bind = bind
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

			opts := server.Options{
				Config:   cfg,
				Renderer: renderer,
				History:  claim.store,
				Logger:   logger,
			}
			if cfg.QueueEnabled() {
				queue, client, err := jobqueue.Dial(cmd.Context(), cfg.Queue)
				if err != nil {
					return err
				}
				defer client.Close()
				opts.Queue = queue
			}

			srv, err := server.New(opts)
			if err != nil {
				return err
			}
			if err := srv.Start(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Render API listening on http://%s\n", srv.Addr())
			<-cmd.Context().Done()
			srv.Stop()
			return nil
		},
	}

	cmd.Flags().StringVar(&bind, "bind", "", "Listen address (overrides server.bind)")
	return cmd
}
