package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"hlsfarm/internal/catalog"
	"hlsfarm/internal/logging"
	"hlsfarm/internal/objectstore"
	"hlsfarm/internal/state"
	"hlsfarm/internal/taskq"
	"hlsfarm/internal/worker"
)

func newWorkerCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume encode tasks and report health for this host",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			st, err := state.Open(cfg)
			if err != nil {
				return fmt.Errorf("connect shared state: %w", err)
			}
			defer st.Close()

			store, err := catalog.Open(cfg)
			if err != nil {
				return fmt.Errorf("open catalog: %w", err)
			}
			defer store.Close()

			objects, err := objectstore.New(ctx, cfg)
			if err != nil {
				return fmt.Errorf("connect object store: %w", err)
			}

			server, err := taskq.NewServer(cfg)
			if err != nil {
				return fmt.Errorf("build task server: %w", err)
			}

			pipeline := worker.NewPipeline(cfg, logger, store, st, objects, worker.NewFFmpegEngine())
			executor := worker.NewExecutor(cfg, logger, store, st, pipeline)
			mux := asynq.NewServeMux()
			executor.Register(mux)

			reporter := worker.NewReporter(cfg, logger, store, st)

			group, groupCtx := errgroup.WithContext(ctx)
			group.Go(func() error {
				return server.Run(mux)
			})
			group.Go(func() error {
				return reporter.Run(groupCtx)
			})
			group.Go(func() error {
				<-groupCtx.Done()
				server.Shutdown()
				return nil
			})

			if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}
