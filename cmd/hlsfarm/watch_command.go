package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"hlsfarm/internal/catalog"
	"hlsfarm/internal/dispatcher"
	"hlsfarm/internal/logging"
	"hlsfarm/internal/objectstore"
	"hlsfarm/internal/state"
	"hlsfarm/internal/taskq"
)

func newWatchCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch the upload bucket and assign encodes to workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return err
			}

			// One dispatcher per host; a second invocation exits
			// instead of double-assigning uploads.
			lock := flock.New(filepath.Join(cfg.Paths.LogDir, "hlsfarm-watch.lock"))
			held, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire dispatcher lock: %w", err)
			}
			if !held {
				return errors.New("another dispatcher instance is already running")
			}
			defer lock.Unlock()

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

			queue, err := taskq.NewClient(cfg)
			if err != nil {
				return fmt.Errorf("connect task queue: %w", err)
			}
			defer queue.Close()

			watcher := dispatcher.NewWatcher(cfg, logger,
				objects, dispatcher.NewSelector(st), store, queue, st)
			if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}
