package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"hlsfarm/internal/api"
	"hlsfarm/internal/catalog"
	"hlsfarm/internal/logging"
	"hlsfarm/internal/objectstore"
)

func newAPICommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "api",
		Short: "Serve the catalog query and upload API",
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

			store, err := catalog.Open(cfg)
			if err != nil {
				return fmt.Errorf("open catalog: %w", err)
			}
			defer store.Close()

			objects, err := objectstore.New(ctx, cfg)
			if err != nil {
				return fmt.Errorf("connect object store: %w", err)
			}

			// Browsers upload straight to the bucket, so it has to
			// accept the configured origins before the first presign.
			if len(cfg.S3.CORSOrigins) > 0 {
				if err := objects.SetUploadCORS(ctx, cfg.S3.UploadBucket, cfg.S3.CORSOrigins); err != nil {
					logger.Warn("apply upload bucket cors failed", logging.Error(err))
				}
			}

			server := api.New(cfg, logger, store, objects)
			if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}
