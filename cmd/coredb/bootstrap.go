// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newBootstrapCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Run check_version and register this node, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := zap.NewProduction()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ds, closeStore, err := openDatastore(log)
			if err != nil {
				return err
			}
			defer func() { _ = closeStore() }()

			ctx := context.Background()
			if err := ds.Bootstrap(ctx, flagNodeAddress); err != nil {
				return err
			}
			log.Info("bootstrap complete", zap.String("address", flagNodeAddress))
			return nil
		},
	}
}
