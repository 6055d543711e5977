// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

// Command coredb is the CLI entry point for the embeddable core:
// bootstrap a store, run its background maintenance loops, or print
// the build version. It carries no SQL grammar or wire protocol of its
// own (spec.md §1 non-goals) — "serve" only starts the background
// loops a host process would otherwise have to drive by hand.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagStorePath   string
	flagBucketName  string
	flagNodeAddress string
)

func main() {
	root := &cobra.Command{
		Use:   "coredb",
		Short: "coredb manages a standalone instance of the CoreDB storage core",
	}
	root.PersistentFlags().StringVar(&flagStorePath, "store", "coredb.db", "path to the bbolt-backed storage file")
	root.PersistentFlags().StringVar(&flagBucketName, "bucket", "coredb", "bucket name within the storage file")

	bootstrapCmd := newBootstrapCommand()
	bootstrapCmd.Flags().StringVar(&flagNodeAddress, "address", "127.0.0.1:9000", "address this node advertises to the cluster")
	root.AddCommand(bootstrapCmd)

	serveCmd := newServeCommand()
	serveCmd.Flags().StringVar(&flagNodeAddress, "address", "127.0.0.1:9000", "address this node advertises to the cluster")
	root.AddCommand(serveCmd)

	root.AddCommand(newVersionCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
