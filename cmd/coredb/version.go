// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"storj.io/coredb"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the storage-format version this build expects",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("coredb storage format version %d\n", coredb.CurrentStorageVersion)
			return nil
		},
	}
}
