package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/veesix-networks/zconfig/pkg/version"
)

const defaultConfigPath = "/etc/zconfig/zconfig.yaml"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "zconfig",
		Short: "Versioned configuration trees with distributed locking",
		Long: `zconfig serves hierarchical, versioned configuration trees to a fleet of
instances. Remote resources are materialized into a local cache and every
fleet-wide change runs under a distributed path lock.`,
		Version:      version.Full(),
		SilenceUsage: true,
	}
	root.SetVersionTemplate(`{{printf "zconfig %s\n" .Version}}`)

	root.AddCommand(
		newServeCmd(),
		newFindCmd(),
		newCachePathCmd(),
		newLockPathCmd(),
		newReadBlobCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the zconfig version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "zconfig %s\n", version.Full())
		},
	}
}
