package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/veesix-networks/zconfig/pkg/confnode"
	"github.com/veesix-networks/zconfig/pkg/lock"
	"github.com/veesix-networks/zconfig/pkg/version"
)

type entityPath string

func (p entityPath) AbsolutePath() string {
	return string(p)
}

func newLockPathCmd() *cobra.Command {
	var (
		instance, root   string
		group, app, name string
		major            int
	)
	cmd := &cobra.Command{
		Use:   "lock-path",
		Short: "Print the canonical lock path for the system, a group, an application or a configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := lock.NewPaths(root, instance)
			if err != nil {
				return err
			}
			if app != "" && group == "" {
				return errors.New("--application requires --group")
			}

			var out string
			switch {
			case name != "":
				if major < 0 {
					return errors.New("--major must not be negative")
				}
				cfg, err := confnode.NewConfiguration(name, version.New(major, 0), confnode.DefaultSettings())
				if err != nil {
					return err
				}
				cfg.SetHeader(confnode.Header{Group: group, Application: app})
				out = paths.ForConfiguration(cfg, major)
			case group != "":
				parts := []string{"", group}
				if app != "" {
					parts = append(parts, app)
				}
				out = paths.ForEntity(entityPath(strings.Join(parts, "/")))
			default:
				out = paths.System()
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&instance, "instance", "", "Server instance name")
	cmd.Flags().StringVar(&root, "root-path", "", "Configured root path")
	cmd.Flags().StringVar(&group, "group", "", "Application group name")
	cmd.Flags().StringVar(&app, "application", "", "Application name")
	cmd.Flags().StringVar(&name, "configuration", "", "Configuration name")
	cmd.Flags().IntVar(&major, "major", 1, "Configuration major version")
	_ = cmd.MarkFlagRequired("instance")
	return cmd
}
