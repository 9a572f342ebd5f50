package main

import (
	"fmt"
	"net/url"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/veesix-networks/zconfig/pkg/resource"
)

func newCachePathCmd() *cobra.Command {
	var cacheDir string
	cmd := &cobra.Command{
		Use:   "cache-path <uri>",
		Short: "Print the local cache file for a remote resource URI",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := url.Parse(args[0])
			if err != nil {
				return err
			}
			if !resource.IsRemote(u) {
				return fmt.Errorf("%w: %q is not a remote location", resource.ErrUnsupportedScheme, args[0])
			}
			m := resource.New(resource.Options{Fs: afero.NewMemMapFs(), CacheDir: cacheDir})
			fmt.Fprintln(cmd.OutOrStdout(), m.CachePath(u))
			return nil
		},
	}
	cmd.Flags().StringVar(&cacheDir, "cache-dir", resource.DefaultCacheDir, "Resource cache directory")
	return cmd
}

func newReadBlobCmd() *cobra.Command {
	var (
		pf       parseFlags
		cacheDir string
		offset   int64
		length   int32
	)
	cmd := &cobra.Command{
		Use:   "read-blob <file> <path>",
		Short: "Read a byte range of a blob resource",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := pf.parse(cmd.Context(), args[0], cacheDir)
			if err != nil {
				return err
			}
			m := resource.New(resource.Options{Fs: afero.NewOsFs(), CacheDir: cacheDir})
			res, err := m.ReadBlob(cmd.Context(), cfg, args[1], offset, length)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(res.Data)
			return err
		},
	}
	pf.register(cmd)
	cmd.Flags().StringVar(&cacheDir, "cache-dir", resource.DefaultCacheDir, "Resource cache directory")
	cmd.Flags().Int64Var(&offset, "offset", 0, "First byte to read")
	cmd.Flags().Int32Var(&length, "length", 4096, "Maximum number of bytes to read")
	return cmd
}
