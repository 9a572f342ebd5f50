package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"slices"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/veesix-networks/zconfig/pkg/confnode"
	"github.com/veesix-networks/zconfig/pkg/parser"
	"github.com/veesix-networks/zconfig/pkg/resource"
	"github.com/veesix-networks/zconfig/pkg/version"
)

type parseFlags struct {
	version string
	format  string
	policy  string
}

func (f *parseFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.version, "version", "1.0", "Configuration version, <major>[.<minor>]")
	cmd.Flags().StringVar(&f.format, "format", parser.KindYAML, "Configuration format")
	cmd.Flags().StringVar(&f.policy, "download-policy", string(confnode.DownloadOnDemand), "OnStartup, OnDemand or Never")
}

func (f *parseFlags) parse(ctx context.Context, file, cacheDir string) (*confnode.Configuration, error) {
	v, err := version.Parse(f.version)
	if err != nil {
		return nil, err
	}
	policy, err := confnode.ParseDownloadPolicy(f.policy)
	if err != nil {
		return nil, err
	}
	p, err := parser.New(f.format)
	if err != nil {
		return nil, err
	}
	if inc, ok := p.(parser.Includer); ok {
		m := resource.New(resource.Options{Fs: afero.NewOsFs(), CacheDir: cacheDir})
		inc.SetIncludeResolver(func(u *url.URL) (io.ReadCloser, error) {
			return m.OpenLocation(ctx, u, policy)
		})
	}

	fh, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	if err := p.Parse(file, fh, confnode.Settings{DownloadPolicy: policy}, v); err != nil {
		return nil, err
	}
	return p.Configuration(), nil
}

func newFindCmd() *cobra.Command {
	var (
		pf       parseFlags
		cacheDir string
	)
	cmd := &cobra.Command{
		Use:   "find <file> <path>",
		Short: "Parse a configuration and print the node at a dotted path",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := pf.parse(cmd.Context(), args[0], cacheDir)
			if err != nil {
				return err
			}
			n := cfg.Find(args[1])
			if n == nil {
				return fmt.Errorf("no node at %s", args[1])
			}
			printNode(cmd.OutOrStdout(), n)
			return nil
		},
	}
	pf.register(cmd)
	cmd.Flags().StringVar(&cacheDir, "cache-dir", resource.DefaultCacheDir, "Cache directory for remote includes")
	return cmd
}

func printNode(w io.Writer, n confnode.Node) {
	fmt.Fprintf(w, "%s (%s, %s)\n", n.Path(), n.Kind(), n.State())
	switch v := n.(type) {
	case *confnode.ValueNode:
		if v.HasValue() {
			fmt.Fprintf(w, "  value: %s\n", v.Value())
		} else {
			fmt.Fprintln(w, "  value: <unset>")
		}
	case *confnode.KeyValueNode:
		kv := v.KeyValues()
		keys := make([]string, 0, len(kv))
		for k := range kv {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "  %s=%s\n", k, kv[k])
		}
	case *confnode.ElementNode:
		for _, c := range v.Children() {
			fmt.Fprintf(w, "  %s (%s)\n", c.Name(), c.Kind())
		}
	case confnode.Resource:
		fmt.Fprintf(w, "  type: %s\n", v.ResourceType())
		if u := v.Location(); u != nil {
			fmt.Fprintf(w, "  location: %s\n", u.Redacted())
		}
		if v.HasHandle() {
			fmt.Fprintf(w, "  handle: %s\n", v.Handle())
		}
	}
}
