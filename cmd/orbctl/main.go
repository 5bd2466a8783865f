// Command orbctl queries the element-set catalog and decodes three-line
// element sets from the command line.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lorenzopantano/orbvision/internal/tle"
)

type rootOptions struct {
	baseURL  string
	timeout  time.Duration
	logLevel string
	output   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "orbctl",
		Short:         "Query and decode satellite element sets",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.baseURL, "base-url", envOr("ORBVISION_CATALOG_BASE_URL", tle.DefaultBaseURL), "catalog base URL")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "HTTP request timeout")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "text", "output format (text, json, yaml)")

	cmd.AddCommand(newFetchCmd(opts), newDecodeCmd(opts))
	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
