package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/lorenzopantano/orbvision/internal/logging"
	"github.com/lorenzopantano/orbvision/internal/tle"
)

type fetchOptions struct {
	query    string
	value    string
	format   string
	flags    string
	endpoint string
	decode   bool
}

func newFetchCmd(root *rootOptions) *cobra.Command {
	opts := &fetchOptions{}
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch element sets from the catalog",
		Long: `Fetch raw catalog text for one query and print it, or decode it into
element sets with --decode. Query tokens are matched exactly, e.g.

  orbctl fetch --query CATNR --value 25544 --decode
  orbctl fetch --query GROUP --value STATIONS --flags SHOW-OPS -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd, root, opts)
		},
	}

	cmd.Flags().StringVar(&opts.query, "query", "", "query type (CATNR, INTDES, GROUP, NAME, SPECIAL)")
	cmd.Flags().StringVar(&opts.value, "value", "", "value for the query type")
	cmd.Flags().StringVar(&opts.format, "format", string(tle.FormatTLE), "catalog output format")
	cmd.Flags().StringVar(&opts.flags, "flags", "", "comma-separated flags (e.g. SHOW-OPS,BSTAR)")
	cmd.Flags().StringVar(&opts.endpoint, "endpoint", string(tle.EndpointGP), "catalog endpoint (gp, gp-first, table)")
	cmd.Flags().BoolVar(&opts.decode, "decode", false, "decode the response into element sets")
	cmd.MarkFlagRequired("query")
	cmd.MarkFlagRequired("value")

	return cmd
}

func runFetch(cmd *cobra.Command, root *rootOptions, opts *fetchOptions) error {
	output, err := parseOutput(root.output)
	if err != nil {
		return err
	}
	req, err := tle.ParseRequest(opts.query, opts.value, opts.format, opts.flags, opts.endpoint)
	if err != nil {
		return err
	}
	if opts.decode && !req.Format.Decodable() {
		return &tle.InvalidRequestError{Field: "format", Value: string(req.Format), Msg: "only TLE and 3LE responses can be decoded"}
	}

	logger := logging.New(cmd.ErrOrStderr(), root.logLevel, "text")
	fetcher := tle.NewFetcher(root.baseURL, logger, tle.WithTimeout(root.timeout))

	start := time.Now()
	body, err := fetcher.Fetch(cmd.Context(), req)
	if err != nil {
		return err
	}
	lines := tle.SplitLines(body)
	fmt.Fprintf(cmd.ErrOrStderr(), "fetched %s (%d lines) from %s in %s\n",
		humanize.Bytes(uint64(len(body))), len(lines), req.Endpoint.Path(), time.Since(start).Round(time.Millisecond))

	if !opts.decode {
		return writeLines(cmd.OutOrStdout(), output, lines)
	}

	b := tle.DecodeBatch(lines, req.Provenance())
	reportSkipped(cmd, b)
	return writeRecords(cmd.OutOrStdout(), output, b.Records, time.Now())
}

func reportSkipped(cmd *cobra.Command, b tle.Batch) {
	if b.Skipped > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "skipped %s of %s groups as malformed\n",
			humanize.Comma(int64(b.Skipped)), humanize.Comma(int64(b.Groups)))
	}
}
