package main

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/lorenzopantano/orbvision/internal/tle"
)

type decodeOptions struct {
	query  string
	value  string
	format string
}

func newDecodeCmd(root *rootOptions) *cobra.Command {
	opts := &decodeOptions{}
	cmd := &cobra.Command{
		Use:   "decode FILE",
		Short: "Decode a local three-line element set file",
		Long: `Decode a saved catalog response ("-" reads stdin). Provenance defaults
to the file name; set --query and --value to record the original query.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecode(cmd, root, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.query, "query", "", "query type recorded as provenance")
	cmd.Flags().StringVar(&opts.value, "value", "", "query value recorded as provenance")
	cmd.Flags().StringVar(&opts.format, "format", string(tle.FormatTLE), "format recorded as provenance (TLE or 3LE)")

	return cmd
}

func runDecode(cmd *cobra.Command, root *rootOptions, opts *decodeOptions, path string) error {
	output, err := parseOutput(root.output)
	if err != nil {
		return err
	}

	p := tle.Provenance{Value: opts.value}
	if opts.query != "" {
		if p.QueryType, err = tle.ParseQueryType(opts.query); err != nil {
			return err
		}
	}
	if p.Format, err = tle.ParseFormat(opts.format); err != nil {
		return err
	}
	if !p.Format.Decodable() {
		return &tle.InvalidRequestError{Field: "format", Value: opts.format, Msg: "only TLE and 3LE files can be decoded"}
	}
	if p.Value == "" && path != "-" {
		p.Value = filepath.Base(path)
	}

	var data []byte
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return err
	}

	b := tle.DecodeBatch(tle.SplitLines(data), p)
	reportSkipped(cmd, b)
	return writeRecords(cmd.OutOrStdout(), output, b.Records, time.Now())
}
