package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/lorenzopantano/orbvision/internal/tle"
)

type outputFormat string

const (
	outputText outputFormat = "text"
	outputJSON outputFormat = "json"
	outputYAML outputFormat = "yaml"
)

func parseOutput(s string) (outputFormat, error) {
	switch o := outputFormat(strings.ToLower(s)); o {
	case outputText, outputJSON, outputYAML:
		return o, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text, json or yaml)", s)
	}
}

// writeLines prints raw catalog lines. JSON and YAML use the server's
// {"tle_data": [...]} shape.
func writeLines(w io.Writer, o outputFormat, lines []string) error {
	if lines == nil {
		lines = []string{}
	}
	switch o {
	case outputJSON:
		return writeJSON(w, map[string][]string{"tle_data": lines})
	case outputYAML:
		return writeYAML(w, map[string][]string{"tle_data": lines})
	default:
		for _, l := range lines {
			if _, err := fmt.Fprintln(w, l); err != nil {
				return err
			}
		}
		return nil
	}
}

// writeRecords prints decoded element sets. The text table shows each
// epoch's age relative to now.
func writeRecords(w io.Writer, o outputFormat, records []tle.ElementSet, now time.Time) error {
	if records == nil {
		records = []tle.ElementSet{}
	}
	switch o {
	case outputJSON:
		return writeJSON(w, records)
	case outputYAML:
		return writeYAML(w, records)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CATNR\tNAME\tEPOCH\tAGE\tINCL\tRAAN\tECC\tMM")
	for _, e := range records {
		age := "-"
		if t, err := e.EpochTime(); err == nil {
			age = humanize.RelTime(t, now, "ago", "ahead")
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%.4f\t%.4f\t%.7f\t%.8f\n",
			e.CatalogNumber, e.SatelliteName, e.Epoch, age,
			e.InclinationDeg, e.RAANDeg, e.Eccentricity, e.MeanMotion)
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
