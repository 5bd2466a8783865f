package tle

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// column is a half-open byte span [start, end) on one of the two data lines.
type column struct {
	name  string
	line  int // 1 or 2
	start int
	end   int
}

// Fixed-column layout of the NORAD element set, 0-indexed offsets into the
// trimmed data lines.
var (
	colCatalogNumber = column{"catalog_number", 1, 2, 7}
	colEpoch         = column{"epoch", 1, 18, 32}
	colInclination   = column{"inclination", 2, 8, 16}
	colRAAN          = column{"raan", 2, 17, 25}
	colEccentricity  = column{"eccentricity", 2, 26, 33}
	colArgPerigee    = column{"argument_of_perigee", 2, 34, 42}
	colMeanAnomaly   = column{"mean_anomaly", 2, 43, 51}
	colMeanMotion    = column{"mean_motion", 2, 52, 63}
)

var (
	errShortLine  = errors.New("line too short")
	errNotDecimal = errors.New("not a decimal number")
)

// parseDecimal parses a plain decimal number with an optional sign and
// exponent. Unlike strconv.ParseFloat it rejects NaN, Inf, hex floats and
// out-of-range values, so every decoded field is finite.
func parseDecimal(s string) (float64, error) {
	if s == "" {
		return 0, errNotDecimal
	}
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c >= '0' && c <= '9', c == '.', c == '+', c == '-', c == 'e', c == 'E':
		default:
			return 0, errNotDecimal
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errNotDecimal
	}
	return v, nil
}

// fieldError explains why a single group was rejected. It never leaves the
// package; the batch loop drops the group and moves on.
type fieldError struct {
	field string
	text  string
	err   error
}

func (e *fieldError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.field, e.text, e.err)
}

func (e *fieldError) Unwrap() error { return e.err }

// Decode turns a flat sequence of lines into element sets, three lines
// (name, line 1, line 2) at a time. Groups that are truncated or carry a
// non-numeric field are dropped without error; leftover lines that do not
// form a full group are ignored. Every record is stamped with p.
//
// Decode is pure and safe for concurrent use.
func Decode(lines []string, p Provenance) []ElementSet {
	return DecodeBatch(lines, p).Records
}

// DecodeBatch is Decode plus counts of visited and skipped groups.
func DecodeBatch(lines []string, p Provenance) Batch {
	var b Batch
	for i := 0; i+2 < len(lines); i += 3 {
		b.Groups++
		e, err := decodeGroup(lines[i], lines[i+1], lines[i+2])
		if err != nil {
			b.Skipped++
			continue
		}
		e.Provenance = p
		b.Records = append(b.Records, e)
	}
	return b
}

func decodeGroup(name, line1, line2 string) (ElementSet, error) {
	name = strings.TrimSpace(name)
	line1 = strings.TrimSpace(line1)
	line2 = strings.TrimSpace(line2)

	src := func(c column) string {
		if c.line == 1 {
			return line1
		}
		return line2
	}

	slice := func(c column) (string, error) {
		s := src(c)
		if len(s) < c.end {
			return "", &fieldError{field: c.name, text: s, err: errShortLine}
		}
		return s[c.start:c.end], nil
	}

	float := func(c column) (float64, error) {
		raw, err := slice(c)
		if err != nil {
			return 0, err
		}
		v, err := parseDecimal(strings.TrimSpace(raw))
		if err != nil {
			return 0, &fieldError{field: c.name, text: raw, err: err}
		}
		return v, nil
	}

	e := ElementSet{
		RawLines:      [3]string{name, line1, line2},
		SatelliteName: name,
	}

	raw, err := slice(colCatalogNumber)
	if err != nil {
		return ElementSet{}, err
	}
	catnr, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return ElementSet{}, &fieldError{field: colCatalogNumber.name, text: raw, err: err}
	}
	if catnr < 0 {
		return ElementSet{}, &fieldError{field: colCatalogNumber.name, text: raw, err: errors.New("negative catalog number")}
	}
	e.CatalogNumber = catnr

	if raw, err = slice(colEpoch); err != nil {
		return ElementSet{}, err
	}
	e.Epoch = strings.TrimSpace(raw)

	if e.InclinationDeg, err = float(colInclination); err != nil {
		return ElementSet{}, err
	}
	if e.RAANDeg, err = float(colRAAN); err != nil {
		return ElementSet{}, err
	}

	// The eccentricity field stores only the fractional digits.
	if raw, err = slice(colEccentricity); err != nil {
		return ElementSet{}, err
	}
	digits := strings.TrimSpace(raw)
	if digits == "" {
		return ElementSet{}, &fieldError{field: colEccentricity.name, text: raw, err: errors.New("empty field")}
	}
	if e.Eccentricity, err = parseDecimal("0." + digits); err != nil {
		return ElementSet{}, &fieldError{field: colEccentricity.name, text: raw, err: err}
	}

	if e.ArgPerigeeDeg, err = float(colArgPerigee); err != nil {
		return ElementSet{}, err
	}
	if e.MeanAnomalyDeg, err = float(colMeanAnomaly); err != nil {
		return ElementSet{}, err
	}
	if e.MeanMotion, err = float(colMeanMotion); err != nil {
		return ElementSet{}, err
	}

	return e, nil
}
