package tle

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// QueryType selects how the catalog interprets the query value.
type QueryType string

const (
	QueryCatalogNumber  QueryType = "CATNR"   // NORAD catalog number
	QueryIntlDesignator QueryType = "INTDES"  // international designator
	QueryGroup          QueryType = "GROUP"   // standard satellite group
	QueryName           QueryType = "NAME"    // free-text name search
	QuerySpecial        QueryType = "SPECIAL" // special dataset
)

// QueryTypes lists every supported query type.
var QueryTypes = []QueryType{QueryCatalogNumber, QueryIntlDesignator, QueryGroup, QueryName, QuerySpecial}

// Format is the output format requested from the catalog.
type Format string

const (
	FormatTLE        Format = "TLE"
	Format3LE        Format = "3LE"
	Format2LE        Format = "2LE"
	FormatXML        Format = "XML"
	FormatKVN        Format = "KVN"
	FormatJSON       Format = "JSON"
	FormatJSONPretty Format = "JSON-PRETTY"
	FormatCSV        Format = "CSV"
)

// Formats lists every supported output format.
var Formats = []Format{FormatTLE, Format3LE, Format2LE, FormatXML, FormatKVN, FormatJSON, FormatJSONPretty, FormatCSV}

// Decodable reports whether responses in f are three-line element sets.
func (f Format) Decodable() bool {
	return f == FormatTLE || f == Format3LE
}

// Flag is a valueless option appended to a catalog query.
type Flag string

const (
	FlagBStar   Flag = "BSTAR"
	FlagShowOps Flag = "SHOW-OPS"
	FlagOldest  Flag = "OLDEST"
	FlagDocked  Flag = "DOCKED"
	FlagMovers  Flag = "MOVERS"
)

// Flags lists every supported flag.
var Flags = []Flag{FlagBStar, FlagShowOps, FlagOldest, FlagDocked, FlagMovers}

// Group is a standard catalog group name, used as the value of a GROUP query.
type Group string

const (
	GroupActive     Group = "ACTIVE"
	GroupInactive   Group = "INACTIVE"
	GroupStations   Group = "STATIONS"
	GroupGPSOps     Group = "GPS-OPS"
	GroupGalileo    Group = "GALILEO"
	GroupGlonassOps Group = "GLONASS-OPS"
	GroupIridium    Group = "IRIDIUM"
	GroupStarlink   Group = "STARLINK"
	GroupBeidou     Group = "BEIDOU"
	GroupIntelsat   Group = "INTELSAT"
	GroupGEO        Group = "GEO"
)

// Groups lists the standard groups.
var Groups = []Group{
	GroupActive, GroupInactive, GroupStations, GroupGPSOps, GroupGalileo,
	GroupGlonassOps, GroupIridium, GroupStarlink, GroupBeidou, GroupIntelsat, GroupGEO,
}

// Special is a special dataset name, used as the value of a SPECIAL query.
type Special string

const (
	SpecialGPZ      Special = "GPZ"      // GEO protected zone
	SpecialGPZPlus  Special = "GPZ-PLUS" // GEO protected zone plus
	SpecialDecaying Special = "DECAYING" // potential decays
)

// Specials lists the special datasets.
var Specials = []Special{SpecialGPZ, SpecialGPZPlus, SpecialDecaying}

// Endpoint selects the catalog script that serves the query.
type Endpoint string

const (
	EndpointGP      Endpoint = "gp"
	EndpointGPFirst Endpoint = "gp-first"
	EndpointTable   Endpoint = "table"
)

// Endpoints lists the supported endpoints.
var Endpoints = []Endpoint{EndpointGP, EndpointGPFirst, EndpointTable}

// Path returns the script path for e relative to the catalog base URL.
func (e Endpoint) Path() string {
	if e == "" {
		return string(EndpointGP) + ".php"
	}
	return string(e) + ".php"
}

// ErrInvalidRequest is matched by every request validation failure.
var ErrInvalidRequest = errors.New("invalid request")

// InvalidRequestError names the request field that failed validation.
type InvalidRequestError struct {
	Field string
	Value string
	Msg   string
}

func (e *InvalidRequestError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
	}
	return fmt.Sprintf("invalid %s %q", e.Field, e.Value)
}

// Is makes errors.Is(err, ErrInvalidRequest) true.
func (e *InvalidRequestError) Is(target error) bool {
	return target == ErrInvalidRequest
}

func parseToken[T ~string](field, s string, known []T) (T, error) {
	for _, k := range known {
		if string(k) == s {
			return k, nil
		}
	}
	return "", &InvalidRequestError{Field: field, Value: s}
}

// ParseQueryType parses an exact query type token such as "CATNR".
func ParseQueryType(s string) (QueryType, error) {
	return parseToken("query_type", s, QueryTypes)
}

// ParseFormat parses an exact format token. An empty string yields FormatTLE.
func ParseFormat(s string) (Format, error) {
	if s == "" {
		return FormatTLE, nil
	}
	return parseToken("format", s, Formats)
}

// ParseFlag parses a single flag token.
func ParseFlag(s string) (Flag, error) {
	return parseToken("flag", s, Flags)
}

// ParseFlags parses a comma-separated flag list. Surrounding spaces are
// ignored; an empty list yields nil. Any unknown token fails the whole list.
func ParseFlags(csv string) ([]Flag, error) {
	if strings.TrimSpace(csv) == "" {
		return nil, nil
	}
	var flags []Flag
	for _, tok := range strings.Split(csv, ",") {
		f, err := ParseFlag(strings.TrimSpace(tok))
		if err != nil {
			return nil, err
		}
		flags = append(flags, f)
	}
	return flags, nil
}

// ParseEndpoint parses an endpoint token. An empty string yields EndpointGP.
func ParseEndpoint(s string) (Endpoint, error) {
	if s == "" {
		return EndpointGP, nil
	}
	return parseToken("endpoint", s, Endpoints)
}

// ParseRequest builds a Request from untyped tokens: a query type, its value,
// and optional format, comma-separated flags and endpoint. The value is
// trimmed and must not be empty.
func ParseRequest(query, value, format, flags, endpoint string) (Request, error) {
	qt, err := ParseQueryType(query)
	if err != nil {
		return Request{}, err
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return Request{}, &InvalidRequestError{Field: "value", Msg: "must not be empty"}
	}
	f, err := ParseFormat(format)
	if err != nil {
		return Request{}, err
	}
	fl, err := ParseFlags(flags)
	if err != nil {
		return Request{}, err
	}
	ep, err := ParseEndpoint(endpoint)
	if err != nil {
		return Request{}, err
	}
	return Request{Query: qt, Value: value, Format: f, Flags: fl, Endpoint: ep}, nil
}

// Request is a fully-typed catalog query.
type Request struct {
	Query    QueryType
	Value    string
	Format   Format
	Flags    []Flag
	Endpoint Endpoint
}

// Validate checks that every field holds a known value.
func (r Request) Validate() error {
	if _, err := ParseQueryType(string(r.Query)); err != nil {
		return err
	}
	if strings.TrimSpace(r.Value) == "" {
		return &InvalidRequestError{Field: "value", Msg: "must not be empty"}
	}
	if _, err := ParseFormat(string(r.Format)); err != nil {
		return err
	}
	for _, f := range r.Flags {
		if _, err := ParseFlag(string(f)); err != nil {
			return err
		}
	}
	if _, err := ParseEndpoint(string(r.Endpoint)); err != nil {
		return err
	}
	return nil
}

// Params returns the query parameters sent to the catalog. Flags are sent
// as present-but-empty parameters.
func (r Request) Params() url.Values {
	format := r.Format
	if format == "" {
		format = FormatTLE
	}
	v := url.Values{}
	v.Set(string(r.Query), r.Value)
	v.Set("FORMAT", string(format))
	for _, f := range r.Flags {
		v.Set(string(f), "")
	}
	return v
}

// Key identifies the request for caching: endpoint plus encoded parameters.
// url.Values.Encode sorts by key, so flag order does not matter.
func (r Request) Key() string {
	return r.Endpoint.Path() + "?" + r.Params().Encode()
}

// Provenance returns the metadata stamped onto records decoded from r.
func (r Request) Provenance() Provenance {
	format := r.Format
	if format == "" {
		format = FormatTLE
	}
	return Provenance{QueryType: r.Query, Value: r.Value, Format: format}
}
