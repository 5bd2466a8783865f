package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"

	"github.com/julienschmidt/httprouter"

	"github.com/lorenzopantano/orbvision/internal/health"
	"github.com/lorenzopantano/orbvision/internal/metrics"
	"github.com/lorenzopantano/orbvision/internal/tle"
)

// issCatalogNumber is the NORAD catalog number of the ISS (ZARYA).
const issCatalogNumber = "25544"

// statusClientClosedRequest marks requests whose caller went away before the
// catalog answered.
const statusClientClosedRequest = 499

func newRouter(h *handlers, readiness *health.Readiness) *httprouter.Router {
	r := &httprouter.Router{
		RedirectTrailingSlash:  true,
		RedirectFixedPath:      true,
		HandleMethodNotAllowed: true,
		HandleOPTIONS:          true,
		NotFound: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusNotFound, "endpoint not found")
		}),
		MethodNotAllowed: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}),
		PanicHandler: h.recovered,
	}

	r.HandlerFunc(http.MethodGet, "/", h.welcome)
	r.HandlerFunc(http.MethodGet, "/healthz", health.Healthz)
	r.HandlerFunc(http.MethodGet, "/readyz", readiness.Readyz)
	r.Handler(http.MethodGet, "/metrics", metrics.Handler())

	r.HandlerFunc(http.MethodGet, "/api/v1/gp", h.rawLines)
	r.HandlerFunc(http.MethodGet, "/api/v1/gp/elements", h.elements)
	r.HandlerFunc(http.MethodGet, "/api/v1/gp/iss", h.iss)
	r.HandlerFunc(http.MethodGet, "/api/v1/gp/active", h.active)
	r.HandlerFunc(http.MethodGet, "/api/v1/gp/vocabulary", h.vocabulary)
	r.GET("/api/v1/gp/catnr/:catalog_number", h.byCatalogNumber)

	return r
}

type handlers struct {
	catalog Catalog
	logger  *slog.Logger
}

func (h *handlers) welcome(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, map[string]string{"message": "Welcome to OrbVision API"})
}

// rawLines serves GET /api/v1/gp: any query, raw catalog lines.
func (h *handlers) rawLines(w http.ResponseWriter, r *http.Request) {
	req, err := parseRequest(r.URL.Query())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.serveLines(w, r, req)
}

// elements serves GET /api/v1/gp/elements: any query, decoded element sets.
func (h *handlers) elements(w http.ResponseWriter, r *http.Request) {
	req, err := parseRequest(r.URL.Query())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.serveElements(w, r, req)
}

func (h *handlers) iss(w http.ResponseWriter, r *http.Request) {
	h.serveElements(w, r, tle.Request{Query: tle.QueryCatalogNumber, Value: issCatalogNumber, Format: tle.FormatTLE})
}

func (h *handlers) active(w http.ResponseWriter, r *http.Request) {
	h.serveLines(w, r, tle.Request{Query: tle.QueryGroup, Value: string(tle.GroupActive), Format: tle.FormatTLE})
}

func (h *handlers) byCatalogNumber(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	raw := ps.ByName("catalog_number")
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		h.fail(w, r, &tle.InvalidRequestError{Field: "catalog_number", Value: raw})
		return
	}
	h.serveElements(w, r, tle.Request{Query: tle.QueryCatalogNumber, Value: strconv.Itoa(n), Format: tle.FormatTLE})
}

type vocabularyResponse struct {
	QueryTypes []tle.QueryType `json:"query_types"`
	Formats    []tle.Format    `json:"formats"`
	Flags      []tle.Flag      `json:"flags"`
	Groups     []tle.Group     `json:"groups"`
	Specials   []tle.Special   `json:"special_datasets"`
	Endpoints  []tle.Endpoint  `json:"endpoints"`
}

func (h *handlers) vocabulary(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, vocabularyResponse{
		QueryTypes: tle.QueryTypes,
		Formats:    tle.Formats,
		Flags:      tle.Flags,
		Groups:     tle.Groups,
		Specials:   tle.Specials,
		Endpoints:  tle.Endpoints,
	})
}

func (h *handlers) serveLines(w http.ResponseWriter, r *http.Request, req tle.Request) {
	lines, err := h.catalog.Lines(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if lines == nil {
		lines = []string{}
	}
	h.writeJSON(w, r, http.StatusOK, map[string][]string{"tle_data": lines})
}

func (h *handlers) serveElements(w http.ResponseWriter, r *http.Request, req tle.Request) {
	records, err := h.catalog.Elements(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, records)
}

func (h *handlers) recovered(w http.ResponseWriter, r *http.Request, v any) {
	if v == http.ErrAbortHandler {
		panic(v)
	}
	h.logger.ErrorContext(r.Context(), "panic in handler",
		"component", "api",
		"path", r.URL.Path,
		"panic", v,
	)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

// fail maps err to a status code and writes the JSON error body.
func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	code, msg := classify(err)
	if code >= http.StatusInternalServerError {
		h.logger.WarnContext(r.Context(), "catalog request failed",
			"component", "api",
			"path", r.URL.Path,
			"status", code,
			"error", err,
		)
	}
	if code == statusClientClosedRequest {
		// Recorded for logs and metrics only.
		w.WriteHeader(code)
		return
	}
	writeError(w, code, msg)
}

func classify(err error) (int, string) {
	var (
		se *tle.StatusError
		ne net.Error
	)
	switch {
	case errors.Is(err, tle.ErrInvalidRequest):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest, ""
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &ne) && ne.Timeout():
		return http.StatusGatewayTimeout, "upstream catalog timed out"
	case errors.As(err, &se):
		return http.StatusBadGateway, "upstream catalog returned status " + strconv.Itoa(se.StatusCode)
	default:
		return http.StatusBadGateway, "upstream catalog unavailable"
	}
}

// parseRequest builds a catalog request from the query_type, value, format,
// flags and endpoint parameters. Tokens are matched exactly.
func parseRequest(q url.Values) (tle.Request, error) {
	return tle.ParseRequest(q.Get("query_type"), q.Get("value"), q.Get("format"), q.Get("flags"), q.Get("endpoint"))
}

// writeJSON encodes v before committing the status, so an unencodable
// response becomes a 500 instead of a 200 with a truncated body.
func (h *handlers) writeJSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to encode response",
			"component", "api",
			"path", r.URL.Path,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeBody(w, code, body)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	// A map of strings always encodes.
	body, _ := json.Marshal(map[string]string{"error": msg})
	writeBody(w, code, body)
}

func writeBody(w http.ResponseWriter, code int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(append(body, '\n'))
}
