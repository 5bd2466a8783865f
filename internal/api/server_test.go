package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lorenzopantano/orbvision/internal/auth"
	"github.com/lorenzopantano/orbvision/internal/catalog"
	"github.com/lorenzopantano/orbvision/internal/tle"
)

const (
	issName  = "ISS (ZARYA)"
	issLine1 = "1 25544U 98067A   24001.50000000  .00016717  00000-0  10270-3 0  9008"
	issLine2 = "2 25544  51.6400 208.9163 0006317  69.9862 290.3267 15.49578429999999"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// upstream is a fake catalog that records the queries it receives.
type upstream struct {
	calls   atomic.Int32
	lastURL atomic.Pointer[url.URL]
	handler http.HandlerFunc
}

func (u *upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	u.calls.Add(1)
	u.lastURL.Store(r.URL)
	u.handler(w, r)
}

func serveBody(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, body)
	}
}

var issBody = issName + "\r\n" + issLine1 + "\r\n" + issLine2 + "\r\n"

type testEnv struct {
	handler  http.Handler
	server   *Server
	upstream *upstream
}

func newTestEnv(t *testing.T, h http.HandlerFunc, authCfg auth.Config, opts ...tle.FetcherOption) *testEnv {
	t.Helper()
	up := &upstream{handler: h}
	ts := httptest.NewServer(up)
	t.Cleanup(ts.Close)

	logger := testLogger()
	fetcher := tle.NewFetcher(ts.URL, logger, opts...)
	svc := catalog.NewService(fetcher, catalog.Config{}, logger)
	srv := NewServer(Config{Addr: ":0", Auth: authCfg, CORSOrigins: []string{"https://app.example"}}, svc, logger)
	return &testEnv{handler: srv.Handler(), server: srv, upstream: up}
}

func (e *testEnv) get(t *testing.T, target string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	return body["error"]
}

func TestWelcome(t *testing.T) {
	env := newTestEnv(t, serveBody(""), auth.Config{})
	rec := env.get(t, "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	json.NewDecoder(rec.Body).Decode(&body)
	if body["message"] != "Welcome to OrbVision API" {
		t.Errorf("message = %q", body["message"])
	}
}

func TestISSDecoded(t *testing.T) {
	env := newTestEnv(t, serveBody(issBody), auth.Config{})
	rec := env.get(t, "/api/v1/gp/iss")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body.String())
	}

	var records []tle.ElementSet
	if err := json.NewDecoder(rec.Body).Decode(&records); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	e := records[0]
	if e.CatalogNumber != 25544 || e.SatelliteName != issName || e.Epoch != "24001.50000000" {
		t.Errorf("unexpected record: %+v", e)
	}
	if e.QueryType != tle.QueryCatalogNumber || e.Value != "25544" || e.Format != tle.FormatTLE {
		t.Errorf("unexpected provenance: %+v", e.Provenance)
	}

	q := env.upstream.lastURL.Load().Query()
	if q.Get("CATNR") != "25544" || q.Get("FORMAT") != "TLE" {
		t.Errorf("upstream query = %v", q)
	}
}

func TestISSWireFieldNames(t *testing.T) {
	env := newTestEnv(t, serveBody(issBody), auth.Config{})
	rec := env.get(t, "/api/v1/gp/iss")

	var records []map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&records); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	for _, k := range []string{
		"query_type", "value", "format", "raw_data", "catalog_number", "satellite_name", "epoch",
		"inclination", "raan", "eccentricity", "argument_of_perigee", "mean_anomaly", "mean_motion",
	} {
		if _, ok := records[0][k]; !ok {
			t.Errorf("missing field %q", k)
		}
	}
}

func TestGenericRawLines(t *testing.T) {
	env := newTestEnv(t, serveBody(issBody), auth.Config{})
	rec := env.get(t, "/api/v1/gp?query_type=GROUP&value=STATIONS&flags=SHOW-OPS,%20BSTAR&endpoint=gp-first")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body.String())
	}

	var body struct {
		TLEData []string `json:"tle_data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	want := []string{issName, issLine1, issLine2}
	if len(body.TLEData) != len(want) {
		t.Fatalf("got %d lines, want %d", len(body.TLEData), len(want))
	}
	for i := range want {
		if body.TLEData[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, body.TLEData[i], want[i])
		}
	}

	u := env.upstream.lastURL.Load()
	if u.Path != "/gp-first.php" {
		t.Errorf("upstream path = %q", u.Path)
	}
	q := u.Query()
	if q.Get("GROUP") != "STATIONS" || q.Get("FORMAT") != "TLE" {
		t.Errorf("upstream query = %v", q)
	}
	for _, f := range []string{"SHOW-OPS", "BSTAR"} {
		if _, ok := q[f]; !ok {
			t.Errorf("flag %s not forwarded", f)
		}
	}
}

func TestActiveRawLines(t *testing.T) {
	env := newTestEnv(t, serveBody(issBody), auth.Config{})
	rec := env.get(t, "/api/v1/gp/active")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if q := env.upstream.lastURL.Load().Query(); q.Get("GROUP") != "ACTIVE" {
		t.Errorf("upstream query = %v", q)
	}
	if !strings.Contains(rec.Body.String(), `"tle_data"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestElementsGenericAndCatalogNumberRoute(t *testing.T) {
	env := newTestEnv(t, serveBody(issBody), auth.Config{})

	rec := env.get(t, "/api/v1/gp/elements?query_type=NAME&value=ISS&format=3LE")
	if rec.Code != http.StatusOK {
		t.Fatalf("elements status = %d; body %s", rec.Code, rec.Body.String())
	}
	var records []tle.ElementSet
	json.NewDecoder(rec.Body).Decode(&records)
	if len(records) != 1 || records[0].Format != tle.Format3LE || records[0].QueryType != tle.QueryName {
		t.Errorf("unexpected records: %+v", records)
	}

	rec = env.get(t, "/api/v1/gp/catnr/20580")
	if rec.Code != http.StatusOK {
		t.Fatalf("catnr status = %d", rec.Code)
	}
	if q := env.upstream.lastURL.Load().Query(); q.Get("CATNR") != "20580" {
		t.Errorf("upstream query = %v", q)
	}
}

func TestEmptyDecodeIsEmptyArray(t *testing.T) {
	env := newTestEnv(t, serveBody("No GP data found\n"), auth.Config{})
	rec := env.get(t, "/api/v1/gp/catnr/99999")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("body = %q, want []", got)
	}
}

func TestInvalidRequests(t *testing.T) {
	env := newTestEnv(t, serveBody(issBody), auth.Config{})

	tests := []struct {
		name   string
		target string
		field  string
	}{
		{"missing query type", "/api/v1/gp?value=25544", "query_type"},
		{"unknown query type", "/api/v1/gp?query_type=catnr&value=25544", "query_type"},
		{"missing value", "/api/v1/gp?query_type=CATNR", "value"},
		{"unknown format", "/api/v1/gp?query_type=CATNR&value=25544&format=YAML", "format"},
		{"unknown flag", "/api/v1/gp?query_type=CATNR&value=25544&flags=BSTAR,NOPE", "flag"},
		{"unknown endpoint", "/api/v1/gp?query_type=CATNR&value=25544&endpoint=sup", "endpoint"},
		{"undecodable format", "/api/v1/gp/elements?query_type=CATNR&value=25544&format=CSV", "format"},
		{"non-numeric catalog number", "/api/v1/gp/catnr/ISS", "catalog_number"},
		{"zero catalog number", "/api/v1/gp/catnr/0", "catalog_number"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.get(t, tt.target)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if msg := decodeError(t, rec); !strings.Contains(msg, tt.field) {
				t.Errorf("error %q does not name %q", msg, tt.field)
			}
		})
	}
	if n := env.upstream.calls.Load(); n != 0 {
		t.Errorf("expected no upstream calls, got %d", n)
	}
}

func TestUpstreamStatusIsBadGateway(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}, auth.Config{})

	rec := env.get(t, "/api/v1/gp/iss")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	if msg := decodeError(t, rec); !strings.Contains(msg, "503") {
		t.Errorf("error = %q, want upstream status", msg)
	}
}

func TestUpstreamTimeoutIsGatewayTimeout(t *testing.T) {
	release := make(chan struct{})
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, auth.Config{}, tle.WithTimeout(50*time.Millisecond))
	defer close(release)

	rec := env.get(t, "/api/v1/gp/active")
	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, want 504", rec.Code)
	}
}

func TestVocabulary(t *testing.T) {
	env := newTestEnv(t, serveBody(""), auth.Config{})
	rec := env.get(t, "/api/v1/gp/vocabulary")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var v vocabularyResponse
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(v.QueryTypes) != 5 || len(v.Formats) != 8 || len(v.Flags) != 5 || len(v.Specials) != 3 || len(v.Endpoints) != 3 {
		t.Errorf("unexpected vocabulary: %+v", v)
	}
}

func TestNotFoundAndMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, serveBody(""), auth.Config{})

	rec := env.get(t, "/api/v1/nope")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/gp/iss", nil)
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestAuthEnforced(t *testing.T) {
	env := newTestEnv(t, serveBody(issBody), auth.Config{Enabled: true, Token: "secret"})

	if rec := env.get(t, "/api/v1/gp/iss"); rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", rec.Code)
	}
	if rec := env.get(t, "/api/v1/gp/iss", "Authorization", "Bearer secret"); rec.Code != http.StatusOK {
		t.Errorf("with token: status = %d, want 200", rec.Code)
	}
	if rec := env.get(t, "/api/v1/gp/vocabulary"); rec.Code != http.StatusOK {
		t.Errorf("vocabulary should be public: status = %d", rec.Code)
	}
	if n := env.upstream.calls.Load(); n != 1 {
		t.Errorf("expected 1 upstream call, got %d", n)
	}
}

func TestCorrelationID(t *testing.T) {
	env := newTestEnv(t, serveBody(""), auth.Config{})

	rec := env.get(t, "/", HeaderCorrelationID, "abc-123")
	if got := rec.Header().Get(HeaderCorrelationID); got != "abc-123" {
		t.Errorf("echoed id = %q, want abc-123", got)
	}

	rec = env.get(t, "/", HeaderRequestID, "from-proxy")
	if got := rec.Header().Get(HeaderCorrelationID); got != "from-proxy" {
		t.Errorf("id from X-Request-ID = %q", got)
	}

	rec = env.get(t, "/")
	if got := rec.Header().Get(HeaderCorrelationID); len(got) != 36 {
		t.Errorf("generated id = %q, want a UUID", got)
	}
}

func TestNormalizeCorrelationID(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  id  ", "id"},
		{"", ""},
		{"bad\r\nheader", ""},
		{strings.Repeat("x", 200), strings.Repeat("x", maxCorrelationIDLen)},
	}
	for _, tt := range tests {
		if got := normalizeCorrelationID(tt.in); got != tt.want {
			t.Errorf("normalizeCorrelationID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, serveBody(""), auth.Config{Enabled: true, Token: "secret"})

	rec := env.get(t, "/", "Origin", "https://app.example")
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Errorf("Allow-Origin = %q", got)
	}

	rec = env.get(t, "/", "Origin", "https://evil.example")
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin for unknown origin = %q, want empty", got)
	}

	// Preflight is answered before auth.
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/gp/iss", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code == http.StatusUnauthorized {
		t.Error("preflight was rejected by auth")
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Errorf("preflight Allow-Origin = %q", got)
	}
}

func TestReadyzAfterShutdown(t *testing.T) {
	env := newTestEnv(t, serveBody(""), auth.Config{})
	if rec := env.get(t, "/readyz"); rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if err := env.server.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if rec := env.get(t, "/readyz"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

type panicCatalog struct{}

func (panicCatalog) Lines(context.Context, tle.Request) ([]string, error) { panic("boom") }
func (panicCatalog) Elements(context.Context, tle.Request) ([]tle.ElementSet, error) {
	panic("boom")
}

func TestPanicRecovered(t *testing.T) {
	srv := NewServer(Config{Addr: ":0"}, panicCatalog{}, testLogger())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/gp/active", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

type nanCatalog struct{}

func (nanCatalog) Lines(context.Context, tle.Request) ([]string, error) { return nil, nil }
func (nanCatalog) Elements(context.Context, tle.Request) ([]tle.ElementSet, error) {
	return []tle.ElementSet{{SatelliteName: "ISS (ZARYA)", InclinationDeg: math.NaN()}}, nil
}

func TestUnencodableResponseIsInternalError(t *testing.T) {
	srv := NewServer(Config{Addr: ":0"}, nanCatalog{}, testLogger())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/gp/iss", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("body is not JSON: %v (%q)", err, rec.Body.String())
	}
	if body["error"] == "" {
		t.Errorf("body = %v, want an error message", body)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&tle.InvalidRequestError{Field: "flag", Value: "X"}, http.StatusBadRequest},
		{&tle.StatusError{StatusCode: 404}, http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{&url.Error{Op: "Get", URL: "http://x", Err: context.DeadlineExceeded}, http.StatusGatewayTimeout},
		{context.Canceled, statusClientClosedRequest},
		{io.ErrUnexpectedEOF, http.StatusBadGateway},
	}
	for _, tt := range tests {
		if got, _ := classify(tt.err); got != tt.want {
			t.Errorf("classify(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
