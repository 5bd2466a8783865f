package catalog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

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

type fakeSource struct {
	mu    sync.Mutex
	calls int
	lines []string
	err   error
	block chan struct{}
	reqs  []tle.Request
}

func (f *fakeSource) FetchLines(ctx context.Context, req tle.Request) ([]string, error) {
	f.mu.Lock()
	f.calls++
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.lines, nil
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

var issReq = tle.Request{Query: tle.QueryCatalogNumber, Value: "25544"}

func TestServiceElementsStampsProvenance(t *testing.T) {
	src := &fakeSource{lines: []string{issName, issLine1, issLine2}}
	svc := NewService(src, Config{}, testLogger())

	records, err := svc.Elements(context.Background(), issReq)
	if err != nil {
		t.Fatalf("Elements: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	want := tle.Provenance{QueryType: tle.QueryCatalogNumber, Value: "25544", Format: tle.FormatTLE}
	if records[0].Provenance != want {
		t.Errorf("Provenance = %+v, want %+v", records[0].Provenance, want)
	}
	if src.reqs[0].Format != tle.FormatTLE || src.reqs[0].Endpoint != tle.EndpointGP {
		t.Errorf("defaults not applied to upstream request: %+v", src.reqs[0])
	}
}

func TestServiceElementsEmptyIsNotNil(t *testing.T) {
	src := &fakeSource{lines: []string{"garbage", "1 2", "2 3"}}
	svc := NewService(src, Config{}, testLogger())

	records, err := svc.Elements(context.Background(), issReq)
	if err != nil {
		t.Fatalf("Elements: %v", err)
	}
	if records == nil || len(records) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", records)
	}
}

func TestServiceElementsRejectsUndecodableFormat(t *testing.T) {
	src := &fakeSource{}
	svc := NewService(src, Config{}, testLogger())

	req := issReq
	req.Format = tle.FormatCSV
	_, err := svc.Elements(context.Background(), req)
	if !errors.Is(err, tle.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if src.callCount() != 0 {
		t.Errorf("expected no upstream call, got %d", src.callCount())
	}
}

func TestServiceInvalidRequestSkipsUpstream(t *testing.T) {
	src := &fakeSource{}
	svc := NewService(src, Config{}, testLogger())

	_, err := svc.Lines(context.Background(), tle.Request{Query: "NOPE", Value: "x"})
	if !errors.Is(err, tle.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if src.callCount() != 0 {
		t.Errorf("expected no upstream call, got %d", src.callCount())
	}
}

func TestServicePropagatesSourceErrorUnchanged(t *testing.T) {
	upstream := &tle.StatusError{StatusCode: 503, URL: "http://example.invalid/gp.php"}
	src := &fakeSource{err: upstream}
	svc := NewService(src, Config{CacheTTL: time.Minute}, testLogger())

	_, err := svc.Elements(context.Background(), issReq)
	if err != upstream {
		t.Fatalf("expected the source error value, got %T: %v", err, err)
	}

	// Failures are not cached.
	_, _ = svc.Lines(context.Background(), issReq)
	if src.callCount() != 2 {
		t.Errorf("expected 2 upstream calls, got %d", src.callCount())
	}
	if svc.CachedResponses() != 0 {
		t.Errorf("expected empty cache, got %d", svc.CachedResponses())
	}
}

func TestServiceCachesResponses(t *testing.T) {
	src := &fakeSource{lines: []string{issName, issLine1, issLine2}}
	svc := NewService(src, Config{CacheTTL: time.Minute, CacheMaxEntries: 4}, testLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.Elements(ctx, issReq); err != nil {
			t.Fatalf("Elements: %v", err)
		}
	}
	if src.callCount() != 1 {
		t.Errorf("expected 1 upstream call, got %d", src.callCount())
	}

	// A different request is a different cache entry.
	if _, err := svc.Lines(ctx, tle.Request{Query: tle.QueryGroup, Value: "STATIONS"}); err != nil {
		t.Fatalf("Lines: %v", err)
	}
	if src.callCount() != 2 {
		t.Errorf("expected 2 upstream calls, got %d", src.callCount())
	}
	if svc.CachedResponses() != 2 {
		t.Errorf("CachedResponses = %d, want 2", svc.CachedResponses())
	}
}

func TestServiceCacheDisabled(t *testing.T) {
	src := &fakeSource{lines: []string{issName, issLine1, issLine2}}
	svc := NewService(src, Config{CacheTTL: 0}, testLogger())

	for i := 0; i < 2; i++ {
		if _, err := svc.Lines(context.Background(), issReq); err != nil {
			t.Fatalf("Lines: %v", err)
		}
	}
	if src.callCount() != 2 {
		t.Errorf("expected 2 upstream calls with cache disabled, got %d", src.callCount())
	}
}

func TestServiceCallerCancellation(t *testing.T) {
	src := &fakeSource{lines: []string{issName, issLine1, issLine2}, block: make(chan struct{})}
	defer close(src.block)
	svc := NewService(src, Config{}, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := svc.Lines(ctx, issReq)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}

func TestFetchOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&tle.StatusError{StatusCode: 404}, "status_error"},
		{&tle.InvalidRequestError{Field: "flag", Value: "X"}, "invalid"},
		{context.DeadlineExceeded, "timeout"},
		{errors.New("boom"), "error"},
	}
	for _, tt := range tests {
		if got := fetchOutcome(tt.err); got != tt.want {
			t.Errorf("fetchOutcome(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
