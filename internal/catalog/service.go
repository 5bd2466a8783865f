// Package catalog serves element-set queries: it fetches raw catalog text,
// caches it briefly, and decodes it into stamped element sets.
package catalog

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/lorenzopantano/orbvision/internal/metrics"
	"github.com/lorenzopantano/orbvision/internal/tle"
)

// Source retrieves raw catalog lines for a request. *tle.Fetcher implements it.
type Source interface {
	FetchLines(ctx context.Context, req tle.Request) ([]string, error)
}

// Config holds catalog service configuration.
type Config struct {
	CacheTTL        time.Duration // 0 disables the response cache
	CacheMaxEntries int
}

// Service answers catalog queries. Safe for concurrent use.
type Service struct {
	source Source
	cache  *responseCache
	group  singleflight.Group
	logger *slog.Logger
}

// NewService creates a catalog service backed by src.
func NewService(src Source, cfg Config, logger *slog.Logger) *Service {
	logger.Info("catalog service initialized",
		"cache_ttl_seconds", cfg.CacheTTL.Seconds(),
		"cache_max_entries", cfg.CacheMaxEntries,
	)
	return &Service{
		source: src,
		cache:  newResponseCache(cfg.CacheMaxEntries, cfg.CacheTTL),
		logger: logger,
	}
}

// Lines returns the raw catalog lines for req. Validation failures and
// upstream errors are returned unchanged. The returned slice must not be
// modified.
func (s *Service) Lines(ctx context.Context, req tle.Request) ([]string, error) {
	if req.Format == "" {
		req.Format = tle.FormatTLE
	}
	if req.Endpoint == "" {
		req.Endpoint = tle.EndpointGP
	}
	if err := req.Validate(); err != nil {
		metrics.IncCatalogFetch("invalid")
		return nil, err
	}

	key := req.Key()
	if lines, ok := s.cache.get(key); ok {
		return lines, nil
	}

	// Identical concurrent requests share one upstream call. The shared call
	// is detached from any single caller's cancellation; the fetcher's own
	// timeout bounds it.
	ch := s.group.DoChan(key, func() (any, error) {
		start := time.Now()
		lines, err := s.source.FetchLines(context.WithoutCancel(ctx), req)
		metrics.ObserveCatalogFetchDuration(time.Since(start))
		if err != nil {
			metrics.IncCatalogFetch(fetchOutcome(err))
			s.logger.Warn("catalog fetch failed",
				"component", "catalog",
				"query_type", req.Query,
				"value", req.Value,
				"format", req.Format,
				"error", err,
			)
			return nil, err
		}
		metrics.IncCatalogFetch("ok")
		s.cache.put(key, lines)
		return lines, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]string), nil
	}
}

// Elements fetches req and decodes the response into element sets stamped
// with the request's provenance. Only TLE and 3LE formats can be decoded.
// Malformed groups are dropped silently.
func (s *Service) Elements(ctx context.Context, req tle.Request) ([]tle.ElementSet, error) {
	if req.Format == "" {
		req.Format = tle.FormatTLE
	}
	if !req.Format.Decodable() {
		metrics.IncCatalogFetch("invalid")
		return nil, &tle.InvalidRequestError{Field: "format", Value: string(req.Format), Msg: "only TLE and 3LE responses can be decoded"}
	}

	lines, err := s.Lines(ctx, req)
	if err != nil {
		return nil, err
	}

	b := tle.DecodeBatch(lines, req.Provenance())
	metrics.AddDecodedRecords(len(b.Records))
	metrics.AddSkippedGroups(b.Skipped)
	s.logger.Debug("decoded element sets",
		"component", "catalog",
		"query_type", req.Query,
		"value", req.Value,
		"groups", b.Groups,
		"records", len(b.Records),
		"skipped", b.Skipped,
	)

	if b.Records == nil {
		return []tle.ElementSet{}, nil
	}
	return b.Records, nil
}

// CachedResponses returns the number of responses currently cached.
func (s *Service) CachedResponses() int {
	return s.cache.len()
}

func fetchOutcome(err error) string {
	var se *tle.StatusError
	switch {
	case errors.Is(err, tle.ErrInvalidRequest):
		return "invalid"
	case errors.As(err, &se):
		return "status_error"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}
