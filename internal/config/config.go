// Package config loads service configuration from defaults, an optional YAML
// file and ORBVISION_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/lorenzopantano/orbvision/internal/auth"
	"github.com/lorenzopantano/orbvision/internal/catalog"
	"github.com/lorenzopantano/orbvision/internal/tle"
)

// EnvPrefix prefixes every environment variable, e.g. ORBVISION_HTTP_ADDR.
const EnvPrefix = "ORBVISION"

// Config is the complete service configuration.
type Config struct {
	HTTP    HTTPConfig
	Auth    auth.Config
	Catalog CatalogConfig
	Cache   catalog.Config
	Log     LogConfig
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr        string
	TrustProxy  bool     // honor X-Forwarded-For / X-Real-IP in request logs
	CORSOrigins []string // allowed origins; "*" allows all

	MaxInflightPerIP int
	MaxInflightTotal int
}

// CatalogConfig configures the upstream catalog fetcher.
type CatalogConfig struct {
	BaseURL      string
	Timeout      time.Duration
	MaxBodyBytes int64
	UserAgent    string
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string
	Format string
}

var defaults = map[string]any{
	"http.addr":              ":8080",
	"http.trust_proxy":       false,
	"http.cors_origins":      "*",
	"http.max_inflight_ip":   4,
	"http.max_inflight":      256,
	"auth.enabled":           false,
	"auth.token":             "",
	"catalog.base_url":       tle.DefaultBaseURL,
	"catalog.timeout":        "30s",
	"catalog.max_body_bytes": 50 << 20,
	"catalog.user_agent":     "orbvision/1.0",
	"cache.ttl":              "2h",
	"cache.max_entries":      64,
	"log.level":              "info",
	"log.format":             "json",
}

// Load reads configuration. path may be empty, in which case only defaults
// and the environment apply. Malformed numeric or duration values are logged
// and replaced by their defaults; structural problems are returned as errors.
func Load(path string, logger *slog.Logger) (Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	r := reader{v: v, logger: logger}
	cfg := Config{
		HTTP: HTTPConfig{
			Addr:        v.GetString("http.addr"),
			TrustProxy:  r.bool("http.trust_proxy"),
			CORSOrigins: splitList(v.GetString("http.cors_origins")),

			MaxInflightPerIP: r.positiveInt("http.max_inflight_ip"),
			MaxInflightTotal: r.positiveInt("http.max_inflight"),
		},
		Auth: auth.Config{
			Enabled: r.bool("auth.enabled"),
			Token:   v.GetString("auth.token"),
		},
		Catalog: CatalogConfig{
			BaseURL:      v.GetString("catalog.base_url"),
			Timeout:      r.duration("catalog.timeout"),
			MaxBodyBytes: int64(r.positiveInt("catalog.max_body_bytes")),
			UserAgent:    v.GetString("catalog.user_agent"),
		},
		Cache: catalog.Config{
			CacheTTL:        r.duration("cache.ttl"),
			CacheMaxEntries: r.positiveInt("cache.max_entries"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	logger.Info("config loaded",
		"config_file", path,
		"http_addr", cfg.HTTP.Addr,
		"auth_enabled", cfg.Auth.Enabled,
		"catalog_base_url", cfg.Catalog.BaseURL,
		"catalog_timeout_seconds", cfg.Catalog.Timeout.Seconds(),
		"cache_ttl_seconds", cfg.Cache.CacheTTL.Seconds(),
		"cache_max_entries", cfg.Cache.CacheMaxEntries,
	)

	return cfg, nil
}

func (c Config) validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	if c.Auth.Enabled && c.Auth.Token == "" {
		return errors.New(EnvPrefix + "_AUTH_TOKEN is required when auth is enabled")
	}
	if c.Catalog.BaseURL == "" {
		return errors.New("catalog.base_url is required")
	}
	return nil
}

// reader applies the warn-and-default policy to individual keys.
type reader struct {
	v      *viper.Viper
	logger *slog.Logger
}

func (r reader) warn(key, value string) {
	r.logger.Warn("invalid config value, using default",
		"key", key,
		"env", EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")),
		"value", value,
		"default", defaults[key],
	)
}

func (r reader) bool(key string) bool {
	s := strings.TrimSpace(r.v.GetString(key))
	b, err := strconv.ParseBool(s)
	if err != nil {
		r.warn(key, s)
		return defaults[key].(bool)
	}
	return b
}

func (r reader) positiveInt(key string) int {
	s := strings.TrimSpace(r.v.GetString(key))
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		r.warn(key, s)
		return defaults[key].(int)
	}
	return n
}

// duration accepts Go duration strings ("90s", "2h") or bare integers as
// seconds. Zero is allowed.
func (r reader) duration(key string) time.Duration {
	s := strings.TrimSpace(r.v.GetString(key))
	d, err := parseDuration(s)
	if err != nil || d < 0 {
		r.warn(key, s)
		d, _ = parseDuration(defaults[key].(string))
	}
	return d
}

func parseDuration(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
