package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	"tvatt-backend/internal/cache"
	"tvatt-backend/internal/laundry"
	"tvatt-backend/internal/service"
	"tvatt-backend/lib/configutil"
)

// BaseUrlEnv overrides base_url when set.
const BaseUrlEnv = "WEBBOKA_BASE_URL"

const (
	defaultPort     = 8000
	defaultTimezone = "Europe/Stockholm"
)

// File is config.json5 as written on disk. Durations are strings like "10m".
type File struct {
	Port              int             `json:"port"`
	BaseUrl           string          `json:"base_url"`
	Timezone          string          `json:"timezone"`
	AllowedOrigins    []string        `json:"allowed_origins"`
	SessionTTL        string          `json:"session_ttl"`
	ResultTTL         string          `json:"result_ttl"`
	FetchTimeout      string          `json:"fetch_timeout"`
	RecentWindow      string          `json:"recent_window"`
	CacheCapacity     int             `json:"cache_capacity"`
	RequestsPerSecond float64         `json:"requests_per_second"`
	CloudflareBypass  bool            `json:"cloudflare_bypass"`
	Markers           laundry.Markers `json:"markers"`
}

// Config is File with defaults applied and durations parsed.
type Config struct {
	Port              int
	BaseUrl           string
	Timezone          string
	AllowedOrigins    []string
	SessionTTL        time.Duration
	ResultTTL         time.Duration
	FetchTimeout      time.Duration
	RecentWindow      time.Duration
	CacheCapacity     int
	RequestsPerSecond float64
	CloudflareBypass  bool
	Markers           laundry.Markers
}

// Load reads path (and its .local override). A missing file is not an error as long as the
// base url comes from the environment.
func Load(path string) (Config, error) {
	file, err := configutil.ReadConfig[File](path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Resolve(file, os.Getenv(BaseUrlEnv))
}

// Resolve applies defaults and the base url override to file.
func Resolve(file File, baseUrlOverride string) (Config, error) {
	cfg := Config{
		Port:              file.Port,
		BaseUrl:           strings.TrimRight(strings.TrimSpace(file.BaseUrl), "/"),
		Timezone:          file.Timezone,
		AllowedOrigins:    file.AllowedOrigins,
		CacheCapacity:     file.CacheCapacity,
		RequestsPerSecond: file.RequestsPerSecond,
		CloudflareBypass:  file.CloudflareBypass,
	}

	if override := strings.TrimSpace(baseUrlOverride); override != "" {
		cfg.BaseUrl = strings.TrimRight(override, "/")
	}
	if cfg.BaseUrl == "" {
		return Config{}, fmt.Errorf("base_url is required (or set %s)", BaseUrlEnv)
	}
	if cfg.Port <= 0 {
		cfg.Port = defaultPort
	}
	if cfg.Timezone == "" {
		cfg.Timezone = defaultTimezone
	}
	if cfg.CacheCapacity <= 0 {
		cfg.CacheCapacity = cache.DefaultCapacity
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 10
	}

	var err error
	cfg.SessionTTL, err = configutil.Duration(file.SessionTTL, cache.DefaultSessionTTL)
	if err != nil {
		return Config{}, fmt.Errorf("session_ttl: %w", err)
	}
	cfg.ResultTTL, err = configutil.Duration(file.ResultTTL, cache.DefaultResultTTL)
	if err != nil {
		return Config{}, fmt.Errorf("result_ttl: %w", err)
	}
	cfg.FetchTimeout, err = configutil.Duration(file.FetchTimeout, service.DefaultFetchTimeout)
	if err != nil {
		return Config{}, fmt.Errorf("fetch_timeout: %w", err)
	}
	cfg.RecentWindow, err = configutil.Duration(file.RecentWindow, laundry.DefaultRecentWindow)
	if err != nil {
		return Config{}, fmt.Errorf("recent_window: %w", err)
	}

	cfg.Markers = laundry.DefaultMarkers()
	err = configutil.Merge(&cfg.Markers, file.Markers)
	if err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Classifier builds the classifier described by the markers and recent window.
func (c Config) Classifier() laundry.Classifier {
	return laundry.NewClassifier(c.Markers, c.RecentWindow)
}
