package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// FallbackAPIURL is used when nothing else resolves a base URL.
	FallbackAPIURL = "https://trangaapi.tjcs.io"

	// DefaultAPIPort is the port the API listens on when co-hosted with the client.
	DefaultAPIPort = "6531"

	hostedDomain = "tjcs.io"
)

// BuildAPIURL is the build-time default API URL, set with
// -ldflags "-X github.com/cwoolley/mangafind/internal/config.BuildAPIURL=...".
var BuildAPIURL = ""

// NoTimeout disables the per-request timeout.
const NoTimeout time.Duration = -1

type Config struct {
	APIHost string
	Origin  string
	BaseURL string
	// Timeout bounds each API request. MANGAFIND_TIMEOUT=0 disables it,
	// which is stored as a negative value.
	Timeout        time.Duration
	TokenPath      string
	ServerAddr     string
	RateLimit      float64
	ConnectorTTL   time.Duration
	MaxConcurrency int
	Verbose        bool
}

// userHomeDir is overridden in tests.
var userHomeDir = os.UserHomeDir

// loadDotenv populates the environment from a .env file if one exists.
// Variables already set in the environment are left alone.
var loadDotenv = func() { _ = godotenv.Load() }

func Load() (*Config, error) {
	loadDotenv()

	cfg := &Config{
		APIHost:    os.Getenv("MANGAFIND_API_HOST"),
		Origin:     os.Getenv("MANGAFIND_ORIGIN"),
		ServerAddr: envOr("MANGAFIND_SERVER_ADDR", ":8080"),
		TokenPath:  envOr("MANGAFIND_TOKEN_PATH", defaultTokenPath()),
		Verbose:    envBool("MANGAFIND_VERBOSE"),
	}
	cfg.BaseURL = ResolveBaseURL(cfg.APIHost, BuildAPIURL, cfg.Origin)

	var err error
	if cfg.Timeout, err = envDuration("MANGAFIND_TIMEOUT", 45*time.Second); err != nil {
		return nil, err
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = NoTimeout
	}
	if cfg.ConnectorTTL, err = envDuration("MANGAFIND_CONNECTOR_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if v := os.Getenv("MANGAFIND_RATE_LIMIT"); v != "" {
		if cfg.RateLimit, err = strconv.ParseFloat(v, 64); err != nil || cfg.RateLimit < 0 {
			return nil, fmt.Errorf("invalid MANGAFIND_RATE_LIMIT %q", v)
		}
	}
	if v := os.Getenv("MANGAFIND_MAX_CONCURRENCY"); v != "" {
		if cfg.MaxConcurrency, err = strconv.Atoi(v); err != nil || cfg.MaxConcurrency < 0 {
			return nil, fmt.Errorf("invalid MANGAFIND_MAX_CONCURRENCY %q", v)
		}
	}
	return cfg, nil
}

// ResolveBaseURL picks the API base URL. An explicit override wins unless it
// is the degenerate host-less form, then the build-time default, then the
// API port on the same host as origin, then FallbackAPIURL.
func ResolveBaseURL(override, buildDefault, origin string) string {
	if override != "" && override != "http://:"+DefaultAPIPort && override != "https://:"+DefaultAPIPort {
		return strings.TrimRight(override, "/")
	}
	if buildDefault != "" {
		return strings.TrimRight(buildDefault, "/")
	}
	if origin != "" {
		if u, err := url.Parse(origin); err == nil && u.Scheme != "" {
			host := u.Hostname()
			if host != "" && host != "localhost" && !strings.Contains(host, hostedDomain) {
				return u.Scheme + "://" + net.JoinHostPort(host, DefaultAPIPort)
			}
		}
	}
	return FallbackAPIURL
}

func defaultTokenPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "mangafind", "token.json")
	}
	home, err := userHomeDir()
	if err != nil || home == "" {
		return "token.json"
	}
	return filepath.Join(home, ".config", "mangafind", "token.json")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string) bool {
	b, _ := strconv.ParseBool(os.Getenv(key))
	return b
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s %q", key, v)
	}
	return d, nil
}
