package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Client is the configuration of cmd/skillswap.
type Client struct {
	// BaseURL is the REST root, e.g. http://localhost:5000.
	BaseURL string `mapstructure:"base_url"`
	// LiveURL is the websocket endpoint. Derived from BaseURL when empty.
	LiveURL string `mapstructure:"live_url"`
	// SessionPath overrides where the session file lives.
	SessionPath    string        `mapstructure:"session_path"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	TypingDebounce time.Duration `mapstructure:"typing_debounce"`
	Log            LogConfig
}

// LoadClient reads client.yaml (or configFile) and the environment.
func LoadClient(configFile string) (*Client, error) {
	v, err := newViper(configFile, "client")
	if err != nil {
		return nil, err
	}

	v.SetDefault("base_url", "http://localhost:5000")
	v.SetDefault("request_timeout", "15s")
	v.SetDefault("typing_debounce", "2s")
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.pretty", true)

	bindEnv(v, map[string]string{
		"base_url":     "SKILLSWAP_API_URL",
		"live_url":     "SKILLSWAP_LIVE_URL",
		"session_path": "SKILLSWAP_SESSION",
		"log.level":    "SKILLSWAP_LOG_LEVEL",
	})

	var cfg Client
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode client: %w", err)
	}
	cfg.RequestTimeout = durationOr(cfg.RequestTimeout, 15*time.Second)
	cfg.TypingDebounce = durationOr(cfg.TypingDebounce, 2*time.Second)

	if cfg.LiveURL == "" {
		live, err := LiveURLFor(cfg.BaseURL)
		if err != nil {
			return nil, err
		}
		cfg.LiveURL = live
	}
	return &cfg, nil
}

// LiveURLFor maps http(s)://host/prefix to ws(s)://host/prefix/ws.
func LiveURLFor(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("config: base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("config: base url %q must be http or https", base)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	u.RawQuery = ""
	return u.String(), nil
}
