package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		Port       int    `yaml:"port"`
		DataPath   string `yaml:"data_path"`
		UIPassword string `yaml:"ui_password"`
		Debug      bool   `yaml:"debug"`
		JWTSecret  string `yaml:"jwt_secret"` // empty disables auth on the API
	} `yaml:"app"`

	API struct {
		BaseURL          string  `yaml:"base_url"`
		CredentialHeader string  `yaml:"credential_header"`
		MaxRetries       int     `yaml:"max_retries"`
		Timeout          string  `yaml:"timeout"`
		RateLimit        float64 `yaml:"rate_limit"` // requests per second, 0 means unlimited
		RateBurst        int     `yaml:"rate_burst"`
	} `yaml:"api"`

	Credentials struct {
		Endpoint        string `yaml:"endpoint"`
		FallbackKey     string `yaml:"fallback_key"`
		FreshFor        string `yaml:"fresh_for"`
		RefreshSchedule string `yaml:"refresh_schedule"`
	} `yaml:"credentials"`

	// Issuer configures the built-in key issuing endpoint (/api/keys).
	Issuer struct {
		Enabled bool     `yaml:"enabled"`
		Keys    []string `yaml:"keys"`
	} `yaml:"issuer"`

	Player struct {
		ScriptURL string `yaml:"script_url"`
		Token     string `yaml:"token"`
	} `yaml:"player"`

	Limits struct {
		History              int    `yaml:"history"`
		Similar              int    `yaml:"similar"`
		Actors               int    `yaml:"actors"`
		Directors            int    `yaml:"directors"`
		Autocomplete         int    `yaml:"autocomplete"`
		AutocompleteMinChars int    `yaml:"autocomplete_min_chars"`
		AutocompleteDebounce string `yaml:"autocomplete_debounce"`
	} `yaml:"limits"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Cache struct {
		RedisAddr     string `yaml:"redis_addr"` // empty keeps the memo in process memory
		RedisPassword string `yaml:"redis_password"`
		RedisDB       int    `yaml:"redis_db"`
		Prefix        string `yaml:"prefix"`
	} `yaml:"cache"`

	Notifications struct {
		Pushbullet struct {
			APIKey string `yaml:"api_key"`
		} `yaml:"pushbullet"`
	} `yaml:"notifications"`
}

func Load(path string) (*Config, error) {
	cfg := &Config{}
	setDefaults(cfg)

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	loadFromEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(cfg *Config) {
	cfg.App.Port = 8081
	cfg.App.DataPath = "./data"
	cfg.App.UIPassword = "password"
	cfg.App.Debug = false

	cfg.API.BaseURL = "https://kinopoiskapiunofficial.tech/api"
	cfg.API.CredentialHeader = "X-API-KEY"
	cfg.API.MaxRetries = 3
	cfg.API.Timeout = "10s"
	cfg.API.RateBurst = 5

	cfg.Credentials.Endpoint = "http://localhost:8081/api/keys"
	cfg.Credentials.FreshFor = "1h"
	cfg.Credentials.RefreshSchedule = "@every 1h"

	cfg.Issuer.Enabled = true

	cfg.Player.ScriptURL = "https://allohatv.github.io/insert-player.js"

	cfg.Limits.History = 15
	cfg.Limits.Similar = 15
	cfg.Limits.Actors = 4
	cfg.Limits.Directors = 2
	cfg.Limits.Autocomplete = 5
	cfg.Limits.AutocompleteMinChars = 2
	cfg.Limits.AutocompleteDebounce = "300ms"

	cfg.Database.Path = "./data/cineplex.db"

	cfg.Cache.Prefix = "cineplex:memo"
}

func loadFromEnv(cfg *Config) {
	if v := os.Getenv("CINEPLEX_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.App.Port = port
		}
	}
	if v := os.Getenv("CINEPLEX_DEBUG"); v != "" {
		cfg.App.Debug = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("CINEPLEX_JWT_SECRET"); v != "" {
		cfg.App.JWTSecret = v
	}
	if v := os.Getenv("CINEPLEX_API_BASE_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("CINEPLEX_KEYS_ENDPOINT"); v != "" {
		cfg.Credentials.Endpoint = v
	}
	if v := os.Getenv("CINEPLEX_FALLBACK_KEY"); v != "" {
		cfg.Credentials.FallbackKey = v
	}
	if v := os.Getenv("CINEPLEX_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("CINEPLEX_PUSHBULLET_API_KEY"); v != "" {
		cfg.Notifications.Pushbullet.APIKey = v
	}

	cfg.Issuer.Keys = mergeKeys(cfg.Issuer.Keys, envKeys())
}

// envKeys collects API_KEY_1, API_KEY_2, ... in numeric order.
func envKeys() []string {
	type indexed struct {
		n   int
		key string
	}
	var found []indexed
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, "API_KEY_") || value == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(name, "API_KEY_"))
		if err != nil {
			continue
		}
		found = append(found, indexed{n: n, key: value})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].n < found[j].n })

	keys := make([]string, 0, len(found))
	for _, f := range found {
		keys = append(keys, f.key)
	}
	return keys
}

func mergeKeys(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, list := range [][]string{a, b} {
		for _, k := range list {
			k = strings.TrimSpace(k)
			if k == "" || seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}

// Validate checks durations and numeric limits that would otherwise fail late.
func (c *Config) Validate() error {
	for name, value := range map[string]string{
		"api.timeout":                  c.API.Timeout,
		"credentials.fresh_for":        c.Credentials.FreshFor,
		"limits.autocomplete_debounce": c.Limits.AutocompleteDebounce,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, value, err)
		}
	}
	if c.API.MaxRetries < 0 {
		return fmt.Errorf("api.max_retries must not be negative, got %d", c.API.MaxRetries)
	}
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	return nil
}

func (c *Config) APITimeout() time.Duration {
	d, _ := time.ParseDuration(c.API.Timeout)
	return d
}

func (c *Config) CredentialsFreshFor() time.Duration {
	d, _ := time.ParseDuration(c.Credentials.FreshFor)
	return d
}

func (c *Config) AutocompleteDebounce() time.Duration {
	d, _ := time.ParseDuration(c.Limits.AutocompleteDebounce)
	return d
}
