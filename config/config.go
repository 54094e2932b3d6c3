package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"blogfeed/cache"
	"blogfeed/normalize"
	"blogfeed/source"
)

const (
	SourceGraphQL = "graphql"
	SourceRss     = "rss"

	DefaultPort    = 3000
	DefaultTimeout = 10 * time.Second
)

// TomlGraphQL configures the GraphQL publication source
type TomlGraphQL struct {
	Endpoint string `toml:"endpoint"`
	Host     string `toml:"host"`
}

// TomlRss configures the RSS feed source
type TomlRss struct {
	URL  string `toml:"url"`
	Home string `toml:"home"`
}

// TomlFallback is the placeholder post served when nothing else is available
type TomlFallback struct {
	Title       string `toml:"title"`
	Description string `toml:"description"`
}

// TomlServer configures the HTTP listener
type TomlServer struct {
	Port         int    `toml:"port"`
	AllowOrigins string `toml:"allow_origins"`
}

// TomlLog configures logrus
type TomlLog struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // text|json
}

// Config is the complete configuration of a deployment. Durations are
// written as Go duration strings, e.g. "30m".
type Config struct {
	Source       string       `toml:"source"` // graphql|rss
	TTL          string       `toml:"ttl"`
	Timeout      string       `toml:"timeout"`
	FetchTimeout string       `toml:"fetch_timeout"`
	WarmInterval string       `toml:"warm_interval"`
	UserAgent    string       `toml:"user_agent"`
	Limit        int          `toml:"limit"`
	GraphQL      TomlGraphQL  `toml:"graphql"`
	Rss          TomlRss      `toml:"rss"`
	Fallback     TomlFallback `toml:"fallback"`
	Server       TomlServer   `toml:"server"`
	Log          TomlLog      `toml:"log"`

	ttl          time.Duration
	timeout      time.Duration
	fetchTimeout time.Duration
	warmInterval time.Duration
}

// LoadConfig reads the TOML file at path. Call Validate once flag
// overrides have been applied.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

// LoadOptional behaves like LoadConfig but returns an empty Config when no
// file exists at path
func LoadOptional(path string) (*Config, error) {
	if path == "" {
		return &Config{}, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return &Config{}, nil
	}
	return LoadConfig(path)
}

// Validate fills defaults and rejects invalid combinations
func (c *Config) Validate() error {
	c.Source = strings.ToLower(strings.TrimSpace(c.Source))
	if c.Source == "" {
		if c.Rss.URL != "" && c.GraphQL.Host == "" {
			c.Source = SourceRss
		} else {
			c.Source = SourceGraphQL
		}
	}

	switch c.Source {
	case SourceGraphQL:
		if c.GraphQL.Host == "" {
			return errors.New("graphql source requires a publication host")
		}
		if c.GraphQL.Endpoint == "" {
			c.GraphQL.Endpoint = source.DefaultGraphQLEndpoint
		}
	case SourceRss:
		if c.Rss.URL == "" {
			return errors.New("rss source requires a feed url")
		}
	default:
		return fmt.Errorf("unsupported source: %s", c.Source)
	}

	var err error
	if c.ttl, err = parseDuration("ttl", c.TTL, c.defaultTTL()); err != nil {
		return err
	}
	if c.timeout, err = parseDuration("timeout", c.Timeout, DefaultTimeout); err != nil {
		return err
	}
	if c.fetchTimeout, err = parseDuration("fetch_timeout", c.FetchTimeout, 0); err != nil {
		return err
	}
	if c.warmInterval, err = parseDuration("warm_interval", c.WarmInterval, 0); err != nil {
		return err
	}

	if c.Limit < 0 {
		return errors.New("limit must be >= 0")
	}
	if c.Limit == 0 {
		c.Limit = normalize.DefaultLimit
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}

	return nil
}

func (c *Config) defaultTTL() time.Duration {
	if c.Source == SourceRss {
		return cache.DefaultRssTTL
	}
	return cache.DefaultGraphQLTTL
}

// CacheTTL is the parsed ttl, defaulting by source
func (c *Config) CacheTTL() time.Duration { return c.ttl }

// RequestTimeout bounds a single upstream HTTP request
func (c *Config) RequestTimeout() time.Duration { return c.timeout }

// RefreshTimeout bounds a whole refresh including retries, zero for the service default
func (c *Config) RefreshTimeout() time.Duration { return c.fetchTimeout }

// WarmEvery is how often the server refreshes the cache in the
// background, zero when disabled
func (c *Config) WarmEvery() time.Duration { return c.warmInterval }

func parseDuration(name string, value string, fallback time.Duration) (time.Duration, error) {
	if strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", name, value)
	}
	return d, nil
}
