package cmd

import (
	"fmt"
	"io"
	"strings"

	"blogfeed/cache"
	"blogfeed/config"
	"blogfeed/normalize"
	"blogfeed/service"
	"blogfeed/source"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

// feedFlags are shared by every command that talks to upstream
func feedFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Value:   "config/blogfeed.toml",
			Usage:   "Path to the configuration file, ignored when missing",
			EnvVars: []string{"BLOGFEED_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "source",
			Aliases: []string{"s"},
			Usage:   "Upstream to read posts from: graphql or rss",
			EnvVars: []string{"BLOGFEED_SOURCE"},
		},
		&cli.StringFlag{
			Name:    "graphql-endpoint",
			Usage:   "Hashnode GraphQL endpoint",
			EnvVars: []string{"BLOGFEED_GRAPHQL_ENDPOINT"},
		},
		&cli.StringFlag{
			Name:    "host",
			Usage:   "Publication host, e.g. myname.hashnode.dev",
			EnvVars: []string{"BLOGFEED_HOST", "HASHNODE_BLOG_HOST"},
		},
		&cli.StringFlag{
			Name:    "rss-url",
			Usage:   "URL of the RSS, Atom or JSON feed",
			EnvVars: []string{"BLOGFEED_RSS_URL"},
		},
		&cli.StringFlag{
			Name:    "ttl",
			Usage:   "How long fetched posts are served from cache, e.g. 30m",
			EnvVars: []string{"BLOGFEED_TTL"},
		},
		&cli.StringFlag{
			Name:    "timeout",
			Usage:   "Timeout of a single upstream request, e.g. 10s",
			EnvVars: []string{"BLOGFEED_TIMEOUT"},
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level: trace, debug, info, warn or error",
			EnvVars: []string{"BLOGFEED_LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "Log format: text or json",
			EnvVars: []string{"BLOGFEED_LOG_FORMAT"},
		},
	}
}

// loadConfig reads the optional config file and applies flag and
// environment overrides on top of it
func loadConfig(ctx *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadOptional(ctx.String("config"))
	if err != nil {
		return nil, err
	}

	overrides := map[string]*string{
		"source":           &cfg.Source,
		"graphql-endpoint": &cfg.GraphQL.Endpoint,
		"host":             &cfg.GraphQL.Host,
		"rss-url":          &cfg.Rss.URL,
		"ttl":              &cfg.TTL,
		"timeout":          &cfg.Timeout,
		"cors-origin":      &cfg.Server.AllowOrigins,
		"warm-interval":    &cfg.WarmInterval,
		"log-level":        &cfg.Log.Level,
		"log-format":       &cfg.Log.Format,
	}
	for name, field := range overrides {
		if ctx.IsSet(name) {
			*field = ctx.String(name)
		}
	}
	if ctx.IsSet("port") {
		cfg.Server.Port = ctx.Int("port")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// setupLogging configures the global logrus logger
func setupLogging(cfg *config.Config, out io.Writer) error {
	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	log.SetLevel(level)
	log.SetOutput(out)

	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("unsupported log format: %s", cfg.Log.Format)
	}
	return nil
}

// newSource builds the configured upstream
func newSource(cfg *config.Config) source.Source {
	switch cfg.Source {
	case config.SourceRss:
		return source.NewRssSource(source.RssConfig{
			URL:       cfg.Rss.URL,
			Home:      cfg.Rss.Home,
			UserAgent: cfg.UserAgent,
			Timeout:   cfg.RequestTimeout(),
		})
	default:
		return source.NewGraphQLSource(source.GraphQLConfig{
			Endpoint:  cfg.GraphQL.Endpoint,
			Host:      cfg.GraphQL.Host,
			UserAgent: cfg.UserAgent,
			Timeout:   cfg.RequestTimeout(),
		})
	}
}

// newService wires source, normalizer and cache into a feed service
func newService(cfg *config.Config) *service.Service {
	return service.New(
		newSource(cfg),
		normalize.New(normalize.Options{Limit: cfg.Limit}),
		cache.New(cfg.CacheTTL()),
		service.Config{
			FetchTimeout:        cfg.RefreshTimeout(),
			FallbackTitle:       cfg.Fallback.Title,
			FallbackDescription: cfg.Fallback.Description,
		},
	)
}
