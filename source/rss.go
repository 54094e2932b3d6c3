package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mmcdole/gofeed"
	log "github.com/sirupsen/logrus"
)

const maxFeedSize = 10 << 20 // 10MB

// RssConfig configures an RssSource
type RssConfig struct {
	// URL of the RSS, Atom or JSON feed
	URL string

	// Home page of the blog. Defaults to the root of URL.
	Home string

	UserAgent string
	Timeout   time.Duration

	// Client overrides the HTTP client built from Timeout
	Client *http.Client

	// Retrier overrides the default 4 attempt schedule
	Retrier *Retrier
}

// RssSource fetches a feed document over HTTP and parses it with gofeed
type RssSource struct {
	url       string
	home      string
	userAgent string
	client    *http.Client
	parser    *gofeed.Parser
	retrier   *Retrier
}

func NewRssSource(config RssConfig) *RssSource {
	home := config.Home
	if home == "" {
		home = siteRoot(config.URL)
	}
	userAgent := config.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	retrier := config.Retrier
	if retrier == nil {
		retrier = NewRetrier()
	}

	return &RssSource{
		url:       config.URL,
		home:      home,
		userAgent: userAgent,
		client:    newHTTPClient(config.Client, config.Timeout),
		parser:    gofeed.NewParser(),
		retrier:   retrier,
	}
}

func (s *RssSource) Name() string { return "rss" }

func (s *RssSource) Home() string { return s.home }

// Fetch retrieves and parses the feed, retrying transient failures
func (s *RssSource) Fetch(ctx context.Context) (*Payload, error) {
	var feed *gofeed.Feed

	err := s.retrier.Do(ctx, s.Name(), func(attempt int) error {
		log.WithFields(log.Fields{
			"url":     s.url,
			"attempt": attempt,
		}).Debug("Fetching feed")

		parsed, err := s.fetchOnce(ctx)
		observeOutcome(s.Name(), err)
		if err != nil {
			return err
		}
		feed = parsed
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", s.url, err)
	}

	return &Payload{Items: feed.Items}, nil
}

func (s *RssSource) fetchOnce(ctx context.Context) (*gofeed.Feed, error) {
	start := time.Now()
	defer func() {
		upstreamDuration.WithLabelValues(s.Name()).Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		// A malformed URL will not get better by retrying
		return nil, backoff.Permanent(newError(s.Name(), KindTransport, err))
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/feed+json, application/xml;q=0.9, */*;q=0.8")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, newError(s.Name(), KindTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		fe := newError(s.Name(), KindRateLimited, nil)
		fe.Status = resp.StatusCode
		fe.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		return nil, fe
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		fe := newError(s.Name(), KindTransport, fmt.Errorf("unexpected status %s", resp.Status))
		fe.Status = resp.StatusCode
		return nil, fe
	}

	feed, err := s.parser.Parse(io.LimitReader(resp.Body, maxFeedSize))
	if err != nil {
		return nil, newError(s.Name(), KindParse, err)
	}

	return feed, nil
}
