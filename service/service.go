// Package service serves the normalized post list of one upstream feed,
// refreshing it through the cache and degrading to stale data or a
// placeholder when the upstream fails.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"blogfeed/cache"
	"blogfeed/models"
	"blogfeed/normalize"
	"blogfeed/source"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultFetchTimeout        = 60 * time.Second
	DefaultFallbackTitle       = "My Blog"
	DefaultFallbackDescription = "Feed is temporarily unavailable. Visit the blog directly."

	refreshKey = "feed"
)

// Origin tells where the posts of a Result came from
type Origin string

const (
	OriginCache    Origin = "cache"
	OriginUpstream Origin = "upstream"
	OriginStale    Origin = "stale"
	OriginFallback Origin = "fallback"
)

type Result struct {
	Posts  []models.Post
	Origin Origin

	// When the posts were fetched from upstream, zero for the fallback
	FetchedAt time.Time
}

// ProcessingError wraps a failure that happened after the upstream answered,
// e.g. a panic while normalizing
type ProcessingError struct {
	Err error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("process feed: %s", e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

type Config struct {
	// Upper bound for one refresh including retries
	FetchTimeout time.Duration

	FallbackTitle       string
	FallbackDescription string
}

type Service struct {
	source     source.Source
	normalizer *normalize.Normalizer
	cache      *cache.Cache
	config     Config

	// Concurrent callers facing an empty or expired cache share one refresh
	group singleflight.Group
}

func New(src source.Source, normalizer *normalize.Normalizer, c *cache.Cache, config Config) *Service {
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = DefaultFetchTimeout
	}
	if config.FallbackTitle == "" {
		config.FallbackTitle = DefaultFallbackTitle
	}
	if config.FallbackDescription == "" {
		config.FallbackDescription = DefaultFallbackDescription
	}

	return &Service{
		source:     src,
		normalizer: normalizer,
		cache:      c,
		config:     config,
	}
}

// Source returns the upstream the service reads from
func (s *Service) Source() source.Source {
	return s.source
}

// CacheTTL returns the freshness window of the cached posts
func (s *Service) CacheTTL() time.Duration {
	return s.cache.TTL()
}

// Posts returns the current post list. An error is only returned when the
// upstream violated its contract or processing failed and no cached posts
// exist; every other failure degrades to stale posts or the placeholder.
func (s *Service) Posts(ctx context.Context) (*Result, error) {
	if record, ok := s.cache.Read(); ok {
		log.WithFields(log.Fields{
			"count": len(record.Posts),
			"age":   record.Age(time.Now()),
		}).Debug("Serving posts from cache")
		feedResults.WithLabelValues(string(OriginCache)).Inc()
		return &Result{Posts: record.Posts, Origin: OriginCache, FetchedAt: record.Timestamp}, nil
	}

	// The refresh outlives a caller that goes away so the callers sharing it still get a result
	refreshCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(refreshKey, func() (interface{}, error) {
		return s.refresh(refreshCtx)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			sharedRefreshes.Inc()
		}
		if res.Err != nil {
			feedErrors.Inc()
			return nil, res.Err
		}
		result := res.Val.(*Result)
		feedResults.WithLabelValues(string(result.Origin)).Inc()
		return result.clone(), nil
	}
}

func (s *Service) refresh(ctx context.Context) (*Result, error) {
	// Another refresh may have completed while this one waited its turn
	if record, ok := s.cache.Read(); ok {
		return &Result{Posts: record.Posts, Origin: OriginCache, FetchedAt: record.Timestamp}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.FetchTimeout)
	defer cancel()

	start := time.Now()
	payload, err := s.source.Fetch(ctx)
	if err != nil {
		return s.degrade(err)
	}

	posts, err := s.normalize(payload)
	if err != nil {
		return s.degrade(err)
	}

	record := s.cache.Write(posts)

	log.WithFields(log.Fields{
		"source":  s.source.Name(),
		"count":   len(posts),
		"records": payload.Len(),
		"latency": time.Since(start),
	}).Info("Fetched posts from upstream and cached")

	return &Result{Posts: record.Posts, Origin: OriginUpstream, FetchedAt: record.Timestamp}, nil
}

func (s *Service) normalize(payload *source.Payload) (posts []models.Post, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ProcessingError{Err: fmt.Errorf("normalize panicked: %v", r)}
		}
	}()
	return s.normalizer.Normalize(payload), nil
}

// degrade picks what to serve after a failed refresh
func (s *Service) degrade(err error) (*Result, error) {
	fields := log.Fields{
		"source": s.source.Name(),
		"error":  err,
	}
	if kind, ok := source.KindOf(err); ok {
		fields["kind"] = kind.String()
	}

	if stale, ok := s.cache.Stale(); ok {
		fields["age"] = stale.Age(time.Now())
		log.WithFields(fields).Warn("Upstream failed, serving stale posts")
		return &Result{Posts: stale.Posts, Origin: OriginStale, FetchedAt: stale.Timestamp}, nil
	}

	var processingErr *ProcessingError
	if source.IsContract(err) || errors.As(err, &processingErr) {
		log.WithFields(fields).Error("Upstream failed and no cached posts exist")
		return nil, err
	}

	log.WithFields(fields).Warn("Upstream failed, serving placeholder")
	return &Result{Posts: []models.Post{s.Fallback()}, Origin: OriginFallback}, nil
}

// Fallback is the single post served when nothing else can be
func (s *Service) Fallback() models.Post {
	return models.Post{
		Title:       s.config.FallbackTitle,
		Description: s.config.FallbackDescription,
		Url:         s.source.Home(),
		Date:        models.NoDate,
	}
}

func (r *Result) clone() *Result {
	return &Result{
		Posts:     lo.Map(r.Posts, func(p models.Post, _ int) models.Post { return p }),
		Origin:    r.Origin,
		FetchedAt: r.FetchedAt,
	}
}
