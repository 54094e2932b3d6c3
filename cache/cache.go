// Package cache holds the single most recent post list of the feed a
// deployment serves, along with when it was fetched.
package cache

import (
	"sync"
	"time"

	"blogfeed/models"
)

const (
	// DefaultGraphQLTTL is the freshness window used for GraphQL sources
	DefaultGraphQLTTL = 30 * time.Minute
	// DefaultRssTTL is the freshness window used for RSS sources
	DefaultRssTTL = 60 * time.Minute
)

// Record is the last successfully normalized post list
type Record struct {
	Timestamp time.Time
	Posts     []models.Post
}

// Age returns how long ago the record was fetched
func (r Record) Age(now time.Time) time.Duration {
	return now.Sub(r.Timestamp)
}

type Option func(*Cache)

// WithClock replaces time.Now, mostly for tests
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// Cache is a single slot, last write wins store
type Cache struct {
	sync.RWMutex
	ttl    time.Duration
	now    func() time.Time
	record *Record
}

func New(ttl time.Duration, opts ...Option) *Cache {
	c := &Cache{
		ttl: ttl,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Read returns the stored record if it is younger than the TTL
func (c *Cache) Read() (Record, bool) {
	c.RLock()
	defer c.RUnlock()

	if c.record == nil || c.record.Age(c.now()) >= c.ttl {
		return Record{}, false
	}
	return c.record.copy(), true
}

// Stale returns the stored record regardless of its age
func (c *Cache) Stale() (Record, bool) {
	c.RLock()
	defer c.RUnlock()

	if c.record == nil {
		return Record{}, false
	}
	return c.record.copy(), true
}

// Write replaces the stored record with posts fetched now
func (c *Cache) Write(posts []models.Post) Record {
	record := Record{
		Timestamp: c.now(),
		Posts:     copyPosts(posts),
	}

	c.Lock()
	c.record = &record
	c.Unlock()

	return record.copy()
}

func (r *Record) copy() Record {
	return Record{
		Timestamp: r.Timestamp,
		Posts:     copyPosts(r.Posts),
	}
}

func copyPosts(posts []models.Post) []models.Post {
	out := make([]models.Post, len(posts))
	copy(out, posts)
	return out
}
