// Package source fetches raw blog post data from the one upstream feed a
// deployment serves, either a GraphQL publication API or an RSS/Atom feed.
package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/mmcdole/gofeed"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultUserAgent = "blogfeed/1.0 (+https://github.com/blogfeed)"
)

// Source is implemented by every upstream variant
type Source interface {
	// Name identifies the variant in logs and metrics
	Name() string
	// Home is the provider's canonical site, linked when no posts can be served
	Home() string
	Fetch(ctx context.Context) (*Payload, error)
}

// Payload is the raw, not yet normalized result of a fetch. Only the field
// matching the source variant is populated.
type Payload struct {
	// Host the GraphQL publication is served from, used to build post links
	Host string

	Nodes []*Node
	Items []*gofeed.Item
}

// Len returns the number of records in the payload
func (p *Payload) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Nodes) + len(p.Items)
}

// Node is a post node from the GraphQL publication query
type Node struct {
	Title       string      `json:"title"`
	Brief       string      `json:"brief"`
	Slug        string      `json:"slug"`
	CoverImage  *CoverImage `json:"coverImage"`
	PublishedAt string      `json:"publishedAt"`
}

type CoverImage struct {
	Url string `json:"url"`
}

// newHTTPClient returns client if set, otherwise a client bounded by timeout
func newHTTPClient(client *http.Client, timeout time.Duration) *http.Client {
	if client != nil {
		return client
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// siteRoot returns the scheme and host of rawURL with a trailing slash
func siteRoot(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	scheme := u.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/", scheme, u.Host)
}
