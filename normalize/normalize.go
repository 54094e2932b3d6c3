// Package normalize maps provider specific post records into models.Post.
// Normalization never fails: every missing field resolves to a placeholder.
package normalize

import (
	"fmt"
	"strings"

	"blogfeed/models"
	"blogfeed/source"

	"github.com/mmcdole/gofeed"
	"github.com/samber/lo"
)

const (
	// DefaultLimit is the number of posts shown on the community page
	DefaultLimit = 9

	// DefaultMaxDescription is the maximum description length in characters
	DefaultMaxDescription = 150
)

type Options struct {
	Limit          int
	MaxDescription int
}

type Normalizer struct {
	limit          int
	maxDescription int
}

func New(opts Options) *Normalizer {
	n := &Normalizer{
		limit:          opts.Limit,
		maxDescription: opts.MaxDescription,
	}
	if n.limit <= 0 {
		n.limit = DefaultLimit
	}
	if n.maxDescription <= 0 {
		n.maxDescription = DefaultMaxDescription
	}
	return n
}

// Normalize maps the payload records in upstream order and keeps the first
// Limit of them
func (n *Normalizer) Normalize(payload *source.Payload) []models.Post {
	if payload == nil {
		return []models.Post{}
	}

	posts := make([]models.Post, 0, n.limit)

	nodes := lo.Filter(payload.Nodes, func(node *source.Node, _ int) bool { return node != nil })
	for _, node := range nodes {
		if len(posts) >= n.limit {
			return posts
		}
		posts = append(posts, n.FromNode(node, payload.Host))
	}

	items := lo.Filter(payload.Items, func(item *gofeed.Item, _ int) bool { return item != nil })
	for _, item := range items {
		if len(posts) >= n.limit {
			return posts
		}
		posts = append(posts, n.FromItem(item))
	}

	return posts
}

// FromNode maps a GraphQL publication post
func (n *Normalizer) FromNode(node *source.Node, host string) models.Post {
	post := models.Post{
		Title:       orDefault(node.Title, models.UntitledPost),
		Description: n.description(node.Brief, ""),
		Url:         models.NoUrl,
		Date:        formatDate(nil, node.PublishedAt),
	}

	if slug := strings.Trim(strings.TrimSpace(node.Slug), "/"); slug != "" && host != "" {
		post.Url = fmt.Sprintf("https://%s/%s", host, slug)
	}
	if node.CoverImage != nil {
		post.Image = strings.TrimSpace(node.CoverImage.Url)
	}

	return post
}

// FromItem maps an RSS, Atom or JSON Feed item
func (n *Normalizer) FromItem(item *gofeed.Item) models.Post {
	published := item.PublishedParsed
	if published == nil {
		published = item.UpdatedParsed
	}
	raw := item.Published
	if raw == "" {
		raw = item.Updated
	}

	return models.Post{
		Title:       orDefault(item.Title, models.UntitledPost),
		Description: n.description(item.Description, item.Content),
		Url:         orDefault(item.Link, models.NoUrl),
		Date:        formatDate(published, raw),
		Image:       ResolveImage(item),
	}
}

// description prefers the provided snippet, then the full body
func (n *Normalizer) description(snippet string, body string) string {
	if text := stripHTML(snippet); text != "" {
		return truncate(text, n.maxDescription)
	}
	if text := stripHTML(body); text != "" {
		return truncate(text, n.maxDescription)
	}
	return models.NoDescription
}

func orDefault(value string, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
