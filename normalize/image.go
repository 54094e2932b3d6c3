package normalize

import (
	"html"
	"regexp"
	"strings"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
	"github.com/samber/lo"
)

var imgSrcPattern = regexp.MustCompile(`(?i)<img[^>]+src\s*=\s*["']([^"']+)["']`)

// imageResolver returns an image URL for item, or "" when it has none
type imageResolver func(item *gofeed.Item) string

// The order is significant: the first resolver returning a URL wins
var imageResolvers = []imageResolver{
	itunesImage,
	directImage,
	mediaContentImage,
	enclosureImage,
	bodyImage,
}

// ResolveImage finds the cover image of an item, or returns "" when no
// image can be resolved
func ResolveImage(item *gofeed.Item) string {
	if item == nil {
		return ""
	}
	for _, resolve := range imageResolvers {
		if url := strings.TrimSpace(resolve(item)); url != "" {
			return url
		}
	}
	return ""
}

func itunesImage(item *gofeed.Item) string {
	if item.ITunesExt != nil && item.ITunesExt.Image != "" {
		return item.ITunesExt.Image
	}
	// Items parsed without the iTunes translator keep the raw element
	if itunes, ok := item.Extensions["itunes"]; ok {
		for _, image := range itunes["image"] {
			if href := image.Attrs["href"]; href != "" {
				return href
			}
		}
	}
	return ""
}

func directImage(item *gofeed.Item) string {
	if item.Image != nil {
		return item.Image.URL
	}
	return ""
}

// mediaContentImage scans media:content entries, including those nested in a
// media:group, for one declared as an image
func mediaContentImage(item *gofeed.Item) string {
	media, ok := item.Extensions["media"]
	if !ok {
		return ""
	}

	contents := append([]ext.Extension{}, media["content"]...)
	for _, group := range media["group"] {
		contents = append(contents, group.Children["content"]...)
	}

	content, ok := lo.Find(contents, func(c ext.Extension) bool {
		return c.Attrs["url"] != "" && isImage(c.Attrs["medium"], c.Attrs["type"])
	})
	if !ok {
		return ""
	}
	return content.Attrs["url"]
}

func enclosureImage(item *gofeed.Item) string {
	enclosure, ok := lo.Find(item.Enclosures, func(e *gofeed.Enclosure) bool {
		return e != nil && e.URL != "" && isImage("", e.Type)
	})
	if !ok {
		return ""
	}
	return enclosure.URL
}

// bodyImage returns the first <img src> of the item content, then of its
// description
func bodyImage(item *gofeed.Item) string {
	for _, body := range []string{item.Content, item.Description} {
		if match := imgSrcPattern.FindStringSubmatch(body); match != nil {
			return html.UnescapeString(match[1])
		}
	}
	return ""
}

func isImage(medium string, mimeType string) bool {
	return strings.EqualFold(strings.TrimSpace(medium), "image") ||
		strings.HasPrefix(strings.ToLower(strings.TrimSpace(mimeType)), "image/")
}
