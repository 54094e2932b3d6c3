package normalize

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"blogfeed/models"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
)

const (
	ellipsis   = "..."
	dateLayout = "Jan 2, 2006"
)

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// stripHTML returns the text content of an HTML fragment with whitespace
// collapsed to single spaces
func stripHTML(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}

	text := fragment
	if strings.ContainsAny(fragment, "<&") {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
		if err == nil {
			text = doc.Text()
		} else {
			text = tagPattern.ReplaceAllString(fragment, " ")
		}
	}

	return strings.Join(strings.Fields(text), " ")
}

// truncate shortens text to at most max characters, ending it with an
// ellipsis when anything was cut
func truncate(text string, max int) string {
	if utf8.RuneCountInString(text) <= max {
		return text
	}

	keep := max - utf8.RuneCountInString(ellipsis)
	if keep < 0 {
		keep = 0
	}
	runes := []rune(text)
	return strings.TrimRight(string(runes[:keep]), " ") + ellipsis
}

// formatDate formats parsed, or raw when parsed is nil, as "Jan 2, 2006" in
// UTC. Missing or unparseable dates yield models.NoDate.
func formatDate(parsed *time.Time, raw string) string {
	if parsed != nil && !parsed.IsZero() {
		return parsed.UTC().Format(dateLayout)
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return models.NoDate
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC().Format(dateLayout)
	}
	if t, ok := parseAny(raw); ok {
		return t.UTC().Format(dateLayout)
	}
	return models.NoDate
}

// parseAny wraps dateparse, which is lenient but has panicked on
// some malformed inputs
func parseAny(raw string) (t time.Time, ok bool) {
	defer func() {
		if recover() != nil {
			t, ok = time.Time{}, false
		}
	}()

	parsed, err := dateparse.ParseIn(raw, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}
