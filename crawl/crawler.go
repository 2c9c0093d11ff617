// Package crawl fetches web pages through an external crawling service.
package crawl

import (
	"context"
	"strings"
	"time"

	"github.com/poiesic/enrich/core"
)

// Defaults applied to zero-valued Options fields.
const (
	DefaultLimit       = 10
	DefaultMaxDepth    = 2
	DefaultFormat      = "markdown"
	DefaultSearchLimit = 5
)

// Options controls a crawl.
// A nil OnlyMainContent means true.
type Options struct {
	Limit           int
	MaxDepth        int
	IncludePaths    []string
	ExcludePaths    []string
	Formats         []string
	IgnoreSitemap   bool
	OnlyMainContent *bool
}

// SearchOptions controls a web search.
// TimeFilter is passed through as the provider's time-based filter (e.g. "qdr:w").
// With ScrapeContent unset, results carry only their description.
type SearchOptions struct {
	Limit         int
	TimeFilter    string
	Location      string
	ScrapeContent bool
}

// ExtractOptions controls a single-page extraction.
// A nil OnlyMainContent leaves the provider default.
type ExtractOptions struct {
	OnlyMainContent *bool
	Timeout         time.Duration
	WaitFor         time.Duration
}

// Page is one fetched page.
// Extracted holds structured data from Extract, rendered as indented JSON.
type Page struct {
	URL       string
	Title     string
	Content   string
	Markdown  string
	Extracted string
	Data      map[string]any
}

// Text returns the best available text for the page, extracted data first.
func (p Page) Text() string {
	body := p.Markdown
	if strings.TrimSpace(body) == "" {
		body = p.Content
	}
	switch {
	case strings.TrimSpace(p.Extracted) == "":
		return body
	case strings.TrimSpace(body) == "":
		return p.Extracted
	}
	return p.Extracted + "\n\n" + body
}

// Crawler fetches pages from the web.
type Crawler interface {
	// Crawl returns the pages reachable from a start URL.
	Crawl(ctx context.Context, url string, opts Options) ([]Page, error)

	// Search returns the pages a web search finds for query.
	Search(ctx context.Context, query string, opts SearchOptions) ([]Page, error)

	// Extract scrapes one page and extracts the data described by prompt.
	Extract(ctx context.Context, url, prompt string, opts ExtractOptions) (Page, error)
}

// WithDefaults returns a copy of o with zero fields filled in.
func (o Options) WithDefaults() Options {
	if o.Limit <= 0 {
		o.Limit = DefaultLimit
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	if len(o.Formats) == 0 {
		o.Formats = []string{DefaultFormat}
	}
	if o.OnlyMainContent == nil {
		onlyMain := true
		o.OnlyMainContent = &onlyMain
	}
	return o
}

// WithDefaults returns a copy of o with zero fields filled in.
func (o SearchOptions) WithDefaults() SearchOptions {
	if o.Limit <= 0 {
		o.Limit = DefaultSearchLimit
	}
	return o
}

// ValidateURL checks that url is an absolute http(s) URL.
func ValidateURL(url string) error {
	url = strings.TrimSpace(url)
	if url == "" {
		return core.ValidationError("crawl url is required")
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return core.ValidationError("crawl url must start with http:// or https://: %q", url)
	}
	return nil
}
