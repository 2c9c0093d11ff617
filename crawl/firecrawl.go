package crawl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	firecrawl "github.com/mendableai/firecrawl-go/v2"
	"github.com/poiesic/enrich/core"
)

// DefaultFirecrawlURL is the hosted Firecrawl API.
const DefaultFirecrawlURL = "https://api.firecrawl.dev"

// extractedTitle names extractions from pages without a title.
const extractedTitle = "Extracted Data"

var (
	// ErrCrawlFailed indicates the crawl job ended in a failed state.
	ErrCrawlFailed = errors.New("crawl failed")

	// ErrSearchFailed indicates the search API reported a failure.
	ErrSearchFailed = errors.New("search failed")

	// ErrExtractFailed indicates the scrape returned no document.
	ErrExtractFailed = errors.New("extract failed")

	// ErrForeignNextURL is returned when crawl pagination points away from the crawl job on the API host.
	ErrForeignNextURL = errors.New("crawl pagination points outside the API")

	// ErrAPIKeyRequired is returned when no API key is configured.
	ErrAPIKeyRequired = errors.New("firecrawl API key required")
)

// FirecrawlClient implements Crawler on the Firecrawl v1 API.
// Crawls run as async jobs polled until completion; the job is cancelled if ctx ends first.
type FirecrawlClient struct {
	app          *firecrawl.FirecrawlApp
	baseURL      string
	base         *url.URL
	httpClient   *http.Client
	pollInterval time.Duration
	logger       *slog.Logger
}

// FirecrawlOption configures a FirecrawlClient.
type FirecrawlOption func(*FirecrawlClient)

// WithBaseURL points the client at a self-hosted Firecrawl.
func WithBaseURL(baseURL string) FirecrawlOption {
	return func(c *FirecrawlClient) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(client *http.Client) FirecrawlOption {
	return func(c *FirecrawlClient) {
		c.httpClient = client
	}
}

// WithPollInterval sets how often job status is checked.
func WithPollInterval(d time.Duration) FirecrawlOption {
	return func(c *FirecrawlClient) {
		c.pollInterval = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) FirecrawlOption {
	return func(c *FirecrawlClient) {
		c.logger = logger
	}
}

// NewFirecrawlClient creates a client for the given API key.
func NewFirecrawlClient(apiKey string, opts ...FirecrawlOption) (*FirecrawlClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("%w: %w", core.ErrConfiguration, ErrAPIKeyRequired)
	}
	c := &FirecrawlClient{
		baseURL:      DefaultFirecrawlURL,
		pollInterval: 2 * time.Second,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	base, err := url.Parse(c.baseURL)
	if err != nil || base.Host == "" {
		return nil, core.ConfigurationError("invalid firecrawl url %q", c.baseURL)
	}
	c.base = base

	app, err := firecrawl.NewFirecrawlApp(apiKey, c.baseURL, 60*time.Second)
	if err != nil {
		return nil, core.ConfigurationError("create firecrawl client: %v", err)
	}
	if c.httpClient != nil {
		app.Client = c.httpClient
	}
	c.app = app
	c.logger = c.logger.With("component", "firecrawl")
	return c, nil
}

// Crawl starts a crawl job for target and waits for its pages.
// Any failure is reported as an external service error.
func (c *FirecrawlClient) Crawl(ctx context.Context, target string, opts Options) ([]Page, error) {
	if err := ValidateURL(target); err != nil {
		return nil, err
	}
	target = strings.TrimSpace(target)
	opts = opts.WithDefaults()

	params := &firecrawl.CrawlParams{
		ScrapeOptions: firecrawl.ScrapeParams{
			Formats:         opts.Formats,
			OnlyMainContent: opts.OnlyMainContent,
		},
		Limit:         &opts.Limit,
		MaxDepth:      &opts.MaxDepth,
		IncludePaths:  opts.IncludePaths,
		ExcludePaths:  opts.ExcludePaths,
		IgnoreSitemap: &opts.IgnoreSitemap,
	}

	c.logger.Info("starting crawl", "url", target, "limit", opts.Limit, "max_depth", opts.MaxDepth)

	started, err := withContext(ctx, func() (*firecrawl.CrawlResponse, error) {
		return c.app.AsyncCrawlURL(target, params, nil)
	})
	if err != nil {
		return nil, core.ExternalServiceError("crawler", fmt.Errorf("%w: %w", ErrCrawlFailed, err))
	}

	pages, err := c.wait(ctx, started.ID)
	if err != nil {
		if ctx.Err() != nil {
			c.cancelJob(started.ID)
		}
		return nil, core.ExternalServiceError("crawler", err)
	}
	c.logger.Info("crawl complete", "url", target, "pages", len(pages))
	return pages, nil
}

// wait polls the job until it completes, then collects every result page.
func (c *FirecrawlClient) wait(ctx context.Context, id string) ([]Page, error) {
	for {
		status, err := withContext(ctx, func() (*firecrawl.CrawlStatusResponse, error) {
			return c.app.CheckCrawlStatus(id)
		})
		if err != nil {
			return nil, err
		}

		switch status.Status {
		case "completed":
			return c.collect(ctx, id, status)
		case "failed", "cancelled":
			return nil, fmt.Errorf("%w: job %s %s", ErrCrawlFailed, id, status.Status)
		case "":
			return nil, fmt.Errorf("%w: job %s returned no status", ErrCrawlFailed, id)
		}

		c.logger.Debug("crawl in progress", "job", id, "status", status.Status, "completed", status.Completed, "total", status.Total)
		timer := time.NewTimer(c.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// collect follows result pagination of a completed job.
func (c *FirecrawlClient) collect(ctx context.Context, id string, status *firecrawl.CrawlStatusResponse) ([]Page, error) {
	pages := toPages(status.Data)
	for status.Next != nil && *status.Next != "" {
		query, err := c.nextQuery(id, *status.Next)
		if err != nil {
			return nil, err
		}
		status, err = withContext(ctx, func() (*firecrawl.CrawlStatusResponse, error) {
			return c.app.CheckCrawlStatus(id + "?" + query)
		})
		if err != nil {
			return nil, err
		}
		pages = append(pages, toPages(status.Data)...)
	}
	return pages, nil
}

// nextQuery returns the query string of a pagination URL.
// The URL must name this job on the configured API host, since requests carry the API key.
func (c *FirecrawlClient) nextQuery(id, next string) (string, error) {
	u, err := url.Parse(next)
	if err != nil {
		return "", fmt.Errorf("parse next page url: %w", err)
	}
	if !strings.EqualFold(u.Scheme, c.base.Scheme) || !strings.EqualFold(u.Host, c.base.Host) {
		return "", fmt.Errorf("%w: host %q", ErrForeignNextURL, u.Host)
	}
	if !strings.HasSuffix(u.Path, "/v1/crawl/"+id) {
		return "", fmt.Errorf("%w: path %q", ErrForeignNextURL, u.Path)
	}
	return u.RawQuery, nil
}

func (c *FirecrawlClient) cancelJob(id string) {
	go func() {
		if _, err := c.app.CancelCrawlJob(id); err != nil {
			c.logger.Warn("failed to cancel crawl job", "job", id, "err", err)
			return
		}
		c.logger.Info("crawl job cancelled", "job", id)
	}()
}

// Extract scrapes target and asks Firecrawl's LLM extraction for the data described by prompt.
func (c *FirecrawlClient) Extract(ctx context.Context, target, prompt string, opts ExtractOptions) (Page, error) {
	if err := ValidateURL(target); err != nil {
		return Page{}, err
	}
	target = strings.TrimSpace(target)
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return Page{}, core.ValidationError("extract prompt is required")
	}

	params := &firecrawl.ScrapeParams{
		Formats:         []string{DefaultFormat, "json"},
		OnlyMainContent: opts.OnlyMainContent,
		JsonOptions:     &firecrawl.JsonOptions{Prompt: &prompt},
	}
	if opts.Timeout > 0 {
		ms := int(opts.Timeout.Milliseconds())
		params.Timeout = &ms
	}
	if opts.WaitFor > 0 {
		ms := int(opts.WaitFor.Milliseconds())
		params.WaitFor = &ms
	}

	c.logger.Info("starting extract", "url", target)
	doc, err := withContext(ctx, func() (*firecrawl.FirecrawlDocument, error) {
		return c.app.ScrapeURL(target, params)
	})
	if err != nil {
		return Page{}, core.ExternalServiceError("crawler", fmt.Errorf("%w: %w", ErrExtractFailed, err))
	}
	if doc == nil {
		return Page{}, core.ExternalServiceError("crawler", fmt.Errorf("%w: no document for %s", ErrExtractFailed, target))
	}

	page := toPage(doc)
	page.URL = target
	if page.Title == "" {
		page.Title = extractedTitle
	}
	if len(doc.JSON) > 0 {
		pretty, err := json.MarshalIndent(doc.JSON, "", "  ")
		if err != nil {
			return Page{}, fmt.Errorf("encode extracted data: %w", err)
		}
		page.Extracted = string(pretty)
		page.Data = doc.JSON
	}
	return page, nil
}

type searchRequest struct {
	Query         string                  `json:"query"`
	Limit         int                     `json:"limit"`
	TimeFilter    string                  `json:"tbs,omitempty"`
	Location      string                  `json:"location,omitempty"`
	ScrapeOptions *firecrawl.ScrapeParams `json:"scrapeOptions,omitempty"`
}

type searchResult struct {
	URL         string                               `json:"url"`
	Title       string                               `json:"title"`
	Description string                               `json:"description"`
	Markdown    string                               `json:"markdown"`
	Metadata    *firecrawl.FirecrawlDocumentMetadata `json:"metadata"`
}

type searchResponse struct {
	Success bool           `json:"success"`
	Error   string         `json:"error"`
	Data    []searchResult `json:"data"`
}

// Search runs a web search. With ScrapeContent set, each result carries the
// main content of its page as markdown.
func (c *FirecrawlClient) Search(ctx context.Context, query string, opts SearchOptions) ([]Page, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, core.ValidationError("search query is required")
	}
	opts = opts.WithDefaults()

	req := searchRequest{
		Query:      query,
		Limit:      opts.Limit,
		TimeFilter: opts.TimeFilter,
		Location:   opts.Location,
	}
	if opts.ScrapeContent {
		onlyMain := true
		req.ScrapeOptions = &firecrawl.ScrapeParams{
			Formats:         []string{DefaultFormat},
			OnlyMainContent: &onlyMain,
		}
	}

	c.logger.Info("starting search", "query", query, "limit", opts.Limit)
	var resp searchResponse
	if err := c.post(ctx, "/v1/search", req, &resp); err != nil {
		return nil, core.ExternalServiceError("crawler", fmt.Errorf("%w: %w", ErrSearchFailed, err))
	}
	if !resp.Success {
		return nil, core.ExternalServiceError("crawler", fmt.Errorf("%w: %s", ErrSearchFailed, resp.Error))
	}

	pages := make([]Page, 0, len(resp.Data))
	for _, r := range resp.Data {
		page := Page{URL: r.URL, Title: r.Title, Content: r.Description, Markdown: r.Markdown}
		if m := r.Metadata; m != nil {
			if page.URL == "" {
				page.URL = firstNonEmpty(m.SourceURL, m.URL)
			}
			if page.Title == "" {
				page.Title = firstNonEmpty(m.Title)
			}
		}
		pages = append(pages, page)
	}
	c.logger.Info("search complete", "query", query, "results", len(pages))
	return pages, nil
}

// post sends an authenticated JSON request with the SDK's HTTP client.
// The SDK's own Search is a stub, so the search endpoint is called directly.
func (c *FirecrawlClient) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.app.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.app.Client.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("HTTP %d from %s: %s", resp.StatusCode, path, strings.TrimSpace(string(respBody)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func toPages(docs []*firecrawl.FirecrawlDocument) []Page {
	pages := make([]Page, 0, len(docs))
	for _, d := range docs {
		if d == nil {
			continue
		}
		pages = append(pages, toPage(d))
	}
	return pages
}

func toPage(d *firecrawl.FirecrawlDocument) Page {
	page := Page{Markdown: d.Markdown, Content: d.HTML}
	if page.Content == "" {
		page.Content = d.RawHTML
	}
	if m := d.Metadata; m != nil {
		page.Title = firstNonEmpty(m.Title)
		page.URL = firstNonEmpty(m.SourceURL, m.URL)
	}
	return page
}

func firstNonEmpty(values ...*string) string {
	for _, v := range values {
		if v != nil && *v != "" {
			return *v
		}
	}
	return ""
}

// withContext runs call and returns early with ctx's error if ctx ends first.
// An abandoned call finishes in the background.
func withContext[T any](ctx context.Context, call func() (T, error)) (T, error) {
	type result struct {
		value T
		err   error
	}
	if err := ctx.Err(); err != nil {
		var zero T
		return zero, err
	}
	done := make(chan result, 1)
	go func() {
		value, err := call()
		done <- result{value, err}
	}()
	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case r := <-done:
		return r.value, r.err
	}
}
