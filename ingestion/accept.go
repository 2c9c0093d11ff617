package ingestion

import (
	"context"
	"fmt"
	"mime"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/poiesic/enrich/core"
	"github.com/poiesic/enrich/crawl"
)

const (
	uploadPrefix = "uploads"
	crawlPrefix  = "crawl"

	// CrawlMimeType is the MIME type recorded for crawled pages.
	CrawlMimeType = "text/markdown"

	defaultMimeType = "application/octet-stream"
)

// UploadRequest is a file handed to the pipeline by a user.
type UploadRequest struct {
	Name     string
	MimeType string // detected from Name when empty
	Data     []byte
}

// AcceptUpload stores the uploaded bytes and creates a pending record for them.
func (o *Orchestrator) AcceptUpload(ctx context.Context, actor core.Actor, req UploadRequest) (*core.IngestionRecord, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, core.ValidationError("upload name is required")
	}
	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = detectMimeType(name)
	}

	handle, err := o.blobs.Put(ctx, blobPath(uploadPrefix, actor, req.Data, name), req.Data)
	if err != nil {
		return nil, err
	}
	record, err := o.records.CreateRecord(ctx, &core.IngestionRecord{
		Owner:         actor,
		SourceKind:    core.SourceKindUpload,
		SourceLocator: handle,
		BlobPath:      handle,
		MimeType:      mimeType,
		DeclaredName:  name,
		ByteSize:      int64(len(req.Data)),
	})
	if err != nil {
		o.discardBlob(ctx, handle)
		return nil, err
	}
	o.logger.Info("upload accepted", "record", record.Id, "name", name, "bytes", record.ByteSize)
	return record, nil
}

// AcceptCrawl crawls url and creates one pending record per page with content.
// Pages with identical content are stored once. A crawler failure fails the whole call;
// a storage failure returns the records created so far alongside the error.
func (o *Orchestrator) AcceptCrawl(ctx context.Context, actor core.Actor, url string, opts crawl.Options) ([]*core.IngestionRecord, error) {
	if o.crawler == nil {
		return nil, fmt.Errorf("%w: %w", core.ErrConfiguration, ErrCrawlerRequired)
	}
	if err := crawl.ValidateURL(url); err != nil {
		return nil, err
	}

	pages, err := o.crawler.Crawl(ctx, strings.TrimSpace(url), opts.WithDefaults())
	if err != nil {
		return nil, core.ExternalServiceError("crawler", err)
	}
	records, err := o.acceptPages(ctx, actor, pages)
	o.logger.Info("crawl accepted", "url", url, "pages", len(pages), "records", len(records))
	return records, err
}

// AcceptSearch runs a web search and creates one pending record per result with content.
// Results carry only their description unless opts.ScrapeContent is set.
func (o *Orchestrator) AcceptSearch(ctx context.Context, actor core.Actor, query string, opts crawl.SearchOptions) ([]*core.IngestionRecord, error) {
	if o.crawler == nil {
		return nil, fmt.Errorf("%w: %w", core.ErrConfiguration, ErrCrawlerRequired)
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, core.ValidationError("search query is required")
	}

	pages, err := o.crawler.Search(ctx, query, opts.WithDefaults())
	if err != nil {
		return nil, core.ExternalServiceError("crawler", err)
	}
	records, err := o.acceptPages(ctx, actor, pages)
	o.logger.Info("search accepted", "query", query, "results", len(pages), "records", len(records))
	return records, err
}

// AcceptExtract extracts the data prompt asks for from url and creates a pending record
// holding the extracted JSON followed by the page markdown.
func (o *Orchestrator) AcceptExtract(ctx context.Context, actor core.Actor, url, prompt string, opts crawl.ExtractOptions) (*core.IngestionRecord, error) {
	if o.crawler == nil {
		return nil, fmt.Errorf("%w: %w", core.ErrConfiguration, ErrCrawlerRequired)
	}
	if err := crawl.ValidateURL(url); err != nil {
		return nil, err
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, core.ValidationError("extract prompt is required")
	}

	page, err := o.crawler.Extract(ctx, strings.TrimSpace(url), prompt, opts)
	if err != nil {
		return nil, core.ExternalServiceError("crawler", err)
	}
	if page.URL == "" {
		page.URL = strings.TrimSpace(url)
	}
	text := page.Text()
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: %s", ErrNothingExtracted, page.URL)
	}
	record, err := o.acceptPage(ctx, actor, page, []byte(text))
	if err != nil {
		return nil, err
	}
	o.logger.Info("extract accepted", "url", page.URL, "record", record.Id)
	return record, nil
}

// acceptPages creates a record per page with content. Pages with identical content are stored once.
func (o *Orchestrator) acceptPages(ctx context.Context, actor core.Actor, pages []crawl.Page) ([]*core.IngestionRecord, error) {
	var records []*core.IngestionRecord
	seen := make(map[core.ID]bool, len(pages))
	for _, page := range pages {
		text := page.Text()
		if strings.TrimSpace(text) == "" || page.URL == "" {
			o.logger.Debug("skipping empty page", "url", page.URL)
			continue
		}
		key := core.IDFromContent(text)
		if seen[key] {
			o.logger.Debug("skipping duplicate page", "url", page.URL)
			continue
		}
		seen[key] = true

		record, err := o.acceptPage(ctx, actor, page, []byte(text))
		if err != nil {
			return records, fmt.Errorf("page %s: %w", page.URL, err)
		}
		records = append(records, record)
	}
	return records, nil
}

func (o *Orchestrator) acceptPage(ctx context.Context, actor core.Actor, page crawl.Page, data []byte) (*core.IngestionRecord, error) {
	name := strings.TrimSpace(page.Title)
	if name == "" {
		name = page.URL
	}
	handle, err := o.blobs.Put(ctx, blobPath(crawlPrefix, actor, data, "page.md"), data)
	if err != nil {
		return nil, err
	}
	record, err := o.records.CreateRecord(ctx, &core.IngestionRecord{
		Owner:         actor,
		SourceKind:    core.SourceKindCrawl,
		SourceLocator: page.URL,
		BlobPath:      handle,
		MimeType:      CrawlMimeType,
		DeclaredName:  name,
		Title:         strings.TrimSpace(page.Title),
		ByteSize:      int64(len(data)),
	})
	if err != nil {
		o.discardBlob(ctx, handle)
		return nil, err
	}
	return record, nil
}

func (o *Orchestrator) discardBlob(ctx context.Context, handle string) {
	if err := o.blobs.Delete(context.WithoutCancel(ctx), handle); err != nil {
		o.logger.Warn("orphaned blob", "blob", handle, "err", err)
	}
}

// blobPath builds a unique blob path grouped by owner and content digest.
func blobPath(prefix string, owner core.Actor, data []byte, name string) string {
	ownerDir := "anonymous"
	if !core.IsAnonymous(owner) {
		ownerDir = strings.ReplaceAll(owner.OwnerID(), "/", "_")
	}
	digest := core.ContentDigest(data)[:16]
	return path.Join(prefix, ownerDir, digest+"-"+uuid.NewString()[:8], baseName(name))
}

func baseName(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" || base == ".." {
		return "file"
	}
	return base
}

func detectMimeType(name string) string {
	if t := mime.TypeByExtension(path.Ext(name)); t != "" {
		return t
	}
	return defaultMimeType
}
