// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/poiesic/enrich"
	"github.com/poiesic/enrich/ai"
	"github.com/poiesic/enrich/chat"
	"github.com/poiesic/enrich/config"
	"github.com/poiesic/enrich/core"
	"github.com/poiesic/enrich/crawl"
	"github.com/poiesic/enrich/ingestion"
	"github.com/poiesic/enrich/reembed"
	"github.com/poiesic/enrich/search"
	"github.com/poiesic/enrich/storage"
	"github.com/poiesic/enrich/vectorstore"
	"github.com/urfave/cli/v2"
)

const (
	configKey  = "config"
	loggerKey  = "logger"
	cleanupKey = "logger-cleanup"
)

// openDatabase is replaced in tests.
var openDatabase = func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*enrich.Database, error) {
	return enrich.Open(ctx, cfg, enrich.WithLogger(logger))
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	collectionFlag := &cli.StringFlag{
		Name:  "collection",
		Usage: "Vector collection (defaults to the configured one)",
	}
	ownerFlag := &cli.StringFlag{
		Name:  "owner",
		Usage: "User ID recorded as the owner (anonymous when empty)",
	}
	noProcessFlag := &cli.BoolFlag{
		Name:  "no-process",
		Usage: "Only create records, leave them pending",
	}

	return &cli.App{
		Name:     "enrich",
		Usage:    "Extract, tag, embed and upload documents to a vector store",
		Metadata: map[string]interface{}{},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML config file",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Also write JSON logs to this file",
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to BadgerDB database directory (overrides config)",
			},
		},
		Before: setup,
		After:  teardown,
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "Create records for local files and process them",
				ArgsUsage: "FILE...",
				Action:    ingestCommand,
				Flags:     []cli.Flag{ownerFlag, noProcessFlag, collectionFlag},
			},
			{
				Name:      "crawl",
				Usage:     "Crawl a site and process every page",
				ArgsUsage: "URL",
				Action:    crawlCommand,
				Flags: []cli.Flag{
					ownerFlag, noProcessFlag, collectionFlag,
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of pages",
						Value: crawl.DefaultLimit,
					},
					&cli.IntFlag{
						Name:  "max-depth",
						Usage: "Maximum link depth from the start URL",
						Value: crawl.DefaultMaxDepth,
					},
					&cli.StringSliceFlag{
						Name:  "include",
						Usage: "Only crawl paths matching these patterns",
					},
					&cli.StringSliceFlag{
						Name:  "exclude",
						Usage: "Skip paths matching these patterns",
					},
					&cli.BoolFlag{
						Name:  "ignore-sitemap",
						Usage: "Do not seed the crawl from the sitemap",
					},
				},
			},
			{
				Name:      "websearch",
				Usage:     "Search the web and process every result",
				ArgsUsage: "QUERY...",
				Action:    webSearchCommand,
				Flags: []cli.Flag{
					ownerFlag, noProcessFlag, collectionFlag,
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of results",
						Value: crawl.DefaultSearchLimit,
					},
					&cli.StringFlag{
						Name:  "time-filter",
						Usage: "Restrict results by age (e.g. qdr:d, qdr:w, qdr:m)",
					},
					&cli.StringFlag{
						Name:  "location",
						Usage: "Search as if from this location",
					},
					&cli.BoolFlag{
						Name:  "scrape",
						Usage: "Fetch the main content of each result instead of its description",
					},
				},
			},
			{
				Name:      "extract",
				Usage:     "Extract structured data from a page and process it",
				ArgsUsage: "URL",
				Action:    extractCommand,
				Flags: []cli.Flag{
					ownerFlag, noProcessFlag, collectionFlag,
					&cli.StringFlag{
						Name:     "prompt",
						Aliases:  []string{"p"},
						Usage:    "What to extract",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "full-page",
						Usage: "Keep navigation and footers instead of only the main content",
					},
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "Scrape timeout",
					},
					&cli.DurationFlag{
						Name:  "wait-for",
						Usage: "Wait this long for the page to render",
					},
				},
			},
			{
				Name:   "process",
				Usage:  "Recover interrupted records and process every pending record",
				Action: processCommand,
				Flags:  []cli.Flag{collectionFlag},
			},
			{
				Name:      "retry",
				Usage:     "Retry failed records",
				ArgsUsage: "ID...",
				Action:    retryCommand,
				Flags:     []cli.Flag{collectionFlag},
			},
			{
				Name:      "delete",
				Usage:     "Delete records with their blobs and vectors",
				ArgsUsage: "ID...",
				Action:    deleteCommand,
				Flags:     []cli.Flag{collectionFlag},
			},
			{
				Name:   "status",
				Usage:  "List records and per-status counts",
				Action: statusCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "status",
						Usage: "Only records in this status",
					},
					ownerFlag,
					&cli.StringFlag{
						Name:  "search",
						Usage: "Case-insensitive match on name, title or locator",
					},
					&cli.IntFlag{
						Name:  "offset",
						Usage: "Skip this many records",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Show at most this many records",
						Value: 20,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print JSON instead of a table",
					},
				},
			},
			{
				Name:      "upload",
				Usage:     "Upload precomputed objects from a JSON file",
				ArgsUsage: "FILE",
				Action:    uploadCommand,
				Flags:     []cli.Flag{collectionFlag},
			},
			{
				Name:   "clear",
				Usage:  "Delete every object in the collection",
				Action: clearCommand,
				Flags: []cli.Flag{
					collectionFlag,
					&cli.BoolFlag{
						Name:  "yes",
						Usage: "Confirm the deletion",
					},
				},
			},
			{
				Name:   "health",
				Usage:  "Check the vector store connection and contents",
				Action: healthCommand,
			},
			{
				Name:      "search",
				Usage:     "Find objects similar to a query",
				ArgsUsage: "QUERY...",
				Action:    searchCommand,
				Flags: []cli.Flag{
					collectionFlag,
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of results",
						Value: 5,
					},
					&cli.Float64Flag{
						Name:  "max-distance",
						Usage: "Drop matches farther than this cosine distance (0 disables)",
					},
					&cli.BoolFlag{
						Name:  "verbose",
						Usage: "Print each search stage",
					},
				},
			},
			{
				Name:      "chat",
				Usage:     "Ask questions answered from the collection",
				ArgsUsage: "[QUESTION...]",
				Action:    chatCommand,
				Flags: []cli.Flag{
					collectionFlag,
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Documents retrieved per question",
						Value: chat.DefaultLimit,
					},
					&cli.Float64Flag{
						Name:  "max-distance",
						Usage: "Ignore documents farther than this cosine distance (0 disables)",
						Value: chat.DefaultMaxDistance,
					},
					&cli.BoolFlag{
						Name:    "interactive",
						Aliases: []string{"i"},
						Usage:   "Read questions from stdin until EOF or \"exit\"",
					},
				},
			},
			{
				Name:   "reembed",
				Usage:  "Reembed all completed records with the configured embedding model",
				Action: reembedCommand,
				Flags: []cli.Flag{
					collectionFlag,
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of records to process in each batch",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N records",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed operations",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
					&cli.BoolFlag{
						Name:  "restart",
						Usage: "Ignore the saved checkpoint",
					},
				},
			},
		},
	}
}

// setup loads configuration, applies global flag overrides and installs the logger.
func setup(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if c.IsSet("log-level") {
		cfg.Logging.Level = c.String("log-level")
	}
	if c.IsSet("log-file") {
		cfg.Logging.File = c.String("log-file")
	}
	if c.IsSet("db") {
		cfg.Storage.Path = c.String("db")
		cfg.Storage.InMemory = false
	}

	level, err := config.ParseLogLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	logger, cleanup := config.SetupLogger(cfg.Logging.File, level)
	slog.SetDefault(logger)

	c.App.Metadata[configKey] = cfg
	c.App.Metadata[loggerKey] = logger
	c.App.Metadata[cleanupKey] = cleanup
	return nil
}

func teardown(c *cli.Context) error {
	if cleanup, ok := c.App.Metadata[cleanupKey].(func() error); ok {
		return cleanup()
	}
	return nil
}

// withDatabase opens the database for one command. The context is cancelled on SIGINT or SIGTERM.
func withDatabase(c *cli.Context, fn func(ctx context.Context, db *enrich.Database) error) error {
	cfg, ok := c.App.Metadata[configKey].(*config.Config)
	if !ok {
		return errors.New("configuration not loaded")
	}
	logger, _ := c.App.Metadata[loggerKey].(*slog.Logger)
	if logger == nil {
		logger = slog.Default()
	}
	if c.IsSet("collection") {
		override := *cfg
		override.VectorStore.Collection = c.String("collection")
		cfg = &override
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	return fn(ctx, db)
}

func withOrchestrator(c *cli.Context, fn func(ctx context.Context, orchestrator *ingestion.Orchestrator) error) error {
	return withDatabase(c, func(ctx context.Context, db *enrich.Database) error {
		orchestrator, err := db.NewOrchestrator()
		if err != nil {
			return fmt.Errorf("failed to create orchestrator: %w", err)
		}
		defer orchestrator.Release()
		return fn(ctx, orchestrator)
	})
}

func actorFlag(c *cli.Context) core.Actor {
	return core.ActorFromID(strings.TrimSpace(c.String("owner")))
}

func parseIDs(args []string) ([]core.ID, error) {
	if len(args) == 0 {
		return nil, errors.New("at least one record ID is required")
	}
	ids := make([]core.ID, len(args))
	for i, arg := range args {
		n, err := strconv.ParseUint(arg, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid record ID %q", arg)
		}
		ids[i] = core.ID(n)
	}
	return ids, nil
}

func ingestCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("at least one file is required")
	}
	return withOrchestrator(c, func(ctx context.Context, orchestrator *ingestion.Orchestrator) error {
		actor := actorFlag(c)
		var ids []core.ID
		for _, path := range c.Args().Slice() {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}
			record, err := orchestrator.AcceptUpload(ctx, actor, ingestion.UploadRequest{
				Name: filepath.Base(path),
				Data: data,
			})
			if err != nil {
				return fmt.Errorf("failed to accept %s: %w", path, err)
			}
			fmt.Fprintf(c.App.Writer, "accepted %s as record %d\n", path, record.Id)
			ids = append(ids, record.Id)
		}
		if c.Bool("no-process") {
			return nil
		}
		return processRecords(ctx, c.App.Writer, orchestrator, ids)
	})
}

func crawlCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("exactly one URL is required")
	}
	url := c.Args().First()
	if err := crawl.ValidateURL(url); err != nil {
		return err
	}
	opts := crawl.Options{
		Limit:         c.Int("limit"),
		MaxDepth:      c.Int("max-depth"),
		IncludePaths:  c.StringSlice("include"),
		ExcludePaths:  c.StringSlice("exclude"),
		IgnoreSitemap: c.Bool("ignore-sitemap"),
	}
	return withOrchestrator(c, func(ctx context.Context, orchestrator *ingestion.Orchestrator) error {
		records, err := orchestrator.AcceptCrawl(ctx, actorFlag(c), url, opts)
		if err != nil {
			return fmt.Errorf("crawl failed: %w", err)
		}
		return processAccepted(ctx, c, orchestrator, records)
	})
}

func webSearchCommand(c *cli.Context) error {
	query := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return errors.New("a query is required")
	}
	opts := crawl.SearchOptions{
		Limit:         c.Int("limit"),
		TimeFilter:    c.String("time-filter"),
		Location:      c.String("location"),
		ScrapeContent: c.Bool("scrape"),
	}
	return withOrchestrator(c, func(ctx context.Context, orchestrator *ingestion.Orchestrator) error {
		records, err := orchestrator.AcceptSearch(ctx, actorFlag(c), query, opts)
		if err != nil {
			return fmt.Errorf("web search failed: %w", err)
		}
		return processAccepted(ctx, c, orchestrator, records)
	})
}

func extractCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("exactly one URL is required")
	}
	url := c.Args().First()
	if err := crawl.ValidateURL(url); err != nil {
		return err
	}
	opts := crawl.ExtractOptions{
		Timeout: c.Duration("timeout"),
		WaitFor: c.Duration("wait-for"),
	}
	if c.IsSet("full-page") {
		onlyMain := !c.Bool("full-page")
		opts.OnlyMainContent = &onlyMain
	}
	return withOrchestrator(c, func(ctx context.Context, orchestrator *ingestion.Orchestrator) error {
		record, err := orchestrator.AcceptExtract(ctx, actorFlag(c), url, c.String("prompt"), opts)
		if err != nil {
			return fmt.Errorf("extract failed: %w", err)
		}
		return processAccepted(ctx, c, orchestrator, []*core.IngestionRecord{record})
	})
}

// processAccepted reports records created from web sources and processes them unless --no-process is set.
func processAccepted(ctx context.Context, c *cli.Context, orchestrator *ingestion.Orchestrator, records []*core.IngestionRecord) error {
	ids := make([]core.ID, len(records))
	for i, record := range records {
		fmt.Fprintf(c.App.Writer, "accepted %s as record %d\n", record.SourceLocator, record.Id)
		ids[i] = record.Id
	}
	if len(ids) == 0 {
		fmt.Fprintln(c.App.Writer, "no pages with content found")
		return nil
	}
	if c.Bool("no-process") {
		return nil
	}
	return processRecords(ctx, c.App.Writer, orchestrator, ids)
}

// processRecords runs ids through the pipeline and reports the outcome of each.
func processRecords(ctx context.Context, w io.Writer, orchestrator *ingestion.Orchestrator, ids []core.ID) error {
	if err := orchestrator.Submit(ctx, ids...); err != nil {
		return err
	}
	orchestrator.Wait()

	failed := 0
	for _, id := range ids {
		record, err := orchestrator.Record(ctx, id)
		if err != nil {
			return err
		}
		if record.Status == core.StatusFailed {
			failed++
			fmt.Fprintf(w, "record %d failed: %s\n", id, record.ErrorMessage)
			continue
		}
		fmt.Fprintf(w, "record %d %s\n", id, record.Status)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d records failed", failed, len(ids))
	}
	return nil
}

func processCommand(c *cli.Context) error {
	return withOrchestrator(c, func(ctx context.Context, orchestrator *ingestion.Orchestrator) error {
		recovered, err := orchestrator.RecoverInterrupted(ctx)
		if err != nil {
			return err
		}
		if recovered > 0 {
			fmt.Fprintf(c.App.Writer, "marked %d interrupted records failed; use retry to run them again\n", recovered)
		}
		pending, _, err := orchestrator.ListRecords(ctx, storage.RecordFilter{Status: core.StatusPending})
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			fmt.Fprintln(c.App.Writer, "no pending records")
			return nil
		}
		ids := make([]core.ID, len(pending))
		for i, record := range pending {
			ids[i] = record.Id
		}
		return processRecords(ctx, c.App.Writer, orchestrator, ids)
	})
}

func retryCommand(c *cli.Context) error {
	ids, err := parseIDs(c.Args().Slice())
	if err != nil {
		return err
	}
	return withOrchestrator(c, func(ctx context.Context, orchestrator *ingestion.Orchestrator) error {
		result, err := orchestrator.BulkRetry(ctx, ids)
		if err != nil {
			return err
		}
		printBulk(c.App.Writer, "retried", result)
		return result.Err()
	})
}

func deleteCommand(c *cli.Context) error {
	ids, err := parseIDs(c.Args().Slice())
	if err != nil {
		return err
	}
	return withOrchestrator(c, func(ctx context.Context, orchestrator *ingestion.Orchestrator) error {
		result, err := orchestrator.BulkDelete(ctx, ids)
		if err != nil {
			return err
		}
		printBulk(c.App.Writer, "deleted", result)
		return result.Err()
	})
}

func printBulk(w io.Writer, verb string, result ingestion.BulkResult) {
	for _, id := range result.Succeeded {
		fmt.Fprintf(w, "%s record %d\n", verb, id)
	}
	for id, err := range result.Failed {
		fmt.Fprintf(w, "record %d: %v\n", id, err)
	}
}

type recordView struct {
	ID       core.ID  `json:"id"`
	Status   string   `json:"status"`
	Source   string   `json:"source"`
	Name     string   `json:"name"`
	Title    string   `json:"title,omitempty"`
	Locator  string   `json:"locator"`
	Retries  int      `json:"retries"`
	Error    string   `json:"error,omitempty"`
	Tagging  string   `json:"tagging"`
	Tags     []string `json:"tags,omitempty"`
	VectorID string   `json:"vector_id,omitempty"`
}

func newRecordView(r *core.IngestionRecord) recordView {
	view := recordView{
		ID:       r.Id,
		Status:   r.Status.String(),
		Source:   r.SourceKind.String(),
		Name:     r.DeclaredName,
		Title:    r.Title,
		Locator:  r.SourceLocator,
		Retries:  r.RetryCount,
		Error:    r.ErrorMessage,
		Tagging:  r.TaggingOutcome.String(),
		VectorID: r.VectorObjectID,
	}
	for _, tag := range r.SmartTags {
		view.Tags = append(view.Tags, tag.Name)
	}
	return view
}

func statusCommand(c *cli.Context) error {
	filter := storage.RecordFilter{
		Search: c.String("search"),
		Offset: c.Int("offset"),
		Limit:  c.Int("limit"),
	}
	if name := c.String("status"); name != "" {
		status, err := core.ParseStatus(name)
		if err != nil {
			return err
		}
		filter.Status = status
	}
	if c.IsSet("owner") {
		filter.Owner = actorFlag(c)
	}

	return withOrchestrator(c, func(ctx context.Context, orchestrator *ingestion.Orchestrator) error {
		records, total, err := orchestrator.ListRecords(ctx, filter)
		if err != nil {
			return err
		}
		stats, err := orchestrator.Stats(ctx)
		if err != nil {
			return err
		}

		if c.Bool("json") {
			out := struct {
				Total   int            `json:"total"`
				Records []recordView   `json:"records"`
				Stats   map[string]int `json:"stats"`
			}{Total: total, Records: []recordView{}, Stats: map[string]int{}}
			for _, r := range records {
				out.Records = append(out.Records, newRecordView(r))
			}
			for status, n := range stats {
				out.Stats[status.String()] = n
			}
			enc := json.NewEncoder(c.App.Writer)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		}

		tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSTATUS\tSOURCE\tNAME\tRETRIES\tERROR")
		for _, r := range records {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\n", r.Id, r.Status, r.SourceKind, r.DeclaredName, r.RetryCount, r.ErrorMessage)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "\nshowing %d of %d\n", len(records), total)
		for _, status := range core.Statuses {
			fmt.Fprintf(c.App.Writer, "%s: %d\n", status, stats[status])
		}
		return nil
	})
}

func uploadCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("exactly one JSON file is required")
	}
	data, err := os.ReadFile(c.Args().First())
	if err != nil {
		return fmt.Errorf("failed to read objects: %w", err)
	}
	var objects []vectorstore.Object
	if err := json.Unmarshal(data, &objects); err != nil {
		return fmt.Errorf("failed to parse objects: %w", err)
	}
	if len(objects) == 0 {
		return errors.New("no objects to upload")
	}

	return withDatabase(c, func(ctx context.Context, db *enrich.Database) error {
		tracker := reembed.NewProgressTracker(c.App.ErrWriter, len(objects), 1)
		uploader, err := db.NewUploader(vectorstore.WithProgress(tracker.Observe))
		if err != nil {
			return err
		}
		result, err := uploader.Upload(ctx, db.Collection(), objects)
		tracker.Finish()
		if err != nil {
			return fmt.Errorf("upload failed: %w", err)
		}
		fmt.Fprintf(c.App.Writer, "uploaded %d of %d objects to %s in %d batches (%d failed)\n",
			result.Uploaded, result.Requested, db.Collection(), result.Batches, result.FailedBatches)
		return result.Err()
	})
}

func clearCommand(c *cli.Context) error {
	return withDatabase(c, func(ctx context.Context, db *enrich.Database) error {
		if !c.Bool("yes") {
			return fmt.Errorf("refusing to clear collection %q without --yes", db.Collection())
		}
		uploader, err := db.NewUploader()
		if err != nil {
			return err
		}
		result, err := uploader.Clear(ctx, db.Collection())
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "deleted %d of %d objects from %s\n", result.DeletedCount, result.TotalObjects, db.Collection())
		return nil
	})
}

func healthCommand(c *cli.Context) error {
	return withDatabase(c, func(ctx context.Context, db *enrich.Database) error {
		uploader, err := db.NewUploader()
		if err != nil {
			return err
		}
		status := uploader.HealthCheck(ctx)
		if !status.Connected {
			return fmt.Errorf("vector store unreachable: %s", status.Error)
		}
		fmt.Fprintf(c.App.Writer, "connected: %d objects in %d collections\n", status.Stats.TotalObjects, len(status.Stats.Collections))
		for _, name := range status.Stats.Collections {
			fmt.Fprintf(c.App.Writer, "  %s: %d\n", name, status.Stats.ObjectCounts[name])
		}
		return nil
	})
}

// stageMonitor prints each search stage.
type stageMonitor struct {
	w io.Writer
}

func (m *stageMonitor) Start(query string) {
	fmt.Fprintf(m.w, "query: %q\n", query)
}

func (m *stageMonitor) AfterEmbedding(dimension int) {
	fmt.Fprintf(m.w, "embedded query (%d dimensions)\n", dimension)
}

func (m *stageMonitor) AfterVectorQuery(matches []vectorstore.Match) {
	fmt.Fprintf(m.w, "%d candidates\n", len(matches))
}

func (m *stageMonitor) VerbatimHit(match vectorstore.Match, coverage float32) {
	fmt.Fprintf(m.w, "keyword hit %s (%.0f%%)\n", match.Object.ID, coverage*100)
}

func (m *stageMonitor) Finish(results []search.Result) {
	fmt.Fprintf(m.w, "%d results\n", len(results))
}

func searchCommand(c *cli.Context) error {
	query := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return errors.New("a query is required")
	}
	return withDatabase(c, func(ctx context.Context, db *enrich.Database) error {
		searcher, err := db.NewSearcher()
		if err != nil {
			return err
		}
		var monitor search.SearchMonitor
		if c.Bool("verbose") {
			monitor = &stageMonitor{w: c.App.ErrWriter}
		}
		results, err := searcher.SearchWithMonitor(ctx, db.Collection(), query, c.Int("limit"), float32(c.Float64("max-distance")), monitor)
		if err != nil {
			return err
		}

		fmt.Fprintf(c.App.Writer, "Found %d hits\n", len(results))
		for i, hit := range results {
			props := hit.Object.Properties
			fmt.Fprintf(c.App.Writer, "%d: %s [%0.3f]\n", i, props.Title, hit.Score)
			if props.URL != "" {
				fmt.Fprintf(c.App.Writer, "   %s\n", props.URL)
			}
			fmt.Fprintf(c.App.Writer, "   %s\n", snippet(props.Content, 160))
		}
		return nil
	})
}

// snippet returns the first n characters of s on a single line.
func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

func chatCommand(c *cli.Context) error {
	question := strings.Join(c.Args().Slice(), " ")
	interactive := c.Bool("interactive")
	if strings.TrimSpace(question) == "" && !interactive {
		return errors.New("a question is required unless --interactive is set")
	}
	return withDatabase(c, func(ctx context.Context, db *enrich.Database) error {
		assistant, err := db.NewChat(
			chat.WithLimit(c.Int("limit")),
			chat.WithMaxDistance(float32(c.Float64("max-distance"))),
		)
		if err != nil {
			return err
		}

		var history []ai.ChatMessage
		ask := func(q string) error {
			answer, err := assistant.Ask(ctx, db.Collection(), q, history)
			if err != nil {
				return err
			}
			printAnswer(c.App.Writer, answer)
			history = append(history,
				ai.ChatMessage{Role: ai.RoleUser, Content: q},
				ai.ChatMessage{Role: ai.RoleAssistant, Content: answer.Response})
			return nil
		}

		if strings.TrimSpace(question) != "" {
			if err := ask(question); err != nil {
				return err
			}
		}
		if !interactive {
			return nil
		}

		scanner := bufio.NewScanner(c.App.Reader)
		for {
			fmt.Fprint(c.App.ErrWriter, "> ")
			if !scanner.Scan() {
				return scanner.Err()
			}
			line := strings.TrimSpace(scanner.Text())
			switch line {
			case "":
				continue
			case "exit", "quit":
				return nil
			}
			if err := ask(line); err != nil {
				return err
			}
		}
	})
}

func printAnswer(w io.Writer, answer *chat.Answer) {
	fmt.Fprintln(w, answer.Response)
	if len(answer.Sources) == 0 {
		return
	}
	fmt.Fprintf(w, "\nSources (%d):\n", answer.RelevantDocuments)
	for _, source := range answer.Sources {
		if source.URL != "" {
			fmt.Fprintf(w, "  - %s (%s)\n", source.Title, source.URL)
			continue
		}
		fmt.Fprintf(w, "  - %s\n", source.Title)
	}
}

func reembedCommand(c *cli.Context) error {
	reembedConfig := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
		Restart:        c.Bool("restart"),
	}

	if reembedConfig.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if reembedConfig.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if reembedConfig.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	return withDatabase(c, func(ctx context.Context, db *enrich.Database) error {
		reembedder, err := db.NewReembedder(reembedConfig, c.App.ErrWriter)
		if err != nil {
			return err
		}

		cfg := db.Config()
		fmt.Fprintf(c.App.ErrWriter, "Database: %s\n", cfg.Storage.Path)
		fmt.Fprintf(c.App.ErrWriter, "Embedding host: %s\n", cfg.AI.EmbeddingHost)
		fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n", cfg.AI.EmbeddingModel)
		fmt.Fprintln(c.App.ErrWriter)

		result, err := reembedder.Run(ctx)
		if err != nil {
			return fmt.Errorf("reembedding failed: %w", err)
		}
		if len(result.Failed) > 0 {
			return fmt.Errorf("%d records could not be reembedded: %v", len(result.Failed), result.Failed)
		}
		return nil
	})
}
