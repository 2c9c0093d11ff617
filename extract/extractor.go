package extract

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/enrich/core"
)

// Progress checkpoints reported while extracting.
const (
	ProgressStarted    = 10
	ProgressDecoded    = 30
	ProgressClassified = 70
	ProgressDone       = 100
)

// ArchiveNote is recorded on archive payloads.
const ArchiveNote = "archive contents are not extracted"

const bytesPerMB = 1024 * 1024

// ProgressFunc receives coarse progress percentages.
type ProgressFunc func(percent int)

// Result is the outcome of one extraction.
type Result struct {
	Content core.ExtractedContent
	Text    string
	// Title is set when the payload carries one, e.g. an HTML <title>.
	Title string
}

// Extractor classifies payloads and extracts their text. It is safe for concurrent use.
type Extractor struct {
	logger *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) {
		e.logger = logger
	}
}

// New returns an Extractor.
func New(opts ...Option) *Extractor {
	e := &Extractor{logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "extractor")
	return e
}

// Extract classifies data by MIME type and file name, in this order:
// text and markup, JSON, archive, then opaque binary.
// progress may be nil.
func (e *Extractor) Extract(ctx context.Context, data []byte, mimeType, name string, progress ProgressFunc) Result {
	report := func(p int) {
		if progress != nil {
			progress(p)
		}
	}
	report(ProgressStarted)

	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	ext := strings.ToLower(filepath.Ext(name))
	report(ProgressDecoded)

	var result Result
	switch {
	case isText(mimeType, ext):
		if isHTML(mimeType, ext) {
			result = extractHTML(data, name)
		} else {
			result = textResult(decodeText(data), name)
		}
	case isJSON(mimeType, ext):
		result = extractJSON(data, name)
	case archiveFormat(mimeType, ext) != "":
		result = archiveResult(data, name, archiveFormat(mimeType, ext))
	default:
		result = binaryResult(data, name, mimeType)
	}
	report(ProgressClassified)

	e.logger.Debug("extracted content",
		"name", name,
		"mime", mimeType,
		"kind", result.Content.Kind,
		"bytes", len(data),
		"chars", utf8.RuneCountInString(result.Text))
	return result
}

func isText(mimeType, ext string) bool {
	if strings.Contains(mimeType, "text") {
		return true
	}
	switch ext {
	case ".txt", ".md", ".markdown", ".html", ".htm":
		return true
	}
	return false
}

func isHTML(mimeType, ext string) bool {
	return strings.Contains(mimeType, "html") || ext == ".html" || ext == ".htm"
}

func isJSON(mimeType, ext string) bool {
	return strings.Contains(mimeType, "json") || ext == ".json"
}

// archiveFormat returns the archive format name, or "" if the payload is not an archive.
func archiveFormat(mimeType, ext string) string {
	switch {
	case strings.Contains(mimeType, "zip") && !strings.Contains(mimeType, "gzip"), ext == ".zip":
		return "zip"
	case strings.Contains(mimeType, "x-7z"), ext == ".7z":
		return "7z"
	case strings.Contains(mimeType, "rar"), ext == ".rar":
		return "rar"
	case strings.Contains(mimeType, "tar"), ext == ".tar":
		return "tar"
	case strings.Contains(mimeType, "gzip"), ext == ".gz", ext == ".tgz":
		return "gzip"
	}
	return ""
}

// decodeText decodes UTF-8, dropping a byte order mark and replacing invalid sequences.
func decodeText(data []byte) string {
	s := strings.TrimPrefix(string(data), "\uFEFF")
	return strings.ToValidUTF8(s, "\uFFFD")
}

func textResult(text, name string) Result {
	content := core.ExtractedContent{
		Kind:     core.ContentKindText,
		Encoding: "utf-8",
	}
	if strings.TrimSpace(text) == "" {
		return Result{Content: content, Text: emptyDescription(name)}
	}
	content.LineCount = strings.Count(text, "\n") + 1
	content.CharCount = utf8.RuneCountInString(text)
	return Result{Content: content, Text: text}
}

func archiveResult(data []byte, name, format string) Result {
	return Result{
		Content: core.ExtractedContent{
			Kind:     core.ContentKindArchive,
			Format:   format,
			Size:     int64(len(data)),
			Note:     ArchiveNote,
			FileName: name,
		},
		Text: fmt.Sprintf("Archive: %s (%s MB)", name, megabytes(len(data))),
	}
}

func binaryResult(data []byte, name, mimeType string) Result {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return Result{
		Content: core.ExtractedContent{
			Kind:     core.ContentKindBinary,
			Format:   mimeType,
			Size:     int64(len(data)),
			FileName: name,
		},
		Text: fmt.Sprintf("Binary file: %s (%s) - %s MB", name, mimeType, megabytes(len(data))),
	}
}

func emptyDescription(name string) string {
	return "Empty file: " + name
}

func megabytes(n int) string {
	return fmt.Sprintf("%.2f", float64(n)/bytesPerMB)
}
