package core

import (
	"encoding/binary"
	"encoding/hex"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// Record IDs come from database sequences and are never 0 once stored.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// ContentDigest returns a hex BLAKE2b-256 digest of data.
// Used to build stable blob paths for uploaded bytes.
func ContentDigest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SourceKind identifies where an ingestion record came from.
type SourceKind int

const (
	// SourceKindUpload is a file uploaded by a user.
	SourceKindUpload SourceKind = iota + 1
	// SourceKindCrawl is a page fetched by the crawler.
	SourceKindCrawl
)

func (k SourceKind) String() string {
	switch k {
	case SourceKindUpload:
		return "upload"
	case SourceKindCrawl:
		return "crawl"
	}
	return "unknown"
}

// IngestionRecord is the durable unit of work tracking one source item through the pipeline.
type IngestionRecord struct {
	Id            ID
	Owner         Actor
	SourceKind    SourceKind
	SourceLocator string // URL for crawled pages, storage path for uploads
	BlobPath      string // Handle of the raw bytes in blob storage
	MimeType      string
	DeclaredName  string
	Title         string
	ByteSize      int64

	Status           Status
	ExtractionStatus ExtractionStatus

	ContentText      string
	ExtractedContent *ExtractedContent
	Embedding        []float32
	SmartTags        []SmartTag
	TaggingOutcome   TaggingOutcome
	VectorObjectID   string // Object ID in the vector store once uploaded

	ErrorMessage string
	RetryCount   int

	CreatedAt             time.Time
	UpdatedAt             time.Time
	ProcessingStartedAt   time.Time
	ProcessingCompletedAt time.Time
}

// ContentKind discriminates the ExtractedContent union.
type ContentKind int

const (
	ContentKindText ContentKind = iota + 1
	ContentKindJSON
	ContentKindArchive
	ContentKindBinary
)

func (k ContentKind) String() string {
	switch k {
	case ContentKindText:
		return "text"
	case ContentKindJSON:
		return "json"
	case ContentKindArchive:
		return "archive"
	case ContentKindBinary:
		return "binary"
	}
	return "unknown"
}

// ExtractedContent is a typed description of extracted content.
// Only the fields belonging to Kind are meaningful.
type ExtractedContent struct {
	Kind ContentKind

	// text
	Encoding    string
	LineCount   int
	CharCount   int
	FormatError string // set when a structured payload failed to parse and fell back to text

	// json
	KeyCount int

	// archive, binary (Size is also the json source length)
	Format   string
	Size     int64
	Note     string
	FileName string
}

// FormatErrorInvalid annotates JSON payloads that could not be parsed.
const FormatErrorInvalid = "invalid-format"

// TagCategory classifies a smart tag.
type TagCategory string

const (
	TagCategoryTopic       TagCategory = "topic"
	TagCategoryIndustry    TagCategory = "industry"
	TagCategoryContentType TagCategory = "content_type"
	TagCategoryDifficulty  TagCategory = "difficulty"
	TagCategorySentiment   TagCategory = "sentiment"
)

// TagCategories lists every valid TagCategory.
var TagCategories = []TagCategory{
	TagCategoryTopic,
	TagCategoryIndustry,
	TagCategoryContentType,
	TagCategoryDifficulty,
	TagCategorySentiment,
}

// SmartTag is a categorized, confidence-scored label attached to a record.
type SmartTag struct {
	Name              string
	Category          TagCategory
	Confidence        float64
	Description       string
	ExtractedEntities []string
}

// FallbackTag is substituted whenever tag generation fails or yields unusable output.
func FallbackTag() SmartTag {
	return SmartTag{
		Name:        "web_content",
		Category:    TagCategoryContentType,
		Confidence:  0.9,
		Description: "Web scraped content",
	}
}

// TaggingOutcome records how the tagging stage ended for a record.
type TaggingOutcome int

const (
	TaggingOutcomeNone TaggingOutcome = iota
	TaggingOutcomeTagged
	TaggingOutcomeFallback
	TaggingOutcomeFailed
)

func (o TaggingOutcome) String() string {
	switch o {
	case TaggingOutcomeTagged:
		return "tagged"
	case TaggingOutcomeFallback:
		return "fallback"
	case TaggingOutcomeFailed:
		return "failed"
	}
	return "none"
}

// ExtractionQueueEntry tracks coarse extraction progress for one record.
type ExtractionQueueEntry struct {
	Id           string
	RecordId     ID
	Status       ExtractionStatus
	Progress     int
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	StartedAt    time.Time
	CompletedAt  time.Time
}

// Checkpoint records how far a long-running batch job has progressed.
type Checkpoint struct {
	ProcessorType string
	LastID        ID
	UpdatedAt     time.Time
}
