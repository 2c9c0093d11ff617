package ingestion

import "errors"

var (
	// ErrRecordStoreRequired is returned when a record store is not provided.
	ErrRecordStoreRequired = errors.New("record store required")

	// ErrBlobStoreRequired is returned when a blob store is not provided.
	ErrBlobStoreRequired = errors.New("blob store required")

	// ErrUploaderRequired is returned when a vector store uploader is not provided.
	ErrUploaderRequired = errors.New("vector store uploader required")

	// ErrAIProviderRequired is returned when an AI provider is not provided.
	ErrAIProviderRequired = errors.New("AI provider required")

	// ErrCrawlerRequired is returned by the crawl, search and extract intake when no crawler is configured.
	ErrCrawlerRequired = errors.New("crawler required")

	// ErrNothingExtracted is returned when an extraction produced no content.
	ErrNothingExtracted = errors.New("nothing extracted")

	// ErrInterrupted marks records whose processing stopped without finishing.
	ErrInterrupted = errors.New("interrupted")

	errNotInterrupted = errors.New("record not interrupted")

	// ErrUploadFailed is returned when the vector store rejected a record's object.
	ErrUploadFailed = errors.New("vector upload failed")
)
