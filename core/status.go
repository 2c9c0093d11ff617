package core

import "fmt"

// Status is the pipeline stage of an IngestionRecord.
type Status int

const (
	StatusPending Status = iota + 1
	StatusExtracting
	StatusTagging
	StatusEmbedding
	StatusUploading
	StatusCompleted
	StatusFailed
)

// Statuses lists every valid Status in pipeline order.
var Statuses = []Status{
	StatusPending,
	StatusExtracting,
	StatusTagging,
	StatusEmbedding,
	StatusUploading,
	StatusCompleted,
	StatusFailed,
}

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusExtracting:
		return "extracting"
	case StatusTagging:
		return "tagging"
	case StatusEmbedding:
		return "embedding"
	case StatusUploading:
		return "uploading"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// ParseStatus converts a status name to a Status.
func ParseStatus(name string) (Status, error) {
	for _, s := range Statuses {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, ValidationError("unknown status %q", name)
}

// IsTerminal reports whether no further automatic transition leaves s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether the pipeline may move a record from s to next.
// Retry (failed -> pending) is the only backward edge.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusExtracting || next == StatusFailed
	case StatusExtracting:
		return next == StatusTagging || next == StatusEmbedding || next == StatusFailed
	case StatusTagging:
		return next == StatusEmbedding || next == StatusFailed
	case StatusEmbedding:
		return next == StatusUploading || next == StatusFailed
	case StatusUploading:
		return next == StatusCompleted || next == StatusFailed
	case StatusCompleted:
		return false
	case StatusFailed:
		return next == StatusPending
	}
	return false
}

// ExtractionStatus tracks the extraction step independently for progress reporting.
type ExtractionStatus int

const (
	ExtractionStatusPending ExtractionStatus = iota + 1
	ExtractionStatusProcessing
	ExtractionStatusCompleted
	ExtractionStatusFailed
)

func (s ExtractionStatus) String() string {
	switch s {
	case ExtractionStatusPending:
		return "pending"
	case ExtractionStatusProcessing:
		return "processing"
	case ExtractionStatusCompleted:
		return "completed"
	case ExtractionStatusFailed:
		return "failed"
	}
	return fmt.Sprintf("extraction(%d)", int(s))
}
