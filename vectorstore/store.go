package vectorstore

import (
	"context"
	"errors"
)

var (
	// ErrCollectionExists is returned by EnsureCollection when the collection is already defined.
	// Uploader treats it as success.
	ErrCollectionExists = errors.New("collection already exists")

	// ErrCollectionNotFound is returned when an operation targets an unknown collection.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrDimensionMismatch is returned when a vector does not match the collection dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrStoreRequired is returned when no Store is provided.
	ErrStoreRequired = errors.New("vector store required")
)

// Properties are the searchable fields stored next to a vector.
type Properties struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	URL     string `json:"url"`
	Source  string `json:"source"`
}

// Object is one vector plus its properties.
// An empty ID lets the store assign one.
type Object struct {
	ID         string     `json:"id,omitempty"`
	Vector     []float32  `json:"vector"`
	Properties Properties `json:"properties"`
}

// Match is a query hit. Distance is cosine distance, lower is closer.
type Match struct {
	Object   Object
	Distance float32
}

// CollectionStats describes a single collection.
type CollectionStats struct {
	Name        string
	Dimension   int
	ObjectCount int
}

// Store is the narrow interface to a vector database.
// Implementations must be safe for concurrent use.
type Store interface {
	// EnsureCollection defines a collection with a fixed vector dimension.
	// Returns ErrCollectionExists if it is already defined.
	EnsureCollection(ctx context.Context, name string, dimension int) error

	// InsertBatch stores objects and returns how many the store accepted.
	InsertBatch(ctx context.Context, collection string, objects []Object) (int, error)

	// Query returns up to limit objects nearest to vector, closest first.
	Query(ctx context.Context, collection string, vector []float32, limit int) ([]Match, error)

	// ListObjectIDs returns the ids of every object in a collection.
	ListObjectIDs(ctx context.Context, collection string) ([]string, error)

	// DeleteObject removes a single object. Deleting a missing object is not an error.
	DeleteObject(ctx context.Context, collection, id string) error

	// Stats returns per-collection object counts.
	Stats(ctx context.Context) ([]CollectionStats, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close releases resources held by the store.
	Close() error
}
