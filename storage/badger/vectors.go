package badger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/enrich/storage"
	"github.com/poiesic/enrich/vectorstore"
)

// VectorStore implements vectorstore.Store on BadgerDB with a linear cosine scan.
// Suitable for tests and single-node deployments with modest collections.
type VectorStore struct {
	backend *Backend
}

var _ vectorstore.Store = (*VectorStore)(nil)

// NewVectorStore creates a new VectorStore.
func NewVectorStore(backend *Backend) *VectorStore {
	return &VectorStore{backend: backend}
}

// EnsureCollection defines a collection with a fixed dimension.
func (s *VectorStore) EnsureCollection(ctx context.Context, name string, dimension int) error {
	if name == "" || strings.Contains(name, ":") {
		return fmt.Errorf("invalid collection name %q", name)
	}
	if dimension < 1 {
		return fmt.Errorf("invalid dimension %d", dimension)
	}
	return s.backend.Update(func(tx *badger.Txn) error {
		info, err := readCollection(tx, name)
		if err != nil {
			return err
		}
		if info != nil {
			return vectorstore.ErrCollectionExists
		}
		return tx.Set(makeCollectionKey(name), storage.MarshalCollection(&storage.CollectionInfo{
			Name:      name,
			Dimension: dimension,
			CreatedAt: time.Now().UTC(),
		}))
	})
}

// InsertBatch upserts objects. Objects without an ID get a random one.
func (s *VectorStore) InsertBatch(ctx context.Context, collection string, objects []vectorstore.Object) (int, error) {
	inserted := 0
	err := s.backend.Update(func(tx *badger.Txn) error {
		inserted = 0
		info, err := readCollection(tx, collection)
		if err != nil {
			return err
		}
		if info == nil {
			return fmt.Errorf("%w: %s", vectorstore.ErrCollectionNotFound, collection)
		}
		for _, obj := range objects {
			if len(obj.Vector) != info.Dimension {
				return fmt.Errorf("%w: got %d, want %d", vectorstore.ErrDimensionMismatch, len(obj.Vector), info.Dimension)
			}
			id := obj.ID
			if id == "" {
				id = vectorstore.NewObjectID()
			}
			value := storage.MarshalVector(&storage.StoredVector{
				ID:     id,
				Vector: obj.Vector,
				Properties: map[string]string{
					"title":   obj.Properties.Title,
					"content": obj.Properties.Content,
					"url":     obj.Properties.URL,
					"source":  obj.Properties.Source,
				},
			})
			if err := tx.Set(makeVectorKey(collection, id), value); err != nil {
				return err
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// Query returns up to limit objects ordered by cosine distance ascending.
func (s *VectorStore) Query(ctx context.Context, collection string, vector []float32, limit int) ([]vectorstore.Match, error) {
	var results []vectorstore.Match

	err := s.backend.WithTx(func(tx *badger.Txn) error {
		info, err := readCollection(tx, collection)
		if err != nil {
			return err
		}
		if info == nil {
			return fmt.Errorf("%w: %s", vectorstore.ErrCollectionNotFound, collection)
		}
		if len(vector) != info.Dimension {
			return fmt.Errorf("%w: got %d, want %d", vectorstore.ErrDimensionMismatch, len(vector), info.Dimension)
		}
		queryNorm := norm(vector)

		return iteratePrefix(tx, makePartialVectorKey(collection), false, func(item *badger.Item) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var stored *storage.StoredVector
			if err := item.Value(func(val []byte) error {
				var err error
				stored, err = storage.UnmarshalVector(val)
				return err
			}); err != nil {
				return err
			}

			// Calculate cosine distance
			similarity := float32(0)
			if denom := queryNorm * norm(stored.Vector); denom > 0 {
				similarity = dotProduct(vector, stored.Vector) / denom
			}
			results = append(results, vectorstore.Match{
				Object:   toObject(stored),
				Distance: 1 - similarity,
			})
			return nil
		})
	}, false)

	if err != nil {
		return nil, err
	}

	// Sort by distance ascending
	slices.SortFunc(results, func(a, b vectorstore.Match) int {
		if a.Distance < b.Distance {
			return -1
		}
		if a.Distance > b.Distance {
			return 1
		}
		return strings.Compare(a.Object.ID, b.Object.ID)
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

// ListObjectIDs returns the ids of every object in a collection.
func (s *VectorStore) ListObjectIDs(ctx context.Context, collection string) ([]string, error) {
	prefix := makePartialVectorKey(collection)
	var ids []string
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		info, err := readCollection(tx, collection)
		if err != nil {
			return err
		}
		if info == nil {
			return fmt.Errorf("%w: %s", vectorstore.ErrCollectionNotFound, collection)
		}
		return iteratePrefix(tx, prefix, true, func(item *badger.Item) error {
			ids = append(ids, string(item.Key()[len(prefix):]))
			return nil
		})
	}, false)
	return ids, err
}

// DeleteObject removes a single object.
func (s *VectorStore) DeleteObject(ctx context.Context, collection, id string) error {
	return s.backend.Update(func(tx *badger.Txn) error {
		return tx.Delete(makeVectorKey(collection, id))
	})
}

// Stats returns per-collection object counts, ordered by name.
func (s *VectorStore) Stats(ctx context.Context) ([]vectorstore.CollectionStats, error) {
	var stats []vectorstore.CollectionStats
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		var infos []*storage.CollectionInfo
		err := iteratePrefix(tx, []byte(vectorCollPrefix), false, func(item *badger.Item) error {
			return item.Value(func(val []byte) error {
				info, err := storage.UnmarshalCollection(val)
				if err != nil {
					return err
				}
				infos = append(infos, info)
				return nil
			})
		})
		if err != nil {
			return err
		}
		for _, info := range infos {
			count := 0
			if err := iteratePrefix(tx, makePartialVectorKey(info.Name), true, func(*badger.Item) error {
				count++
				return nil
			}); err != nil {
				return err
			}
			stats = append(stats, vectorstore.CollectionStats{
				Name:        info.Name,
				Dimension:   info.Dimension,
				ObjectCount: count,
			})
		}
		return nil
	}, false)
	return stats, err
}

// Ping reports whether the backend is open.
func (s *VectorStore) Ping(ctx context.Context) error {
	if s.backend.IsClosed() {
		return storage.ErrStorageClosed
	}
	return nil
}

// Close is a no-op; the backend is owned by the caller.
func (s *VectorStore) Close() error {
	return nil
}

func readCollection(tx *badger.Txn, name string) (*storage.CollectionInfo, error) {
	item, err := tx.Get(makeCollectionKey(name))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var info *storage.CollectionInfo
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		info, unmarshalErr = storage.UnmarshalCollection(val)
		return unmarshalErr
	})
	return info, err
}

func toObject(v *storage.StoredVector) vectorstore.Object {
	return vectorstore.Object{
		ID:     v.ID,
		Vector: v.Vector,
		Properties: vectorstore.Properties{
			Title:   v.Properties["title"],
			Content: v.Properties["content"],
			URL:     v.Properties["url"],
			Source:  v.Properties["source"],
		},
	}
}

// dotProduct calculates the dot product of two vectors.
func dotProduct(a, b []float32) float32 {
	var sum float32
	minLen := min(len(a), len(b))
	for i := 0; i < minLen; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

func norm(v []float32) float32 {
	return float32(math.Sqrt(float64(dotProduct(v, v))))
}
