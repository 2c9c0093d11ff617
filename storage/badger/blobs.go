package badger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/enrich/core"
	"github.com/poiesic/enrich/storage"
)

// BlobStore implements storage.BlobStore on BadgerDB.
// Handles are the cleaned paths the bytes were stored under.
type BlobStore struct {
	backend *Backend
}

var _ storage.BlobStore = (*BlobStore)(nil)

// NewBlobStore creates a new BlobStore.
func NewBlobStore(backend *Backend) *BlobStore {
	return &BlobStore{backend: backend}
}

// Put stores data under path, replacing any previous bytes.
func (s *BlobStore) Put(ctx context.Context, path string, data []byte) (string, error) {
	handle := strings.TrimLeft(strings.TrimSpace(path), "/")
	if handle == "" {
		return "", core.ValidationError("blob path is required")
	}
	err := s.backend.Update(func(tx *badger.Txn) error {
		return tx.Set(makeBlobKey(handle), data)
	})
	if err != nil {
		return "", err
	}
	return handle, nil
}

// Get retrieves the bytes stored under handle.
func (s *BlobStore) Get(ctx context.Context, handle string) ([]byte, error) {
	var data []byte
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeBlobKey(handle))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: blob %s", storage.ErrNotFound, handle)
			}
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	}, false)
	return data, err
}

// Delete removes the bytes stored under handle.
func (s *BlobStore) Delete(ctx context.Context, handle string) error {
	if handle == "" {
		return nil
	}
	return s.backend.Update(func(tx *badger.Txn) error {
		return tx.Delete(makeBlobKey(handle))
	})
}
