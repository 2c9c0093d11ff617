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


// Package storage provides the storage abstraction layer for enrich.
//
// This package defines the repository interfaces that decouple persistence
// from the pipeline. Records, blobs, checkpoints and local vector objects
// are all stored through these interfaces so the BadgerDB backend can be
// swapped for another implementation.
//
// # Constructor Return Type Pattern
//
// Public constructors in backend packages return interfaces:
//
//	store, err := badger.NewRecordStore(backend)  // returns storage.IngestionRecordStore
//
// Internal constructors may return concrete types since they're only used
// within the implementation package.
//
// # Architecture
//
//   - IngestionRecordStore: records, their smart tags and extraction queue entries
//   - BlobStore: raw source bytes addressed by path handles
//   - CheckpointRepository: resumable batch job progress
//
// # Serialization
//
// Values are encoded with MUS serializers behind a leading format version.
// Smart tags are stored apart from their record so they can be replaced
// atomically without rewriting the record body.
//
// # Usage
//
//	backend, err := badger.OpenBackend("/path/to/db", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer backend.Close()
//
// Use in tests with in-memory storage:
//
//	store, err := badger.NewMemoryStore()
//
// # Thread Safety
//
// All implementations must be thread-safe and support concurrent access
// from multiple goroutines.
//
// # Context Support
//
// All repository methods accept context.Context for cancellation.
package storage
