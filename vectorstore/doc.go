// Package vectorstore uploads embedded content to a vector database.
//
// Store is the narrow backend interface. Uploader layers batching, collection
// setup and partial-failure accounting on top of it:
//
//	uploader, err := vectorstore.NewUploader(store, vectorstore.WithBatchSize(100))
//	result, err := uploader.Upload(ctx, "documents", objects)
//
// Backends live in vectorstore/surreal (SurrealDB with an HNSW index) and
// storage/badger (a local store for tests and single-node use).
package vectorstore
