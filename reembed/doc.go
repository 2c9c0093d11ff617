// Package reembed regenerates embeddings for completed ingestion records
// after the embedding model changes, and re-uploads them to the vector store.
//
// Records are processed in ID order in batches. A checkpoint is saved after
// every batch so an interrupted run resumes where it stopped. Embedding calls
// are retried with exponential backoff and vectors are normalized before upload.
package reembed
