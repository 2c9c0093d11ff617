// Package ingestion drives ingestion records through the enrichment pipeline.
//
// The Orchestrator owns the per-record state machine:
//
//	pending -> extracting -> embedding -> uploading -> completed
//
// Any stage may move a record to failed; Retry is the only way back to pending.
// Tagging runs in the background alongside embedding and never fails a record.
//
// Records are processed concurrently on a worker pool, one goroutine per record.
// Pause and Resume are cooperative and take effect between work items.
package ingestion
