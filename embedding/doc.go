// Package embedding turns text into vectors through an ai.Embedder.
//
// Single texts are validated and embedded directly. Batches are split into
// small sub-batches run on a bounded worker pool with a pacing delay between
// item starts, so a large corpus never floods the embedding service.
// Failures are isolated per item and tallied in a BatchResult.
//
// # Usage
//
//	svc, err := embedding.NewService(provider.Embedder(),
//	    embedding.WithDimension(1536),
//	    embedding.WithSubBatchSize(10),
//	    embedding.WithPaceDelay(100*time.Millisecond),
//	)
//	result, err := svc.EmbedBatch(ctx, texts)
//	for _, item := range result.Items {
//	    if item.Err != nil { ... }
//	}
package embedding
