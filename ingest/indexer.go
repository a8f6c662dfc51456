package ingest

import (
	"context"
	"fmt"
	"time"

	"docufi/model"
	"docufi/store"
	"docufi/types"
)

// Indexer embeds chunk batches and upserts them into the vector index.
// Each batch is retried a bounded number of times before the whole run
// fails with an EmbeddingError naming the offending chunk range.
type Indexer struct {
	embedder  model.Embedder
	index     store.VectorIndexer
	batchSize int
	retries   int
}

func NewIndexer(embedder model.Embedder, index store.VectorIndexer, batchSize, retries int) *Indexer {
	if batchSize <= 0 {
		batchSize = 64
	}
	if max := embedder.MaxBatch(); max > 0 && batchSize > max {
		batchSize = max
	}
	if retries < 0 {
		retries = 0
	}
	return &Indexer{
		embedder:  embedder,
		index:     index,
		batchSize: batchSize,
		retries:   retries,
	}
}

// Index pushes chunks into namespace batch by batch. onBatch, if set, is
// called with the running total of indexed chunks after every batch.
func (ix *Indexer) Index(ctx context.Context, namespace string, chunks []types.Chunk, onBatch func(indexed int)) error {
	for from := 0; from < len(chunks); from += ix.batchSize {
		to := from + ix.batchSize
		if to > len(chunks) {
			to = len(chunks)
		}
		batch := chunks[from:to]

		if err := ix.indexBatch(ctx, namespace, batch); err != nil {
			return types.EmbeddingError{ChunkFrom: from, ChunkTo: to - 1, Err: err}
		}
		if onBatch != nil {
			onBatch(to)
		}
	}
	return nil
}

func (ix *Indexer) indexBatch(ctx context.Context, namespace string, batch []types.Chunk) error {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Content
	}

	var lastErr error
	for attempt := 0; attempt <= ix.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryDelay(attempt)):
			}
		}

		vectors, err := ix.embedder.Embed(ctx, texts)
		if err != nil {
			lastErr = err
			continue
		}

		items := make([]store.VectorItem, len(batch))
		for i := range batch {
			batch[i].VectorID = vectorID(batch[i])
			items[i] = store.VectorItem{
				ID:        batch[i].VectorID,
				Embedding: vectors[i],
				Page:      batch[i].Page,
				Content:   batch[i].Content,
			}
		}

		if err := ix.index.UpsertVectors(ctx, namespace, items); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("after %d attempts: %w", ix.retries+1, lastErr)
}

func vectorID(c types.Chunk) string {
	return fmt.Sprintf("%s_chunk_%d", c.DocID, c.Index)
}

func retryDelay(attempt int) time.Duration {
	base := 200 * time.Millisecond
	d := base << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
