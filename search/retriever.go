package search

import (
	"context"
	"sort"

	"docufi/model"
	"docufi/store"
	"docufi/types"

	"github.com/google/uuid"
)

// Retriever answers similarity queries over the vector index. Scope is
// either one document's namespace or, when docID is not set, the whole
// index.
type Retriever struct {
	embedder model.Embedder
	index    store.VectorIndexer
}

func NewRetriever(embedder model.Embedder, index store.VectorIndexer) *Retriever {
	return &Retriever{embedder: embedder, index: index}
}

// Search embeds the query and returns up to topK matches ordered by
// descending score, ties broken by chunk id. An empty scope yields an
// empty result, not an error.
func (r *Retriever) Search(ctx context.Context, query string, docID uuid.NullUUID, topK int) ([]types.SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}

	embedding, err := model.EmbedOne(ctx, r.embedder, query)
	if err != nil {
		return nil, err
	}

	namespace := ""
	if docID.Valid {
		namespace = types.NamespaceFor(docID.UUID)
	}

	matches, err := r.index.QueryVectors(ctx, namespace, embedding, topK)
	if err != nil {
		return nil, types.RetrievalError{Err: err}
	}

	results := make([]types.SearchResult, 0, len(matches))
	for _, m := range matches {
		results = append(results, types.SearchResult{
			ChunkID:        m.ID,
			DocumentID:     docID.UUID,
			Page:           m.Page,
			Content:        m.Content,
			RelevanceScore: clampScore(m.Score),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].RelevanceScore == results[j].RelevanceScore {
			return results[i].ChunkID < results[j].ChunkID
		}
		return results[i].RelevanceScore > results[j].RelevanceScore
	})
	return results, nil
}

// clampScore keeps cosine similarity inside [0, 1]; float drift from the
// index can push it slightly outside.
func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
