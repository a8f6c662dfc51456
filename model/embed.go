package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"time"

	"docufi/types"
)

// Embedder turns texts into vectors. Implementations must accept any
// batch size up to MaxBatch.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	MaxBatch() int
}

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint.
type OpenAIEmbedder struct {
	apiURL   string
	apiKey   string
	model    string
	maxBatch int
	client   *http.Client
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

func NewOpenAIEmbedder(timeout time.Duration, maxBatch int) *OpenAIEmbedder {
	apiURL := os.Getenv("EMBEDDING_URL")
	if apiURL == "" {
		apiURL = "https://api.openai.com/v1/embeddings"
	}
	model := os.Getenv("EMBEDDING_MODEL")
	if model == "" {
		model = "text-embedding-3-small"
	}
	if maxBatch <= 0 {
		maxBatch = 64
	}
	return &OpenAIEmbedder{
		apiURL:   apiURL,
		apiKey:   os.Getenv("OPENAI_API_KEY"),
		model:    model,
		maxBatch: maxBatch,
		client:   &http.Client{Timeout: timeout},
	}
}

func (e *OpenAIEmbedder) MaxBatch() int { return e.maxBatch }

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) > e.maxBatch {
		return nil, fmt.Errorf("batch of %d exceeds maximum %d", len(texts), e.maxBatch)
	}

	body, err := json.Marshal(embeddingRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", e.apiURL, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding API error: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	var out embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(out.Data) != len(texts) {
		return nil, fmt.Errorf("embedding API returned %d vectors for %d texts", len(out.Data), len(texts))
	}

	vectors := make([][]float32, len(out.Data))
	for i, item := range out.Data {
		norm := normalize64(item.Embedding)
		vec := make([]float32, len(norm))
		for j, v := range norm {
			vec[j] = float32(v)
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// EmbedOne embeds a single query string.
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, types.RetrievalError{Err: fmt.Errorf("no embedding returned")}
	}
	return vecs[0], nil
}

// normalize64 scales a vector to unit length so cosine scores are
// comparable across providers.
func normalize64(vec []float64) []float64 {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return vec
	}
	for i, x := range vec {
		vec[i] = x / norm
	}
	return vec
}
