package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"docufi/model"
	"docufi/store"
	"docufi/types"
)

const metadataPrompt = `You are a financial document analyst. Extract structured metadata from the document excerpt below.
Respond with a single JSON object with exactly these keys:
  "financial_facts": object of notable financial figures (revenue, profit, margins) with values as stated,
  "investment_data": object describing funding, valuation, deal terms if present,
  "key_metrics": object of operational metrics (growth rates, customer counts, market share).
Use empty objects for categories the excerpt does not cover. Respond with JSON only.

Document excerpt:
%s`

// metadataSampleWords caps how much document text is sent for extraction.
const metadataSampleWords = 2000

// Enricher extracts financial metadata from an embedded document. It is
// best effort: a failure is logged and never changes document status.
type Enricher struct {
	logger *slog.Logger
	llm    model.Completer
	store  store.DocumentStorer
}

func NewEnricher(llm model.Completer, storer store.DocumentStorer) *Enricher {
	return &Enricher{
		logger: slog.Default(),
		llm:    llm,
		store:  storer,
	}
}

func (e *Enricher) Enrich(ctx context.Context, doc *types.Document, chunks []types.Chunk) {
	sample := sampleText(chunks, metadataSampleWords)
	if sample == "" {
		return
	}

	resp, err := e.llm.Complete(ctx, model.CompletionRequest{
		Messages: []model.Message{
			{Role: "user", Content: fmt.Sprintf(metadataPrompt, sample)},
		},
		Temperature: 0.1,
		MaxTokens:   1500,
	})
	if err != nil {
		e.logger.Warn("metadata extraction failed", "document", doc.ID, "error", err)
		return
	}

	var out struct {
		FinancialFacts types.JSONMap `json:"financial_facts"`
		InvestmentData types.JSONMap `json:"investment_data"`
		KeyMetrics     types.JSONMap `json:"key_metrics"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(resp.Text)), &out); err != nil {
		e.logger.Warn("metadata extraction returned invalid JSON", "document", doc.ID, "error", err)
		return
	}

	doc.FinancialFacts = out.FinancialFacts
	doc.InvestmentData = out.InvestmentData
	doc.KeyMetrics = out.KeyMetrics
	doc.UpdatedAt = time.Now().UTC()
	if err := e.store.SaveDocument(ctx, *doc); err != nil {
		e.logger.Warn("metadata save failed", "document", doc.ID, "error", err)
	}
}

func sampleText(chunks []types.Chunk, maxWords int) string {
	var b strings.Builder
	words := 0
	for _, c := range chunks {
		if words >= maxWords {
			break
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(c.Content)
		words += len(strings.Fields(c.Content))
	}
	return b.String()
}

// extractJSONObject pulls the outermost {...} span out of a model reply
// that may wrap the JSON in prose or code fences.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return s
	}
	return s[start : end+1]
}
