package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"docufi/model"
	"docufi/search"
	"docufi/store"
	"docufi/types"
	"docufi/worker"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedLLM struct {
	replies []model.Completion
	err     error
	calls   int
}

func (s *scriptedLLM) Complete(_ context.Context, _ model.CompletionRequest) (*model.Completion, error) {
	if s.err != nil {
		return nil, types.GenerationError{Err: s.err}
	}
	if s.calls >= len(s.replies) {
		return nil, types.GenerationError{Err: errors.New("script exhausted")}
	}
	r := s.replies[s.calls]
	s.calls++
	return &r, nil
}

type unitEmbedder struct{}

func (unitEmbedder) MaxBatch() int { return 64 }

func (unitEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func researchConfig() types.Config {
	cfg := types.ConfigFromEnv()
	cfg.TopK = 5
	cfg.MinRelevance = 0.5
	return cfg
}

func embeddedDocument(t *testing.T, mem *store.MemoryStore) types.Document {
	t.Helper()
	id := uuid.New()
	doc := types.Document{
		ID:               id,
		OriginalFilename: "deck.pdf",
		PageCount:        12,
		WordCount:        4800,
		Status:           types.StatusEmbedded,
		VectorNamespace:  types.NamespaceFor(id),
		CreatedAt:        time.Now().UTC(),
	}
	require.NoError(t, mem.SaveDocument(context.Background(), doc))
	return doc
}

func researchScript() []model.Completion {
	return []model.Completion{
		{Text: `{"topic_analysis":"investment highlights in context","key_areas_to_explore":["growth"],"research_approach":"targeted retrieval"}`},
		{Text: `["What is the revenue growth?","What are the key risks?"]`},
		{Text: `{"1":{"title":"Overview","description":"what the company does"},"2":{"title":"Financial Highlights","description":"key numbers"}}`},
		{Text: `{"content":"The company shows strong momentum.","key_points":["momentum"],"cited_chunk_ids":["ev1"]}`},
		{Text: `{"content":"Revenue grew 40% year over year.","key_points":["40% growth"],"cited_chunk_ids":["ev1","ev2"]}`},
	}
}

func TestResearchCompletesWithOrderedOutline(t *testing.T) {
	mem := store.NewMemoryStore()
	doc := embeddedDocument(t, mem)
	require.NoError(t, mem.UpsertVectors(context.Background(), doc.VectorNamespace, []store.VectorItem{
		{ID: "ev1", Embedding: []float32{1, 0, 0}, Page: 3, Content: "Revenue grew 40%"},
		{ID: "ev2", Embedding: []float32{1, 0, 0}, Page: 7, Content: "Risks include churn"},
	}))

	cfg := researchConfig()
	llm := &scriptedLLM{replies: researchScript()}
	retriever := search.NewRetriever(unitEmbedder{}, mem)
	pool := worker.NewPool(1)
	o := NewOrchestrator(cfg, mem, mem, retriever, llm, pool)

	task, err := o.Start(context.Background(), doc.ID, types.ResearchParams{Topic: "Key Investment Highlights"})
	require.NoError(t, err)
	assert.Equal(t, types.TaskPending, task.Status)

	require.Eventually(t, func() bool {
		got, err := mem.GetTaskByID(context.Background(), task.ID)
		return err == nil && got.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)

	got, err := mem.GetTaskByID(context.Background(), task.ID)
	require.NoError(t, err)
	require.Equal(t, types.TaskCompleted, got.Status)

	require.Len(t, got.ContentOutline, 2)
	assert.Equal(t, "1", got.ContentOutline[0].Key)
	assert.Equal(t, "Overview", got.ContentOutline[0].Title)
	assert.Equal(t, "2", got.ContentOutline[1].Key)

	require.Contains(t, got.ResearchFindings, "1")
	require.Contains(t, got.ResearchFindings, "2")
	assert.Equal(t, "Revenue grew 40% year over year.", got.ResearchFindings["2"].Content)

	require.NotEmpty(t, got.SourcesUsed)
	for _, src := range got.SourcesUsed {
		assert.Greater(t, src.RelevanceScore, 0.0)
		assert.LessOrEqual(t, src.RelevanceScore, 1.0)
	}
	assert.NotNil(t, got.CompletedAt)
	assert.GreaterOrEqual(t, got.ProcessingTime, 0.0)
}

func TestResearchRequiresEmbeddedDocument(t *testing.T) {
	mem := store.NewMemoryStore()
	id := uuid.New()
	require.NoError(t, mem.SaveDocument(context.Background(), types.Document{
		ID:     id,
		Status: types.StatusParsing,
	}))

	o := NewOrchestrator(researchConfig(), mem, mem, search.NewRetriever(unitEmbedder{}, mem), &scriptedLLM{}, worker.NewPool(1))
	_, err := o.Start(context.Background(), id, types.ResearchParams{Topic: "anything"})

	var conflict types.StateConflictError
	require.ErrorAs(t, err, &conflict)

	tasks, err := mem.ListTasks(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, tasks, "rejected research leaves no task behind")
}

func TestResearchUnknownDocument(t *testing.T) {
	mem := store.NewMemoryStore()
	o := NewOrchestrator(researchConfig(), mem, mem, search.NewRetriever(unitEmbedder{}, mem), &scriptedLLM{}, worker.NewPool(1))

	_, err := o.Start(context.Background(), uuid.New(), types.ResearchParams{Topic: "anything"})
	var notFound types.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestResearchFailsWithoutEvidence(t *testing.T) {
	mem := store.NewMemoryStore()
	doc := embeddedDocument(t, mem)
	// no vectors indexed for this document

	llm := &scriptedLLM{replies: researchScript()}
	o := NewOrchestrator(researchConfig(), mem, mem, search.NewRetriever(unitEmbedder{}, mem), llm, worker.NewPool(1))

	task, err := o.Start(context.Background(), doc.ID, types.ResearchParams{Topic: "Key Investment Highlights"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := mem.GetTaskByID(context.Background(), task.ID)
		return err == nil && got.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)

	got, err := mem.GetTaskByID(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "no relevant document content")
	assert.Empty(t, got.ContentOutline, "failed tasks keep no partial results")
	assert.Empty(t, got.ResearchFindings)
	assert.Empty(t, got.SourcesUsed)
	assert.NotNil(t, got.CompletedAt)
}

func TestResearchModelFailureDiscardsPartials(t *testing.T) {
	mem := store.NewMemoryStore()
	doc := embeddedDocument(t, mem)
	require.NoError(t, mem.UpsertVectors(context.Background(), doc.VectorNamespace, []store.VectorItem{
		{ID: "ev1", Embedding: []float32{1, 0, 0}, Page: 3, Content: "Revenue grew 40%"},
	}))

	// script ends after the outline, the first section call fails
	llm := &scriptedLLM{replies: researchScript()[:3]}
	o := NewOrchestrator(researchConfig(), mem, mem, search.NewRetriever(unitEmbedder{}, mem), llm, worker.NewPool(1))

	task, err := o.Start(context.Background(), doc.ID, types.ResearchParams{Topic: "Key Investment Highlights"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := mem.GetTaskByID(context.Background(), task.ID)
		return err == nil && got.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)

	got, err := mem.GetTaskByID(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskFailed, got.Status)
	assert.NotEmpty(t, got.ErrorMessage)
	assert.Empty(t, got.ContentOutline)
	assert.Empty(t, got.ResearchFindings)
}
