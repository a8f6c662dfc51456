package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"docufi/model"
	"docufi/store"
	"docufi/types"
	"docufi/worker"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeParser struct {
	pages []model.Page
	err   error
	calls int
}

func (f *fakeParser) Parse(_ context.Context, _ []byte, _ string) (*model.ParseResult, error) {
	f.calls++
	if f.err != nil {
		return nil, types.ParseError{Err: f.err}
	}
	words := 0
	for _, p := range f.pages {
		words += len(p.Text)
	}
	return &model.ParseResult{Pages: f.pages, PageCount: len(f.pages), WordCount: words}, nil
}

type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) MaxBatch() int { return 64 }

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func testConfig(t *testing.T) types.Config {
	cfg := types.ConfigFromEnv()
	cfg.UploadDir = t.TempDir()
	cfg.ChunkSize = 5
	cfg.ChunkOverlap = 0
	cfg.EmbedBatchSize = 4
	cfg.EmbedRetries = 1
	return cfg
}

func tenPages() []model.Page {
	pages := make([]model.Page, 10)
	for i := range pages {
		pages[i] = model.Page{
			Number: i + 1,
			Text:   fmt.Sprintf("page %d alpha beta gamma delta epsilon zeta", i+1),
		}
	}
	return pages
}

func seedDocument(t *testing.T, cfg types.Config, mem *store.MemoryStore) types.Document {
	t.Helper()
	id := uuid.New()
	path := filepath.Join(cfg.UploadDir, id.String()+".pdf")
	require.NoError(t, os.WriteFile(path, []byte("raw pdf bytes"), 0o644))

	doc := types.Document{
		ID:               id,
		OriginalFilename: "report.pdf",
		StoragePath:      path,
		Status:           types.StatusUploaded,
		VectorNamespace:  types.NamespaceFor(id),
	}
	require.NoError(t, mem.SaveDocument(context.Background(), doc))
	return doc
}

func TestPipelineProcessToEmbedded(t *testing.T) {
	cfg := testConfig(t)
	mem := store.NewMemoryStore()
	parser := &fakeParser{pages: tenPages()}
	embedder := &fakeEmbedder{}
	p := NewPipeline(cfg, mem, mem, parser, embedder, nil, worker.NewPool(1))

	doc := seedDocument(t, cfg, mem)
	p.Process(context.Background(), doc.ID)

	got, err := mem.GetDocumentByID(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusEmbedded, got.Status)
	assert.Equal(t, 100, got.Progress())
	assert.Equal(t, 10, got.PageCount)
	assert.Equal(t, got.ChunkCount, got.EmbeddingCount)
	assert.Greater(t, got.ChunkCount, 0)
	assert.Empty(t, got.ProcessingError)

	matches, err := mem.QueryVectors(context.Background(), got.VectorNamespace, []float32{1, 0, 0}, 100)
	require.NoError(t, err)
	assert.Len(t, matches, got.ChunkCount)
}

func TestPipelineAdvanceIsIdempotentOnTerminal(t *testing.T) {
	cfg := testConfig(t)
	mem := store.NewMemoryStore()
	parser := &fakeParser{pages: tenPages()}
	p := NewPipeline(cfg, mem, mem, parser, &fakeEmbedder{}, nil, worker.NewPool(1))

	doc := seedDocument(t, cfg, mem)
	p.Process(context.Background(), doc.ID)

	// advancing a terminal document changes nothing
	got, err := p.Advance(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusEmbedded, got.Status)

	again, err := p.Advance(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, got.UpdatedAt, again.UpdatedAt)
}

func TestPipelineParseFailureIsPermanent(t *testing.T) {
	cfg := testConfig(t)
	mem := store.NewMemoryStore()
	parser := &fakeParser{err: errors.New("converter exploded")}
	p := NewPipeline(cfg, mem, mem, parser, &fakeEmbedder{}, nil, worker.NewPool(1))

	doc := seedDocument(t, cfg, mem)
	p.Process(context.Background(), doc.ID)

	got, err := mem.GetDocumentByID(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, got.Status)
	assert.Contains(t, got.ProcessingError, "parse failed")
	assert.Equal(t, 1, parser.calls, "parse failures are not retried")
}

func TestPipelineEmbedFailureCleansNamespace(t *testing.T) {
	cfg := testConfig(t)
	mem := store.NewMemoryStore()
	parser := &fakeParser{pages: tenPages()}
	embedder := &fakeEmbedder{err: errors.New("embedding api down")}
	p := NewPipeline(cfg, mem, mem, parser, embedder, nil, worker.NewPool(1))

	doc := seedDocument(t, cfg, mem)
	p.Process(context.Background(), doc.ID)

	got, err := mem.GetDocumentByID(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, got.Status)
	assert.Contains(t, got.ProcessingError, "embedding")
	assert.Equal(t, 0, got.EmbeddingCount)
	assert.Equal(t, cfg.EmbedRetries+1, embedder.calls, "first batch retried then abandoned")

	matches, err := mem.QueryVectors(context.Background(), got.VectorNamespace, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, matches, "partial vectors are removed")
}

// blockingEmbedder stalls its first batch until release is closed, so a
// test can act while a document is mid-embed.
type blockingEmbedder struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingEmbedder) MaxBatch() int { return 64 }

func (b *blockingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	b.once.Do(func() {
		close(b.started)
		<-b.release
	})
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func TestPipelineDeleteDuringEmbedStaysDeleted(t *testing.T) {
	cfg := testConfig(t)
	mem := store.NewMemoryStore()
	embedder := &blockingEmbedder{started: make(chan struct{}), release: make(chan struct{})}
	pool := worker.NewPool(2)
	defer pool.Shutdown(time.Second)
	p := NewPipeline(cfg, mem, mem, &fakeParser{pages: tenPages()}, embedder, nil, pool)

	doc := seedDocument(t, cfg, mem)
	p.Enqueue(doc.ID)
	<-embedder.started

	deleted := make(chan error, 1)
	go func() {
		deleted <- p.Delete(context.Background(), doc.ID)
	}()
	// the delete must be queued under the document key before the
	// embed stage is allowed to finish
	time.Sleep(50 * time.Millisecond)
	close(embedder.release)

	select {
	case err := <-deleted:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("delete did not complete")
	}

	_, err := mem.GetDocumentByID(context.Background(), doc.ID)
	var notFound types.NotFoundError
	require.ErrorAs(t, err, &notFound, "deleting mid-embed must not resurrect the document")

	matches, err := mem.QueryVectors(context.Background(), doc.VectorNamespace, []float32{1, 0, 0}, 100)
	require.NoError(t, err)
	assert.Empty(t, matches, "the namespace stays empty after delete")
}

func TestIngestRejectsNonPDF(t *testing.T) {
	cfg := testConfig(t)
	mem := store.NewMemoryStore()
	p := NewPipeline(cfg, mem, mem, &fakeParser{}, &fakeEmbedder{}, nil, worker.NewPool(1))

	_, err := p.Ingest(context.Background(), "notes.txt", "text/plain", []byte("plain text"))
	var valErr types.ValidationError
	require.ErrorAs(t, err, &valErr)

	docs, err := mem.ListDocuments(context.Background())
	require.NoError(t, err)
	assert.Empty(t, docs, "rejected uploads leave no document behind")

	entries, err := os.ReadDir(cfg.UploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "rejected uploads leave no file behind")
}

func TestIngestRejectsOversizedFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxFileSize = 10
	mem := store.NewMemoryStore()
	p := NewPipeline(cfg, mem, mem, &fakeParser{}, &fakeEmbedder{}, nil, worker.NewPool(1))

	_, err := p.Ingest(context.Background(), "big.pdf", "application/pdf", []byte("%PDF-1.4 more than ten bytes"))
	var valErr types.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Contains(t, valErr.Errors, "file_size")
}
