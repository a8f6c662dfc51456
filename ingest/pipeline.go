package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"docufi/model"
	"docufi/store"
	"docufi/types"
	"docufi/worker"

	"github.com/google/uuid"
)

// Pipeline drives documents through the ingestion state machine:
// uploaded -> parsing -> parsed -> embedding -> embedded, with failed
// reachable from the two working states. Each document is processed by
// at most one worker at a time.
type Pipeline struct {
	logger   *slog.Logger
	cfg      types.Config
	store    store.DocumentStorer
	index    store.VectorIndexer
	parser   model.DocumentParser
	chunker  *Chunker
	indexer  *Indexer
	enricher *Enricher
	pool     *worker.Pool

	mu     sync.Mutex
	parsed map[uuid.UUID][]types.Chunk // chunk cache between stages
}

func NewPipeline(
	cfg types.Config,
	storer store.DocumentStorer,
	index store.VectorIndexer,
	parser model.DocumentParser,
	embedder model.Embedder,
	enricher *Enricher,
	pool *worker.Pool,
) *Pipeline {
	return &Pipeline{
		logger:   slog.Default(),
		cfg:      cfg,
		store:    storer,
		index:    index,
		parser:   parser,
		chunker:  NewChunker(cfg.ChunkSize, cfg.ChunkOverlap),
		indexer:  NewIndexer(embedder, index, cfg.EmbedBatchSize, cfg.EmbedRetries),
		enricher: enricher,
		pool:     pool,
		parsed:   make(map[uuid.UUID][]types.Chunk),
	}
}

// Ingest validates and stores an uploaded file, records the document in
// state uploaded and queues background processing. Validation failures
// leave no state behind.
func (p *Pipeline) Ingest(ctx context.Context, filename, mimeType string, data []byte) (*types.Document, error) {
	if err := p.validate(filename, mimeType, data); err != nil {
		return nil, err
	}

	pageCount, err := model.ValidatePDF(data)
	if err != nil {
		return nil, types.NewValidationError(map[string]string{
			"file": fmt.Sprintf("not a valid PDF: %v", err),
		})
	}

	id := uuid.New()
	path := filepath.Join(p.cfg.UploadDir, id.String()+".pdf")
	if err := os.MkdirAll(p.cfg.UploadDir, 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	doc := types.Document{
		ID:               id,
		OriginalFilename: filename,
		StoragePath:      path,
		FileSize:         int64(len(data)),
		MimeType:         mimeType,
		PageCount:        pageCount,
		Status:           types.StatusUploaded,
		VectorNamespace:  types.NamespaceFor(id),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := p.store.SaveDocument(ctx, doc); err != nil {
		os.Remove(path)
		return nil, err
	}

	p.Enqueue(id)
	return &doc, nil
}

func (p *Pipeline) validate(filename, mimeType string, data []byte) error {
	errs := make(map[string]string)
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		errs["filename"] = "only PDF files are accepted"
	}
	if mimeType != "" && mimeType != "application/pdf" {
		errs["mime_type"] = fmt.Sprintf("unsupported type %q", mimeType)
	}
	if detected := http.DetectContentType(data); detected != "application/pdf" {
		errs["file"] = fmt.Sprintf("content is %s, expected application/pdf", detected)
	}
	if int64(len(data)) > p.cfg.MaxFileSize {
		errs["file_size"] = fmt.Sprintf("file of %d bytes exceeds the %d byte limit", len(data), p.cfg.MaxFileSize)
	}
	if len(errs) > 0 {
		return types.NewValidationError(errs)
	}
	return nil
}

// Enqueue schedules background processing for the document. Jobs for the
// same document are serialized by the pool.
func (p *Pipeline) Enqueue(docID uuid.UUID) {
	p.pool.Submit(docID.String(), func(ctx context.Context) {
		p.Process(ctx, docID)
	})
}

// Process advances the document until it reaches a terminal state, then
// runs best-effort metadata enrichment.
func (p *Pipeline) Process(ctx context.Context, docID uuid.UUID) {
	for {
		doc, err := p.Advance(ctx, docID)
		if err != nil {
			p.logger.Error("pipeline stage failed", "document", docID, "error", err)
			return
		}
		if doc.Status.Terminal() {
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// Advance runs exactly one stage of the state machine and returns the
// updated document. Calling it on a terminal document is a no-op.
func (p *Pipeline) Advance(ctx context.Context, docID uuid.UUID) (*types.Document, error) {
	doc, err := p.store.GetDocumentByID(ctx, docID)
	if err != nil {
		return nil, err
	}

	switch doc.Status {
	case types.StatusUploaded:
		return p.transition(ctx, doc, types.StatusParsing)
	case types.StatusParsing:
		return p.parse(ctx, doc)
	case types.StatusParsed:
		doc.EmbeddingCount = 0
		return p.transition(ctx, doc, types.StatusEmbedding)
	case types.StatusEmbedding:
		return p.embed(ctx, doc)
	default:
		return doc, nil
	}
}

func (p *Pipeline) transition(ctx context.Context, doc *types.Document, next types.DocumentStatus) (*types.Document, error) {
	if !doc.Status.CanTransition(next) {
		return nil, types.StateConflictError{
			Resource: "document",
			ID:       doc.ID.String(),
			State:    string(doc.Status),
			Op:       fmt.Sprintf("move to %s", next),
		}
	}
	doc.Status = next
	doc.UpdatedAt = time.Now().UTC()
	if err := p.store.SaveDocument(ctx, *doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (p *Pipeline) parse(ctx context.Context, doc *types.Document) (*types.Document, error) {
	chunks, result, err := p.parseChunks(ctx, doc)
	if err != nil {
		return p.fail(ctx, doc, types.ParseError{Err: err})
	}

	p.mu.Lock()
	p.parsed[doc.ID] = chunks
	p.mu.Unlock()

	doc.PageCount = result.PageCount
	doc.WordCount = result.WordCount
	doc.ChunkCount = len(chunks)
	return p.transition(ctx, doc, types.StatusParsed)
}

func (p *Pipeline) parseChunks(ctx context.Context, doc *types.Document) ([]types.Chunk, *model.ParseResult, error) {
	data, err := os.ReadFile(doc.StoragePath)
	if err != nil {
		return nil, nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	defer cancel()

	result, err := p.parser.Parse(callCtx, data, doc.OriginalFilename)
	if err != nil {
		return nil, nil, err
	}
	return p.chunker.Split(doc.ID, result.Pages), result, nil
}

func (p *Pipeline) embed(ctx context.Context, doc *types.Document) (*types.Document, error) {
	p.mu.Lock()
	chunks, ok := p.parsed[doc.ID]
	p.mu.Unlock()

	if !ok {
		// cache lost on restart, re-derive the chunks
		var err error
		chunks, _, err = p.parseChunks(ctx, doc)
		if err != nil {
			return p.fail(ctx, doc, types.ParseError{Err: err})
		}
	}

	err := p.indexer.Index(ctx, doc.VectorNamespace, chunks, func(indexed int) {
		doc.EmbeddingCount = indexed
		doc.UpdatedAt = time.Now().UTC()
		if err := p.store.SaveDocument(ctx, *doc); err != nil {
			p.logger.Warn("progress update failed", "document", doc.ID, "error", err)
		}
	})
	if err != nil {
		// partially written vectors would poison retrieval
		if derr := p.index.DeleteNamespace(ctx, doc.VectorNamespace); derr != nil {
			p.logger.Error("namespace cleanup failed", "namespace", doc.VectorNamespace, "error", derr)
		}
		doc.EmbeddingCount = 0
		return p.fail(ctx, doc, err)
	}

	p.mu.Lock()
	delete(p.parsed, doc.ID)
	p.mu.Unlock()

	doc.EmbeddingCount = len(chunks)
	doc, err = p.transition(ctx, doc, types.StatusEmbedded)
	if err != nil {
		return nil, err
	}

	if p.enricher != nil {
		p.enricher.Enrich(ctx, doc, chunks)
	}
	return doc, nil
}

func (p *Pipeline) fail(ctx context.Context, doc *types.Document, cause error) (*types.Document, error) {
	p.mu.Lock()
	delete(p.parsed, doc.ID)
	p.mu.Unlock()

	doc.ProcessingError = cause.Error()
	if _, err := p.transition(ctx, doc, types.StatusFailed); err != nil {
		return nil, err
	}
	return nil, cause
}

// Delete removes the document, its vectors and its stored file. The
// removal runs on the document's pool key so it queues behind any
// in-flight stage; a concurrent embed finishing later could otherwise
// re-upsert the wiped namespace and resurrect the document row.
func (p *Pipeline) Delete(ctx context.Context, docID uuid.UUID) error {
	if _, err := p.store.GetDocumentByID(ctx, docID); err != nil {
		return err
	}

	result := make(chan error, 1)
	queued := p.pool.Submit(docID.String(), func(jobCtx context.Context) {
		result <- p.remove(jobCtx, docID)
	})
	if !queued {
		// pool already shut down, nothing can race us
		return p.remove(ctx, docID)
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pipeline) remove(ctx context.Context, docID uuid.UUID) error {
	doc, err := p.store.GetDocumentByID(ctx, docID)
	if err != nil {
		return err
	}
	if err := p.index.DeleteNamespace(ctx, doc.VectorNamespace); err != nil {
		return err
	}
	if err := p.store.DeleteDocument(ctx, docID); err != nil {
		return err
	}
	if doc.StoragePath != "" {
		if err := os.Remove(doc.StoragePath); err != nil && !os.IsNotExist(err) {
			p.logger.Warn("stored file removal failed", "path", doc.StoragePath, "error", err)
		}
	}
	p.mu.Lock()
	delete(p.parsed, docID)
	p.mu.Unlock()
	return nil
}
