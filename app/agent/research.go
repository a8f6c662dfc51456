package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"docufi/model"
	"docufi/search"
	"docufi/store"
	"docufi/types"
	"docufi/worker"

	"github.com/google/uuid"
)

// Orchestrator runs the deep research workflow: topic analysis, question
// generation, evidence retrieval, outline construction and per-section
// content, each stage feeding the next. Tasks run in the background;
// Start returns as soon as the task is recorded.
type Orchestrator struct {
	logger    *slog.Logger
	cfg       types.Config
	docs      store.DocumentStorer
	tasks     store.TaskStorer
	retriever *search.Retriever
	llm       model.Completer
	pool      *worker.Pool
}

func NewOrchestrator(
	cfg types.Config,
	docs store.DocumentStorer,
	tasks store.TaskStorer,
	retriever *search.Retriever,
	llm model.Completer,
	pool *worker.Pool,
) *Orchestrator {
	return &Orchestrator{
		logger:    slog.Default(),
		cfg:       cfg,
		docs:      docs,
		tasks:     tasks,
		retriever: retriever,
		llm:       llm,
		pool:      pool,
	}
}

// Start validates the request, records a pending task and queues the
// research run. The document must be fully embedded.
func (o *Orchestrator) Start(ctx context.Context, docID uuid.UUID, params types.ResearchParams) (*types.ResearchTask, error) {
	doc, err := o.docs.GetDocumentByID(ctx, docID)
	if err != nil {
		return nil, err
	}
	if !doc.Status.Embedded() {
		return nil, types.StateConflictError{
			Resource: "document",
			ID:       docID.String(),
			State:    string(doc.Status),
			Op:       "start research",
		}
	}

	task := types.ResearchTask{
		ID:          uuid.New(),
		DocumentID:  docID,
		Topic:       params.Topic,
		CustomQuery: params.CustomQuery,
		Status:      types.TaskPending,
		CreatedAt:   time.Now().UTC(),
	}
	if err := o.tasks.SaveTask(ctx, task); err != nil {
		return nil, err
	}

	o.pool.Submit(task.ID.String(), func(ctx context.Context) {
		o.run(ctx, task.ID)
	})
	return &task, nil
}

func (o *Orchestrator) run(ctx context.Context, taskID uuid.UUID) {
	task, err := o.tasks.GetTaskByID(ctx, taskID)
	if err != nil {
		o.logger.Error("research task lookup failed", "task", taskID, "error", err)
		return
	}
	doc, err := o.docs.GetDocumentByID(ctx, task.DocumentID)
	if err != nil {
		o.fail(ctx, task, time.Now(), err)
		return
	}

	start := time.Now()
	task.Status = types.TaskInProgress
	if err := o.tasks.SaveTask(ctx, *task); err != nil {
		o.logger.Error("research task update failed", "task", taskID, "error", err)
		return
	}

	outline, findings, sources, err := o.research(ctx, task, doc)
	if err != nil {
		o.fail(ctx, task, start, err)
		return
	}

	now := time.Now().UTC()
	task.Status = types.TaskCompleted
	task.ContentOutline = outline
	task.ResearchFindings = findings
	task.SourcesUsed = sources
	task.ProcessingTime = time.Since(start).Seconds()
	task.CompletedAt = &now
	if err := o.tasks.SaveTask(ctx, *task); err != nil {
		o.logger.Error("research task save failed", "task", taskID, "error", err)
	}
	o.logger.Info("research completed", "task", taskID, "sections", len(outline), "duration", task.ProcessingTime)
}

// fail marks the task failed and discards any partial stage output.
func (o *Orchestrator) fail(ctx context.Context, task *types.ResearchTask, start time.Time, cause error) {
	o.logger.Error("research failed", "task", task.ID, "error", cause)
	now := time.Now().UTC()
	task.Status = types.TaskFailed
	task.ContentOutline = nil
	task.ResearchFindings = nil
	task.SourcesUsed = nil
	task.ErrorMessage = cause.Error()
	task.ProcessingTime = time.Since(start).Seconds()
	task.CompletedAt = &now
	if err := o.tasks.SaveTask(ctx, *task); err != nil {
		o.logger.Error("research task save failed", "task", task.ID, "error", err)
	}
}

type topicAnalysis struct {
	TopicAnalysis     string   `json:"topic_analysis"`
	KeyAreasToExplore []string `json:"key_areas_to_explore"`
	ResearchApproach  string   `json:"research_approach"`
}

type sectionDraft struct {
	Content       string   `json:"content"`
	KeyPoints     []string `json:"key_points"`
	CitedChunkIDs []string `json:"cited_chunk_ids"`
}

func (o *Orchestrator) research(ctx context.Context, task *types.ResearchTask, doc *types.Document) (types.Outline, map[string]types.Finding, []types.SourceRef, error) {
	query := task.CustomQuery
	if query == "" {
		query = task.Topic
	}

	// stage 1: topic analysis
	var analysis topicAnalysis
	err := completeJSON(ctx, o.llm,
		fmt.Sprintf(topicAnalysisPrompt, doc.OriginalFilename, doc.PageCount, doc.WordCount),
		fmt.Sprintf(topicAnalysisUserPrompt, task.Topic, query),
		&analysis,
	)
	if err != nil {
		return nil, nil, nil, err
	}

	// stage 2: research questions
	var questions []string
	err = completeJSON(ctx, o.llm,
		researchQuestionsPrompt,
		fmt.Sprintf(researchQuestionsUserPrompt, task.Topic, query, analysis.TopicAnalysis),
		&questions,
	)
	if err != nil {
		return nil, nil, nil, err
	}
	if len(questions) == 0 {
		questions = []string{query}
	}

	// stage 3: evidence retrieval
	evidence, err := o.retrieve(ctx, doc.ID, append([]string{query}, questions...))
	if err != nil {
		return nil, nil, nil, err
	}
	if len(evidence) == 0 {
		return nil, nil, nil, fmt.Errorf("no relevant document content found for topic %q", task.Topic)
	}

	// stage 4: content outline
	var outline types.Outline
	err = completeJSON(ctx, o.llm,
		contentOutlinePrompt,
		fmt.Sprintf(contentOutlineUserPrompt, task.Topic, bulletList(questions), evidenceBlocks(evidence)),
		&outline,
	)
	if err != nil {
		return nil, nil, nil, err
	}
	if len(outline) == 0 {
		return nil, nil, nil, types.GenerationError{Err: fmt.Errorf("model returned an empty outline")}
	}

	// stage 5: per-section content
	findings := make(map[string]types.Finding, len(outline))
	cited := make(map[string]bool)
	for _, section := range outline {
		var draft sectionDraft
		err = completeJSON(ctx, o.llm,
			sectionContentPrompt,
			fmt.Sprintf(sectionContentUserPrompt, section.Title, section.Description, evidenceBlocks(evidence)),
			&draft,
		)
		if err != nil {
			return nil, nil, nil, err
		}
		findings[section.Key] = types.Finding{
			Content:   draft.Content,
			KeyPoints: draft.KeyPoints,
		}
		for _, id := range draft.CitedChunkIDs {
			cited[id] = true
		}
	}

	var sources []types.SourceRef
	for _, r := range evidence {
		if !cited[r.ChunkID] {
			continue
		}
		sources = append(sources, types.SourceRef{
			ChunkID:        r.ChunkID,
			Page:           r.Page,
			ContentPreview: r.Preview(),
			RelevanceScore: r.RelevanceScore,
		})
	}
	if len(sources) == 0 {
		// model cited nothing recognizable, fall back to the evidence set
		for _, r := range evidence {
			sources = append(sources, types.SourceRef{
				ChunkID:        r.ChunkID,
				Page:           r.Page,
				ContentPreview: r.Preview(),
				RelevanceScore: r.RelevanceScore,
			})
		}
	}
	return outline, findings, sources, nil
}

// retrieve runs every question against the document scope and merges the
// results, deduplicating by chunk id and keeping the best score. Hits
// below the relevance floor are dropped.
func (o *Orchestrator) retrieve(ctx context.Context, docID uuid.UUID, questions []string) ([]types.SearchResult, error) {
	scope := uuid.NullUUID{UUID: docID, Valid: true}
	best := make(map[string]types.SearchResult)
	var order []string

	for _, q := range questions {
		results, err := o.retriever.Search(ctx, q, scope, o.cfg.TopK)
		if err != nil {
			return nil, err
		}
		for _, r := range results {
			if r.RelevanceScore < o.cfg.MinRelevance {
				continue
			}
			prev, seen := best[r.ChunkID]
			if !seen {
				order = append(order, r.ChunkID)
			}
			if !seen || r.RelevanceScore > prev.RelevanceScore {
				best[r.ChunkID] = r
			}
		}
	}

	merged := make([]types.SearchResult, 0, len(order))
	for _, id := range order {
		merged = append(merged, best[id])
	}
	return merged, nil
}

func bulletList(items []string) string {
	var b strings.Builder
	for _, item := range items {
		b.WriteString("- ")
		b.WriteString(item)
		b.WriteByte('\n')
	}
	return b.String()
}

func evidenceBlocks(evidence []types.SearchResult) string {
	var b strings.Builder
	for _, r := range evidence {
		fmt.Fprintf(&b, "[%s] (page %d)\n%s\n\n", r.ChunkID, r.Page, r.Content)
	}
	return b.String()
}
