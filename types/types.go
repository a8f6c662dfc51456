package types

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NamespaceFor derives the per-document vector namespace from the
// document id. Hyphens are replaced so the namespace stays a single
// identifier-safe token.
func NamespaceFor(id uuid.UUID) string {
	return "doc_" + strings.ReplaceAll(id.String(), "-", "_")
}

type DocumentStatus string

const (
	StatusUploaded  DocumentStatus = "uploaded"
	StatusParsing   DocumentStatus = "parsing"
	StatusParsed    DocumentStatus = "parsed"
	StatusEmbedding DocumentStatus = "embedding"
	StatusEmbedded  DocumentStatus = "embedded"
	StatusFailed    DocumentStatus = "failed"
)

// statusRank orders the pipeline stages. failed is terminal and reachable
// only from parsing or embedding.
var statusRank = map[DocumentStatus]int{
	StatusUploaded:  0,
	StatusParsing:   1,
	StatusParsed:    2,
	StatusEmbedding: 3,
	StatusEmbedded:  4,
}

// CanTransition reports whether moving from s to next is a legal forward
// step of the ingestion state machine.
func (s DocumentStatus) CanTransition(next DocumentStatus) bool {
	if next == StatusFailed {
		return s == StatusParsing || s == StatusEmbedding
	}
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	if !ok {
		return false
	}
	return to == from+1
}

func (s DocumentStatus) Terminal() bool {
	return s == StatusEmbedded || s == StatusFailed
}

// Processed is true once the document text has been extracted.
func (s DocumentStatus) Processed() bool {
	r, ok := statusRank[s]
	return ok && r >= statusRank[StatusParsed]
}

func (s DocumentStatus) Embedded() bool {
	return s == StatusEmbedded
}

// JSONMap carries free-form collaborator output. The shape varies per
// document and is never validated here.
type JSONMap map[string]any

type Document struct {
	ID               uuid.UUID      `json:"id"`
	OriginalFilename string         `json:"original_filename"`
	StoragePath      string         `json:"-"`
	FileSize         int64          `json:"file_size"`
	MimeType         string         `json:"mime_type"`
	PageCount        int            `json:"page_count"`
	WordCount        int            `json:"word_count"`
	Status           DocumentStatus `json:"status"`
	ProcessingError  string         `json:"processing_error,omitempty"`
	VectorNamespace  string         `json:"vector_namespace,omitempty"`
	ChunkCount       int            `json:"chunk_count"`
	EmbeddingCount   int            `json:"embedding_count"`
	FinancialFacts   JSONMap        `json:"financial_facts,omitempty"`
	InvestmentData   JSONMap        `json:"investment_data,omitempty"`
	KeyMetrics       JSONMap        `json:"key_metrics,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// Progress derives the pipeline progress percentage from the current
// status. During embedding it is proportional to the chunks indexed so
// far, never dropping below the 40% reached at parsed.
func (d *Document) Progress() int {
	switch d.Status {
	case StatusUploaded:
		return 0
	case StatusParsing:
		return 10
	case StatusParsed:
		return 40
	case StatusEmbedding:
		if d.ChunkCount <= 0 {
			return 40
		}
		p := 40 + 50*d.EmbeddingCount/d.ChunkCount
		if p > 90 {
			p = 90
		}
		return p
	case StatusEmbedded:
		return 100
	default:
		return 0
	}
}

// Chunk is a page-anchored span of document text prepared for embedding.
// Chunks only live between the chunker and the embedding indexer.
type Chunk struct {
	DocID    uuid.UUID
	Index    int // document-wide ordinal
	Page     int
	Ordinal  int // ordinal within the page
	Table    bool
	Content  string
	VectorID string // set after indexing
}

type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

type OutlineSection struct {
	Key         string `json:"-"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Finding is the generated content for one outline section.
type Finding struct {
	Content   string   `json:"content"`
	KeyPoints []string `json:"key_points"`
}

// SourceRef cites one chunk used as research evidence.
type SourceRef struct {
	ChunkID        string  `json:"chunk_id"`
	Page           int     `json:"page"`
	ContentPreview string  `json:"content_preview"`
	RelevanceScore float64 `json:"relevance_score"`
}

type ResearchTask struct {
	ID               uuid.UUID          `json:"id"`
	DocumentID       uuid.UUID          `json:"document_id"`
	Topic            string             `json:"topic"`
	CustomQuery      string             `json:"custom_query,omitempty"`
	Status           TaskStatus         `json:"status"`
	ContentOutline   Outline            `json:"content_outline,omitempty"`
	ResearchFindings map[string]Finding `json:"research_findings,omitempty"`
	SourcesUsed      []SourceRef        `json:"sources_used,omitempty"`
	ErrorMessage     string             `json:"error_message,omitempty"`
	ProcessingTime   float64            `json:"processing_time"`
	CreatedAt        time.Time          `json:"created_at"`
	CompletedAt      *time.Time         `json:"completed_at,omitempty"`
}

type ChatSession struct {
	ID           uuid.UUID     `json:"id"`
	DocumentID   uuid.NullUUID `json:"document_id"`
	SessionName  string        `json:"session_name"`
	IsActive     bool          `json:"is_active"`
	Temperature  float32       `json:"temperature"`
	MaxTokens    int           `json:"max_tokens"`
	SystemPrompt string        `json:"system_prompt,omitempty"`
	MessageCount int           `json:"message_count"`
	CreatedAt    time.Time     `json:"created_at"`
	LastActivity time.Time     `json:"last_activity"`
}

type ChatRole string

const (
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
	RoleSystem    ChatRole = "system"
)

// MessageSource cites one retrieved chunk on an assistant message.
type MessageSource struct {
	ChunkID         string  `json:"chunk_id"`
	PageNumber      int     `json:"page_number"`
	SimilarityScore float64 `json:"similarity_score"`
	Preview         string  `json:"preview"`
}

type ChatMessage struct {
	ID          uuid.UUID       `json:"id"`
	SessionID   uuid.UUID       `json:"session_id"`
	Role        ChatRole        `json:"role"`
	Content     string          `json:"content"`
	TokenCount  int             `json:"token_count,omitempty"`
	SourcesUsed []MessageSource `json:"sources_used,omitempty"`
	ToolCalls   []string        `json:"tool_calls,omitempty"`
	Seq         int64           `json:"-"` // insertion order, tie-break for equal timestamps
	CreatedAt   time.Time       `json:"created_at"`
}

// SearchResult is one ranked chunk returned by the retriever.
type SearchResult struct {
	ChunkID        string    `json:"chunk_id"`
	DocumentID     uuid.UUID `json:"document_id"`
	Page           int       `json:"page"`
	Content        string    `json:"-"`
	RelevanceScore float64   `json:"relevance_score"`
}

const previewLen = 200

// Preview returns the leading slice of the chunk content used for
// citations.
func (r SearchResult) Preview() string {
	if len(r.Content) <= previewLen {
		return r.Content
	}
	return r.Content[:previewLen] + "..."
}
