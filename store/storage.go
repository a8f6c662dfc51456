package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"docufi/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DocumentStorer interface {
	SaveDocument(context.Context, types.Document) error
	GetDocumentByID(context.Context, uuid.UUID) (*types.Document, error)
	ListDocuments(context.Context) ([]types.Document, error)
	DeleteDocument(context.Context, uuid.UUID) error
}

type TaskStorer interface {
	SaveTask(context.Context, types.ResearchTask) error
	GetTaskByID(context.Context, uuid.UUID) (*types.ResearchTask, error)
	ListTasks(context.Context, types.TaskStatus) ([]types.ResearchTask, error)
}

type SessionStorer interface {
	SaveSession(context.Context, types.ChatSession) error
	GetSessionByID(context.Context, uuid.UUID) (*types.ChatSession, error)
	ListSessions(ctx context.Context, documentID uuid.NullUUID) ([]types.ChatSession, error)
	AppendMessage(context.Context, types.ChatMessage) (*types.ChatMessage, error)
	SessionHistory(context.Context, uuid.UUID, int) ([]types.ChatMessage, error)
}

// Storer is the full persistence surface of the application.
type Storer interface {
	DocumentStorer
	TaskStorer
	SessionStorer
}

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{
		pool: pool,
	}, nil
}

func (p *PostgresStore) SaveDocument(ctx context.Context, doc types.Document) error {
	facts, investment, metrics, err := marshalDocMeta(doc)
	if err != nil {
		return err
	}

	query := `INSERT INTO documents
			(id, original_filename, storage_path, file_size, mime_type, page_count, word_count,
			 status, processing_error, vector_namespace, chunk_count, embedding_count,
			 financial_facts, investment_data, key_metrics, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO UPDATE SET
			page_count = EXCLUDED.page_count,
			word_count = EXCLUDED.word_count,
			status = EXCLUDED.status,
			processing_error = EXCLUDED.processing_error,
			vector_namespace = EXCLUDED.vector_namespace,
			chunk_count = EXCLUDED.chunk_count,
			embedding_count = EXCLUDED.embedding_count,
			financial_facts = EXCLUDED.financial_facts,
			investment_data = EXCLUDED.investment_data,
			key_metrics = EXCLUDED.key_metrics,
			updated_at = EXCLUDED.updated_at
			`
	_, err = p.pool.Exec(
		ctx,
		query,
		doc.ID,
		doc.OriginalFilename,
		doc.StoragePath,
		doc.FileSize,
		doc.MimeType,
		doc.PageCount,
		doc.WordCount,
		doc.Status,
		doc.ProcessingError,
		doc.VectorNamespace,
		doc.ChunkCount,
		doc.EmbeddingCount,
		facts,
		investment,
		metrics,
		doc.CreatedAt,
		doc.UpdatedAt,
	)

	return err
}

func (p *PostgresStore) GetDocumentByID(ctx context.Context, docID uuid.UUID) (*types.Document, error) {
	row := p.pool.QueryRow(ctx, `SELECT id, original_filename, storage_path, file_size, mime_type,
			page_count, word_count, status, processing_error, vector_namespace, chunk_count,
			embedding_count, financial_facts, investment_data, key_metrics, created_at, updated_at
		FROM documents WHERE id = $1`, docID)

	doc, err := scanDocument(row)
	if err == pgx.ErrNoRows {
		return nil, types.NotFoundError{Resource: "document", ID: docID.String()}
	}
	return doc, err
}

func (p *PostgresStore) ListDocuments(ctx context.Context) ([]types.Document, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, original_filename, storage_path, file_size, mime_type,
			page_count, word_count, status, processing_error, vector_namespace, chunk_count,
			embedding_count, financial_facts, investment_data, key_metrics, created_at, updated_at
		FROM documents ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []types.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

func (p *PostgresStore) DeleteDocument(ctx context.Context, docID uuid.UUID) error {
	tag, err := p.pool.Exec(ctx, "DELETE FROM documents WHERE id = $1", docID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return types.NotFoundError{Resource: "document", ID: docID.String()}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*types.Document, error) {
	doc := &types.Document{}
	var facts, investment, metrics []byte
	if err := row.Scan(
		&doc.ID,
		&doc.OriginalFilename,
		&doc.StoragePath,
		&doc.FileSize,
		&doc.MimeType,
		&doc.PageCount,
		&doc.WordCount,
		&doc.Status,
		&doc.ProcessingError,
		&doc.VectorNamespace,
		&doc.ChunkCount,
		&doc.EmbeddingCount,
		&facts,
		&investment,
		&metrics,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := unmarshalJSONMap(facts, &doc.FinancialFacts); err != nil {
		return nil, err
	}
	if err := unmarshalJSONMap(investment, &doc.InvestmentData); err != nil {
		return nil, err
	}
	if err := unmarshalJSONMap(metrics, &doc.KeyMetrics); err != nil {
		return nil, err
	}
	return doc, nil
}

func marshalDocMeta(doc types.Document) (facts, investment, metrics []byte, err error) {
	if facts, err = marshalJSONMap(doc.FinancialFacts); err != nil {
		return
	}
	if investment, err = marshalJSONMap(doc.InvestmentData); err != nil {
		return
	}
	metrics, err = marshalJSONMap(doc.KeyMetrics)
	return
}

func marshalJSONMap(m types.JSONMap) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func unmarshalJSONMap(data []byte, dst *types.JSONMap) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dst)
}

func (p *PostgresStore) SaveTask(ctx context.Context, task types.ResearchTask) error {
	outline, findings, sources, err := marshalTaskResults(task)
	if err != nil {
		return err
	}

	query := `INSERT INTO research_tasks
			(id, document_id, topic, custom_query, status, content_outline, research_findings,
			 sources_used, error_message, processing_time, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			content_outline = EXCLUDED.content_outline,
			research_findings = EXCLUDED.research_findings,
			sources_used = EXCLUDED.sources_used,
			error_message = EXCLUDED.error_message,
			processing_time = EXCLUDED.processing_time,
			completed_at = EXCLUDED.completed_at
			`
	_, err = p.pool.Exec(
		ctx,
		query,
		task.ID,
		task.DocumentID,
		task.Topic,
		task.CustomQuery,
		task.Status,
		outline,
		findings,
		sources,
		task.ErrorMessage,
		task.ProcessingTime,
		task.CreatedAt,
		task.CompletedAt,
	)
	return err
}

func (p *PostgresStore) GetTaskByID(ctx context.Context, taskID uuid.UUID) (*types.ResearchTask, error) {
	row := p.pool.QueryRow(ctx, `SELECT id, document_id, topic, custom_query, status, content_outline,
			research_findings, sources_used, error_message, processing_time, created_at, completed_at
		FROM research_tasks WHERE id = $1`, taskID)

	task, err := scanTask(row)
	if err == pgx.ErrNoRows {
		return nil, types.NotFoundError{Resource: "research task", ID: taskID.String()}
	}
	return task, err
}

func (p *PostgresStore) ListTasks(ctx context.Context, status types.TaskStatus) ([]types.ResearchTask, error) {
	query := `SELECT id, document_id, topic, custom_query, status, content_outline,
			research_findings, sources_used, error_message, processing_time, created_at, completed_at
		FROM research_tasks`
	args := []any{}
	if status != "" {
		query += " WHERE status = $1"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC"

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []types.ResearchTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

func scanTask(row rowScanner) (*types.ResearchTask, error) {
	task := &types.ResearchTask{}
	var outline, findings, sources []byte
	if err := row.Scan(
		&task.ID,
		&task.DocumentID,
		&task.Topic,
		&task.CustomQuery,
		&task.Status,
		&outline,
		&findings,
		&sources,
		&task.ErrorMessage,
		&task.ProcessingTime,
		&task.CreatedAt,
		&task.CompletedAt,
	); err != nil {
		return nil, err
	}
	if len(outline) > 0 {
		if err := json.Unmarshal(outline, &task.ContentOutline); err != nil {
			return nil, err
		}
	}
	if len(findings) > 0 {
		if err := json.Unmarshal(findings, &task.ResearchFindings); err != nil {
			return nil, err
		}
	}
	if len(sources) > 0 {
		if err := json.Unmarshal(sources, &task.SourcesUsed); err != nil {
			return nil, err
		}
	}
	return task, nil
}

func marshalTaskResults(task types.ResearchTask) (outline, findings, sources []byte, err error) {
	if len(task.ContentOutline) > 0 {
		if outline, err = json.Marshal(task.ContentOutline); err != nil {
			return
		}
	}
	if task.ResearchFindings != nil {
		if findings, err = json.Marshal(task.ResearchFindings); err != nil {
			return
		}
	}
	if task.SourcesUsed != nil {
		sources, err = json.Marshal(task.SourcesUsed)
	}
	return
}

func (p *PostgresStore) SaveSession(ctx context.Context, s types.ChatSession) error {
	query := `INSERT INTO chat_sessions
			(id, document_id, session_name, is_active, temperature, max_tokens, system_prompt,
			 message_count, created_at, last_activity)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			session_name = EXCLUDED.session_name,
			is_active = EXCLUDED.is_active,
			temperature = EXCLUDED.temperature,
			max_tokens = EXCLUDED.max_tokens,
			system_prompt = EXCLUDED.system_prompt
			`
	_, err := p.pool.Exec(
		ctx,
		query,
		s.ID,
		s.DocumentID,
		s.SessionName,
		s.IsActive,
		s.Temperature,
		s.MaxTokens,
		s.SystemPrompt,
		s.MessageCount,
		s.CreatedAt,
		s.LastActivity,
	)
	return err
}

func (p *PostgresStore) GetSessionByID(ctx context.Context, sessionID uuid.UUID) (*types.ChatSession, error) {
	row := p.pool.QueryRow(ctx, `SELECT id, document_id, session_name, is_active, temperature,
			max_tokens, system_prompt, message_count, created_at, last_activity
		FROM chat_sessions WHERE id = $1`, sessionID)

	s, err := scanSession(row)
	if err == pgx.ErrNoRows {
		return nil, types.NotFoundError{Resource: "chat session", ID: sessionID.String()}
	}
	return s, err
}

// ListSessions returns sessions ordered by recency, optionally limited
// to one document.
func (p *PostgresStore) ListSessions(ctx context.Context, documentID uuid.NullUUID) ([]types.ChatSession, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, document_id, session_name, is_active, temperature,
			max_tokens, system_prompt, message_count, created_at, last_activity
		FROM chat_sessions
		WHERE $1::uuid IS NULL OR document_id = $1
		ORDER BY last_activity DESC`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []types.ChatSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

func scanSession(row rowScanner) (*types.ChatSession, error) {
	s := &types.ChatSession{}
	if err := row.Scan(
		&s.ID,
		&s.DocumentID,
		&s.SessionName,
		&s.IsActive,
		&s.Temperature,
		&s.MaxTokens,
		&s.SystemPrompt,
		&s.MessageCount,
		&s.CreatedAt,
		&s.LastActivity,
	); err != nil {
		return nil, err
	}
	return s, nil
}

// AppendMessage inserts the message and bumps the session counters in one
// transaction, so message_count and last_activity never drift from the
// message log.
func (p *PostgresStore) AppendMessage(ctx context.Context, msg types.ChatMessage) (*types.ChatMessage, error) {
	sources, toolCalls, err := marshalMessageMeta(msg)
	if err != nil {
		return nil, err
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `INSERT INTO chat_messages
			(id, session_id, role, content, token_count, sources_used, tool_calls, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING seq`,
		msg.ID, msg.SessionID, msg.Role, msg.Content, msg.TokenCount, sources, toolCalls, msg.CreatedAt,
	)
	if err := row.Scan(&msg.Seq); err != nil {
		return nil, err
	}

	tag, err := tx.Exec(ctx, `UPDATE chat_sessions
		SET message_count = message_count + 1, last_activity = $2
		WHERE id = $1`, msg.SessionID, msg.CreatedAt)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, types.NotFoundError{Resource: "chat session", ID: msg.SessionID.String()}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &msg, nil
}

// SessionHistory returns the oldest-first message log, optionally capped
// to the most recent limit messages.
func (p *PostgresStore) SessionHistory(ctx context.Context, sessionID uuid.UUID, limit int) ([]types.ChatMessage, error) {
	query := `SELECT id, session_id, role, content, token_count, sources_used, tool_calls, seq, created_at
		FROM chat_messages WHERE session_id = $1
		ORDER BY created_at DESC, seq DESC`
	args := []any{sessionID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []types.ChatMessage
	for rows.Next() {
		var msg types.ChatMessage
		var sources, toolCalls []byte
		if err := rows.Scan(
			&msg.ID,
			&msg.SessionID,
			&msg.Role,
			&msg.Content,
			&msg.TokenCount,
			&sources,
			&toolCalls,
			&msg.Seq,
			&msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		if len(sources) > 0 {
			if err := json.Unmarshal(sources, &msg.SourcesUsed); err != nil {
				return nil, err
			}
		}
		if len(toolCalls) > 0 {
			if err := json.Unmarshal(toolCalls, &msg.ToolCalls); err != nil {
				return nil, err
			}
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// reverse into chronological order
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func marshalMessageMeta(msg types.ChatMessage) (sources, toolCalls []byte, err error) {
	if msg.SourcesUsed != nil {
		if sources, err = json.Marshal(msg.SourcesUsed); err != nil {
			return
		}
	}
	if msg.ToolCalls != nil {
		toolCalls, err = json.Marshal(msg.ToolCalls)
	}
	return
}

func (p *PostgresStore) createTables(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS documents (
		id UUID PRIMARY KEY,
		original_filename TEXT NOT NULL,
		storage_path TEXT,
		file_size BIGINT NOT NULL DEFAULT 0,
		mime_type TEXT,
		page_count INT NOT NULL DEFAULT 0,
		word_count INT NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		processing_error TEXT,
		vector_namespace TEXT,
		chunk_count INT NOT NULL DEFAULT 0,
		embedding_count INT NOT NULL DEFAULT 0,
		financial_facts JSONB,
		investment_data JSONB,
		key_metrics JSONB,
		created_at TIMESTAMP WITH TIME ZONE,
		updated_at TIMESTAMP WITH TIME ZONE
	);

	CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);

	CREATE TABLE IF NOT EXISTS research_tasks (
		id UUID PRIMARY KEY,
		document_id UUID NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		topic TEXT NOT NULL,
		custom_query TEXT,
		status TEXT NOT NULL,
		content_outline JSONB,
		research_findings JSONB,
		sources_used JSONB,
		error_message TEXT,
		processing_time DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at TIMESTAMP WITH TIME ZONE,
		completed_at TIMESTAMP WITH TIME ZONE
	);

	CREATE INDEX IF NOT EXISTS idx_research_tasks_status ON research_tasks(status);
	CREATE INDEX IF NOT EXISTS idx_research_tasks_document_id ON research_tasks(document_id);

	CREATE TABLE IF NOT EXISTS chat_sessions (
		id UUID PRIMARY KEY,
		document_id UUID REFERENCES documents(id) ON DELETE SET NULL,
		session_name TEXT,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		temperature REAL NOT NULL DEFAULT 0.7,
		max_tokens INT NOT NULL DEFAULT 1000,
		system_prompt TEXT,
		message_count INT NOT NULL DEFAULT 0,
		created_at TIMESTAMP WITH TIME ZONE,
		last_activity TIMESTAMP WITH TIME ZONE
	);

	CREATE TABLE IF NOT EXISTS chat_messages (
		id UUID PRIMARY KEY,
		session_id UUID NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		token_count INT NOT NULL DEFAULT 0,
		sources_used JSONB,
		tool_calls JSONB,
		seq BIGSERIAL,
		created_at TIMESTAMP WITH TIME ZONE
	);

	CREATE INDEX IF NOT EXISTS idx_chat_messages_session_id ON chat_messages(session_id, created_at, seq);
	`
	_, err := p.pool.Exec(ctx, query)
	if err != nil {
		return fmt.Errorf("error creating tables: %w", err)
	}
	return nil
}

func (p *PostgresStore) Init(ctx context.Context) error {
	if err := p.createTables(ctx); err != nil {
		return err
	}
	return p.createVectorTables(ctx)
}

func (p *PostgresStore) Close() error {
	if p.pool != nil {
		p.pool.Close()
		log.Println("Postgres connection pool is closed")
	}
	return nil
}
