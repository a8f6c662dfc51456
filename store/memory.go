package store

import (
	"context"
	"math"
	"sort"
	"sync"

	"docufi/types"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Storer and VectorIndexer used by tests and
// the no-database dev mode.
type MemoryStore struct {
	mu       sync.RWMutex
	docs     map[uuid.UUID]types.Document
	tasks    map[uuid.UUID]types.ResearchTask
	sessions map[uuid.UUID]types.ChatSession
	messages map[uuid.UUID][]types.ChatMessage
	vectors  map[string]memoryVector
	seq      int64
}

type memoryVector struct {
	namespace string
	item      VectorItem
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:     make(map[uuid.UUID]types.Document),
		tasks:    make(map[uuid.UUID]types.ResearchTask),
		sessions: make(map[uuid.UUID]types.ChatSession),
		messages: make(map[uuid.UUID][]types.ChatMessage),
		vectors:  make(map[string]memoryVector),
	}
}

func (m *MemoryStore) SaveDocument(_ context.Context, doc types.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.ID] = doc
	return nil
}

func (m *MemoryStore) GetDocumentByID(_ context.Context, id uuid.UUID) (*types.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, types.NotFoundError{Resource: "document", ID: id.String()}
	}
	return &doc, nil
}

func (m *MemoryStore) ListDocuments(_ context.Context) ([]types.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs := make([]types.Document, 0, len(m.docs))
	for _, doc := range m.docs {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})
	return docs, nil
}

func (m *MemoryStore) DeleteDocument(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return types.NotFoundError{Resource: "document", ID: id.String()}
	}
	delete(m.docs, id)
	return nil
}

func (m *MemoryStore) SaveTask(_ context.Context, task types.ResearchTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[task.ID] = task
	return nil
}

func (m *MemoryStore) GetTaskByID(_ context.Context, id uuid.UUID) (*types.ResearchTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	task, ok := m.tasks[id]
	if !ok {
		return nil, types.NotFoundError{Resource: "research task", ID: id.String()}
	}
	return &task, nil
}

func (m *MemoryStore) ListTasks(_ context.Context, status types.TaskStatus) ([]types.ResearchTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var tasks []types.ResearchTask
	for _, task := range m.tasks {
		if status != "" && task.Status != status {
			continue
		}
		tasks = append(tasks, task)
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
	return tasks, nil
}

func (m *MemoryStore) SaveSession(_ context.Context, s types.ChatSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.sessions[s.ID]; ok {
		s.MessageCount = prev.MessageCount
		s.LastActivity = prev.LastActivity
	}
	m.sessions[s.ID] = s
	return nil
}

func (m *MemoryStore) GetSessionByID(_ context.Context, id uuid.UUID) (*types.ChatSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, types.NotFoundError{Resource: "chat session", ID: id.String()}
	}
	return &s, nil
}

func (m *MemoryStore) ListSessions(_ context.Context, documentID uuid.NullUUID) ([]types.ChatSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sessions := make([]types.ChatSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		if documentID.Valid && s.DocumentID != documentID {
			continue
		}
		sessions = append(sessions, s)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].LastActivity.After(sessions[j].LastActivity)
	})
	return sessions, nil
}

func (m *MemoryStore) AppendMessage(_ context.Context, msg types.ChatMessage) (*types.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[msg.SessionID]
	if !ok {
		return nil, types.NotFoundError{Resource: "chat session", ID: msg.SessionID.String()}
	}

	m.seq++
	msg.Seq = m.seq
	m.messages[msg.SessionID] = append(m.messages[msg.SessionID], msg)

	s.MessageCount++
	s.LastActivity = msg.CreatedAt
	m.sessions[msg.SessionID] = s
	return &msg, nil
}

func (m *MemoryStore) SessionHistory(_ context.Context, sessionID uuid.UUID, limit int) ([]types.ChatMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.messages[sessionID]

	msgs := make([]types.ChatMessage, len(all))
	copy(msgs, all)
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].Seq < msgs[j].Seq
		}
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (m *MemoryStore) UpsertVectors(_ context.Context, namespace string, items []VectorItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range items {
		m.vectors[item.ID] = memoryVector{namespace: namespace, item: item}
	}
	return nil
}

func (m *MemoryStore) QueryVectors(_ context.Context, namespace string, embedding []float32, topK int) ([]VectorMatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var matches []VectorMatch
	for _, v := range m.vectors {
		if namespace != "" && v.namespace != namespace {
			continue
		}
		matches = append(matches, VectorMatch{
			ID:      v.item.ID,
			Score:   cosineSimilarity(embedding, v.item.Embedding),
			Page:    v.item.Page,
			Content: v.item.Content,
		})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score == matches[j].Score {
			return matches[i].ID < matches[j].ID
		}
		return matches[i].Score > matches[j].Score
	})
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (m *MemoryStore) DeleteNamespace(_ context.Context, namespace string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, v := range m.vectors {
		if v.namespace == namespace {
			delete(m.vectors, id)
		}
	}
	return nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
