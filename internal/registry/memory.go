package registry

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store. It provides no durability and exists
// for tests and ephemeral deployments.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]SessionRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]SessionRecord),
	}
}

// Get returns the record for a conversation, or ErrNotFound.
func (m *MemoryStore) Get(_ context.Context, conversationID string) (*SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[conversationID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := record
	return &copied, nil
}

// Put inserts or replaces a record.
func (m *MemoryStore) Put(_ context.Context, record *SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[record.ConversationID] = *record
	return nil
}

// Touch updates the record's last-activity timestamp.
func (m *MemoryStore) Touch(_ context.Context, conversationID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[conversationID]
	if !ok {
		return ErrNotFound
	}
	record.LastActivityAt = at
	m.records[conversationID] = record
	return nil
}

// SetResumeToken updates the record's resume token.
func (m *MemoryStore) SetResumeToken(_ context.Context, conversationID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[conversationID]
	if !ok {
		return ErrNotFound
	}
	record.ResumeToken = token
	m.records[conversationID] = record
	return nil
}

// List returns all records ordered by most recent activity.
func (m *MemoryStore) List(_ context.Context) ([]*SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	records := make([]*SessionRecord, 0, len(m.records))
	for _, record := range m.records {
		copied := record
		records = append(records, &copied)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].LastActivityAt.After(records[j].LastActivityAt)
	})
	return records, nil
}

// Delete removes a record.
func (m *MemoryStore) Delete(_ context.Context, conversationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.records, conversationID)
	return nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error {
	return nil
}
