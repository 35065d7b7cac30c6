package chunkstore

import (
	"context"
	"sync"

	"github.com/ragserve/core/internal/domain/rag"
)

// MemoryChunkStore is an in-process ChunkStore used by tests and by the
// composition root when no Postgres DSN is configured, adapted from the
// teacher's MemoryChunkRepository.
type MemoryChunkStore struct {
	mu     sync.RWMutex
	chunks map[string]rag.Chunk
	byDoc  map[string][]string
}

// NewMemoryChunkStore constructs an empty store.
func NewMemoryChunkStore() *MemoryChunkStore {
	return &MemoryChunkStore{
		chunks: make(map[string]rag.Chunk),
		byDoc:  make(map[string][]string),
	}
}

var _ rag.ChunkStore = (*MemoryChunkStore)(nil)

func (s *MemoryChunkStore) UpsertMany(_ context.Context, chunks []rag.Chunk) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if _, exists := s.chunks[c.ID]; !exists {
			s.byDoc[c.DocID] = append(s.byDoc[c.DocID], c.ID)
		}
		s.chunks[c.ID] = c
		ids = append(ids, c.ID)
	}
	return ids, nil
}

func (s *MemoryChunkStore) GetMany(_ context.Context, ids []string) ([]*rag.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*rag.Chunk, len(ids))
	for i, id := range ids {
		if c, ok := s.chunks[id]; ok {
			copied := c
			out[i] = &copied
		}
	}
	return out, nil
}

func (s *MemoryChunkStore) DeleteByDoc(_ context.Context, docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.byDoc[docID] {
		delete(s.chunks, id)
	}
	delete(s.byDoc, docID)
	return nil
}

func (s *MemoryChunkStore) Ping(context.Context) error { return nil }
