package sessionstore

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/ragserve/core/internal/domain/rag"
	"github.com/ragserve/core/pkg/util"
)

// MemoryStore is an in-process SessionStore used by tests and by C13's
// degraded "no-session" fallback when Valkey is unavailable.
type MemoryStore struct {
	mu       sync.RWMutex
	meta     map[string]rag.SessionMeta
	messages map[string][]rag.Message
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		meta:     make(map[string]rag.SessionMeta),
		messages: make(map[string][]rag.Message),
	}
}

var _ rag.SessionStore = (*MemoryStore)(nil)

func (s *MemoryStore) CreateSession(_ context.Context, userID string, firstMessage string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	title := firstMessage
	if len(title) > 80 {
		title = title[:80]
	}
	now := util.NowUTC()
	s.meta[id] = rag.SessionMeta{SessionID: id, UserID: userID, CreatedAt: now, LastActiveAt: now, Title: title}
	return id, nil
}

func (s *MemoryStore) Append(_ context.Context, sessionID string, msg rag.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[sessionID] = append(s.messages[sessionID], msg)
	if meta, ok := s.meta[sessionID]; ok {
		meta.LastActiveAt = util.NowUTC()
		meta.MessageCount++
		s.meta[sessionID] = meta
	}
	return nil
}

func (s *MemoryStore) Recent(_ context.Context, sessionID string, limit int) ([]rag.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.messages[sessionID]
	if limit <= 0 || len(all) == 0 {
		return nil, nil
	}
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]rag.Message, len(all))
	copy(out, all)
	return out, nil
}

func (s *MemoryStore) ListSessions(_ context.Context, userID string, limit, offset int) ([]rag.SessionMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var sessions []rag.SessionMeta
	for _, m := range s.meta {
		if m.UserID == userID {
			sessions = append(sessions, m)
		}
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].LastActiveAt.After(sessions[j].LastActiveAt) })
	if offset >= len(sessions) {
		return nil, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(sessions) {
		end = len(sessions)
	}
	return sessions[offset:end], nil
}

func (s *MemoryStore) Delete(_ context.Context, sessionID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta, ok := s.meta[sessionID]
	if !ok {
		return rag.ErrSessionNotFound()
	}
	if meta.UserID != userID {
		return rag.ErrSessionForbidden()
	}
	delete(s.meta, sessionID)
	delete(s.messages, sessionID)
	return nil
}

func (s *MemoryStore) Touch(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if meta, ok := s.meta[sessionID]; ok {
		meta.LastActiveAt = util.NowUTC()
		s.meta[sessionID] = meta
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, sessionID string) (*rag.SessionMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if meta, ok := s.meta[sessionID]; ok {
		copied := meta
		return &copied, nil
	}
	return nil, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }
