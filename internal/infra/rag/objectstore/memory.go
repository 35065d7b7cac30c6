package objectstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	apperrors "github.com/ragserve/core/pkg/errors"

	"github.com/ragserve/core/internal/domain/rag"
)

// MemoryObjectStore keeps blobs in memory, adapted from the teacher's
// MemoryStorage. Used for tests and local dev when no MinIO endpoint is
// configured.
type MemoryObjectStore struct {
	mu    sync.RWMutex
	blobs map[string]storedBlob
}

type storedBlob struct {
	data     []byte
	metadata rag.ObjectMetadata
}

// NewMemoryObjectStore constructs an empty store.
func NewMemoryObjectStore() *MemoryObjectStore {
	return &MemoryObjectStore{blobs: make(map[string]storedBlob)}
}

var _ rag.ObjectStore = (*MemoryObjectStore)(nil)

func (s *MemoryObjectStore) Put(_ context.Context, docID string, data []byte, contentType rag.ContentType, metadata rag.ObjectMetadata) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	key := fmt.Sprintf("%s/%s", docID, hash)
	metadata.ContentType = contentType
	metadata.SHA256 = hash
	s.blobs[key] = storedBlob{data: data, metadata: metadata}
	return key, nil
}

func (s *MemoryObjectStore) Get(_ context.Context, objectRef string) ([]byte, rag.ObjectMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, ok := s.blobs[objectRef]
	if !ok {
		return nil, rag.ObjectMetadata{}, apperrors.Wrap(apperrors.CodeNotFound, "object not found", nil)
	}
	return blob.data, blob.metadata, nil
}

func (s *MemoryObjectStore) Ping(context.Context) error { return nil }
