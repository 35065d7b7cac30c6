package sessionstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragserve/core/internal/domain/rag"
)

func TestMemoryStoreAppendAndRecentOrdering(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	id, err := s.CreateSession(ctx, "user1", "hello")
	require.NoError(t, err)

	require.NoError(t, s.Append(ctx, id, rag.Message{Role: rag.RoleUser, Content: "one"}))
	require.NoError(t, s.Append(ctx, id, rag.Message{Role: rag.RoleAssistant, Content: "two"}))
	require.NoError(t, s.Append(ctx, id, rag.Message{Role: rag.RoleUser, Content: "three"}))

	recent, err := s.Recent(ctx, id, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "two", recent[0].Content)
	assert.Equal(t, "three", recent[1].Content)
}

func TestMemoryStoreDeleteEnforcesOwnership(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	id, err := s.CreateSession(ctx, "owner", "hi")
	require.NoError(t, err)

	err = s.Delete(ctx, id, "someone-else")
	assert.Error(t, err)

	err = s.Delete(ctx, id, "owner")
	assert.NoError(t, err)
}

func TestMemoryStoreDeleteMissingSession(t *testing.T) {
	s := NewMemoryStore()
	err := s.Delete(context.Background(), "nope", "owner")
	assert.Error(t, err)
}
