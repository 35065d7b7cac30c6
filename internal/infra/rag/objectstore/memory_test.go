package objectstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragserve/core/internal/domain/rag"
)

func TestMemoryObjectStorePutGetRoundTrip(t *testing.T) {
	s := NewMemoryObjectStore()
	ctx := context.Background()

	ref, err := s.Put(ctx, "doc1", []byte("hello world"), rag.ContentTypeTXT, rag.ObjectMetadata{
		UploaderID:       "u1",
		OriginalFilename: "hello.txt",
	})
	require.NoError(t, err)
	assert.Contains(t, ref, "doc1/")

	data, meta, err := s.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
	assert.Equal(t, "u1", meta.UploaderID)
	assert.Equal(t, rag.ContentTypeTXT, meta.ContentType)
	assert.NotEmpty(t, meta.SHA256)
}

func TestMemoryObjectStoreGetMissing(t *testing.T) {
	s := NewMemoryObjectStore()
	_, _, err := s.Get(context.Background(), "nope")
	assert.Error(t, err)
}
