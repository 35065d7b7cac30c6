// Package objectstore implements C4: durable storage of raw ingested
// document bytes, keyed by content-derived id.
package objectstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	apperrors "github.com/ragserve/core/pkg/errors"
	"github.com/ragserve/core/pkg/util"

	"github.com/ragserve/core/internal/domain/rag"
)

// MinioObjectStore stores raw document bytes in an S3-compatible bucket,
// adapted from the teacher's R2Storage — same client, same
// ensureBucket/sanitizeEndpoint idiom, restructured around the
// ObjectStore contract (date-partitioned key named by the content-derived
// doc-id, metadata carried via
// x-amz-meta-* headers instead of a separate domain.StoredObject type).
type MinioObjectStore struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

// NewMinioObjectStore constructs the storage adapter.
func NewMinioObjectStore(endpoint, accessKey, secretKey, bucket, region string, logger *slog.Logger) (*MinioObjectStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cleanEndpoint := sanitizeEndpoint(endpoint)
	useSSL := strings.HasPrefix(strings.ToLower(endpoint), "https")
	client, err := minio.New(cleanEndpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure:       useSSL,
		Region:       region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	return &MinioObjectStore{client: client, bucket: bucket, logger: logger.With("component", "rag.objectstore.minio")}, nil
}

var _ rag.ObjectStore = (*MinioObjectStore)(nil)

func (s *MinioObjectStore) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err == nil && exists {
		return nil
	}
	err = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
	if err != nil && minio.ToErrorResponse(err).Code != "BucketAlreadyOwnedByYou" {
		return err
	}
	return nil
}

// Put uploads data under documents/{yyyy}/{mm}/{dd}/{docID} (UTC date of
// the put), returning the object ref.
func (s *MinioObjectStore) Put(ctx context.Context, docID string, data []byte, contentType rag.ContentType, metadata rag.ObjectMetadata) (string, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return "", apperrors.Wrap(apperrors.CodeObjectStoreUnavailable, "ensure bucket", err)
	}
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	key := fmt.Sprintf("documents/%s/%s", util.NowUTC().Format("2006/01/02"), docID)

	reader := bytes.NewReader(data)
	_, err := s.client.PutObject(ctx, s.bucket, key, reader, int64(len(data)), minio.PutObjectOptions{
		ContentType:      string(contentType),
		DisableMultipart: len(data) < 5*1024*1024,
		UserMetadata: map[string]string{
			"uploader-id":       metadata.UploaderID,
			"original-filename": metadata.OriginalFilename,
			"sha256":            hash,
		},
	})
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeObjectStoreUnavailable, "put object", err)
	}
	return key, nil
}

// Get fetches an object and its metadata.
func (s *MinioObjectStore) Get(ctx context.Context, objectRef string) ([]byte, rag.ObjectMetadata, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, objectRef, minio.GetObjectOptions{})
	if err != nil {
		return nil, rag.ObjectMetadata{}, apperrors.Wrap(apperrors.CodeObjectStoreUnavailable, "get object", err)
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		return nil, rag.ObjectMetadata{}, apperrors.Wrap(apperrors.CodeNotFound, "stat object", err)
	}
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, rag.ObjectMetadata{}, apperrors.Wrap(apperrors.CodeObjectStoreUnavailable, "read object", err)
	}
	meta := rag.ObjectMetadata{
		UploaderID:       info.UserMetadata["Uploader-Id"],
		OriginalFilename: info.UserMetadata["Original-Filename"],
		ContentType:      rag.ContentType(info.ContentType),
		SHA256:           info.UserMetadata["Sha256"],
	}
	return data, meta, nil
}

// Ping satisfies rag.Pinger for /readiness.
func (s *MinioObjectStore) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}

// sanitizeEndpoint removes schemes and paths to satisfy minio.New expectations.
func sanitizeEndpoint(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}
	raw = strings.TrimPrefix(strings.TrimPrefix(raw, "https://"), "http://")
	if strings.Contains(raw, "/") {
		parts := strings.Split(raw, "/")
		raw = parts[0]
	}
	return raw
}
