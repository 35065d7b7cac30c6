package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ragserve/core/internal/domain/rag"
	"github.com/ragserve/core/internal/infra/config"
	"github.com/ragserve/core/pkg/logger"
)

// runReconcile is the `cmd/app reconcile <chunk-id> [chunk-id...]` entry
// point: spec.md §4.12's C3/C5 orphan reconciler, wired as an explicit
// admin tool rather than a background loop.
func runReconcile(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return fmt.Errorf("reconcile: at least one chunk-id is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := logger.New()

	chatClient, err := provideChatGPTClient(cfg)
	if err != nil {
		return fmt.Errorf("failed to build chat client: %w", err)
	}

	chunkStore := provideChunkStore(cfg, log)
	vectorIndex := provideVectorIndex(cfg, log)
	emb := provideEmbedder(chatClient, cfg, log)

	reconciler := rag.NewReconciler(chunkStore, vectorIndex, emb, log)
	result, err := reconciler.Reconcile(ctx, chunkIDs)
	if err != nil {
		return fmt.Errorf("reconcile failed: %w", err)
	}

	log.Info("reconcile complete",
		"checked", result.Checked,
		"repaired", len(result.Repaired),
		"missing", len(result.Missing),
	)
	for _, id := range result.Repaired {
		fmt.Fprintf(os.Stdout, "repaired\t%s\n", id)
	}
	for _, id := range result.Missing {
		fmt.Fprintf(os.Stdout, "missing\t%s\n", id)
	}
	return nil
}
