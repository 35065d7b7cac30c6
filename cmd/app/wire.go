//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"

	"github.com/ragserve/core/internal/bootstrap"
	"github.com/ragserve/core/internal/infra/config"
	httpiface "github.com/ragserve/core/internal/interface/http"
	"github.com/ragserve/core/pkg/logger"
)

func initializeApp() (*bootstrap.App, error) {
	wire.Build(
		config.Load,
		logger.New,
		provideChatGPTClient,
		provideIdentityVerifier,
		provideChunkStore,
		provideObjectStore,
		provideVectorIndex,
		provideSessionStore,
		provideEmbedder,
		provideChunker,
		providePIIRedactor,
		provideReranker,
		provideCompressor,
		provideGenerator,
		provideAdmissionController,
		provideIngestConfig,
		provideIngestOrchestrator,
		provideQueryConfig,
		provideQueryOrchestrator,
		provideEvaluator,
		provideDependencyChecks,
		httpiface.NewHandler,
		httpiface.NewRouter,
		bootstrap.NewApp,
	)
	return nil, nil
}
