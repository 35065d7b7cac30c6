// Hand-written in the shape of wire's generated output (see initializeApp).

//go:generate go run -mod=mod github.com/google/wire/cmd/wire
//go:build !wireinject
// +build !wireinject

package main

import (
	"github.com/ragserve/core/internal/bootstrap"
	"github.com/ragserve/core/internal/infra/config"
	httpiface "github.com/ragserve/core/internal/interface/http"
	"github.com/ragserve/core/pkg/logger"
)

// initializeApp builds the dependency graph declared in wire.go. wire
// generation can't run in this environment, so this file is hand-wired
// in the same order wire.Build would resolve it: leaves first, then
// each orchestrator, then the HTTP handler and router.
func initializeApp() (*bootstrap.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.New()

	chatClient, err := provideChatGPTClient(cfg)
	if err != nil {
		return nil, err
	}

	chunkStore := provideChunkStore(cfg, log)
	objectStore := provideObjectStore(cfg, log)
	vectorIndex := provideVectorIndex(cfg, log)
	sessionStore := provideSessionStore(cfg, log)

	emb := provideEmbedder(chatClient, cfg, log)
	chk := provideChunker(emb)
	redactor := providePIIRedactor()
	rr := provideReranker(emb)
	cmp := provideCompressor()
	gen := provideGenerator(chatClient, cfg)
	admissionCtl := provideAdmissionController(cfg)
	verifier := provideIdentityVerifier(cfg)
	evaluator := provideEvaluator()

	ingestOrch := provideIngestOrchestrator(provideIngestConfig(cfg), chk, emb, chunkStore, objectStore, vectorIndex, redactor, log)
	queryOrch := provideQueryOrchestrator(provideQueryConfig(cfg), emb, chunkStore, vectorIndex, rr, cmp, gen, sessionStore, log)

	handler := httpiface.NewHandler(ingestOrch, queryOrch, sessionStore, admissionCtl, evaluator, verifier, log)
	handler = handler.WithDependencyChecks(provideDependencyChecks(chunkStore, objectStore, vectorIndex, sessionStore))

	server := httpiface.NewRouter(cfg, handler)

	return bootstrap.NewApp(cfg, log, server), nil
}
