package http

import (
	"errors"
	"log/slog"

	"github.com/ragserve/core/internal/domain/evaluation"
	"github.com/ragserve/core/internal/domain/identity"
	"github.com/ragserve/core/internal/domain/rag"
	apperrors "github.com/ragserve/core/pkg/errors"
)

// Handler wires the HTTP transport to the RAG domain services.
type Handler struct {
	ingest     *rag.IngestOrchestrator
	query      *rag.QueryOrchestrator
	sessions   rag.SessionStore
	admission  rag.AdmissionController
	evaluator  *evaluation.CompositeEvaluator
	verifier   identity.Verifier
	deps       []namedPinger
	logger     *slog.Logger
}

// namedPinger pairs a liveness check with the dependency name reported
// on /readiness.
type namedPinger struct {
	name   string
	pinger rag.Pinger
}

// NewHandler constructs the root HTTP handler.
func NewHandler(
	ingest *rag.IngestOrchestrator,
	query *rag.QueryOrchestrator,
	sessions rag.SessionStore,
	admission rag.AdmissionController,
	evaluator *evaluation.CompositeEvaluator,
	verifier identity.Verifier,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		ingest:    ingest,
		query:     query,
		sessions:  sessions,
		admission: admission,
		evaluator: evaluator,
		verifier:  verifier,
		logger:    logger.With("component", "http.handler"),
	}
}

// WithDependencyChecks registers the backends /readiness pings (e.g. the
// chunk store, vector index, session store); NewHandler registers none.
func (h *Handler) WithDependencyChecks(checks map[string]rag.Pinger) *Handler {
	for name, p := range checks {
		if p == nil {
			continue
		}
		h.deps = append(h.deps, namedPinger{name: name, pinger: p})
	}
	return h
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
