package rag

import (
	"context"

	apperrors "github.com/ragserve/core/pkg/errors"
)

// stageError wraps a component failure with the orchestrator state-machine
// transition that was in flight when it happened, per §7's propagation
// policy ("enrich with stage").
func stageError(code, stage string, err error) error {
	return apperrors.Wrap(code, "stage "+stage+" failed", err)
}

// stageErrorCtx is stageError with one refinement: if ctx's deadline is
// what actually killed the call, the caller-visible code is always
// CodeDeadlineExceeded (§7, testable property 10), regardless of which
// dependency happened to be mid-flight when the deadline landed.
func stageErrorCtx(ctx context.Context, code, stage string, err error) error {
	if ctx.Err() != nil {
		return apperrors.Wrap(apperrors.CodeDeadlineExceeded, "stage "+stage+" failed: deadline exceeded", ctx.Err())
	}
	return stageError(code, stage, err)
}

// ErrEmptyQuestion is returned when /query receives a blank question.
func ErrEmptyQuestion() error {
	return apperrors.Wrap(apperrors.CodeInvalidInput, "question must not be empty", nil)
}

// ErrNoFiles is returned when /ingest receives zero files.
func ErrNoFiles() error {
	return apperrors.Wrap(apperrors.CodeInvalidInput, "at least one file is required", nil)
}

// ErrSessionNotFound marks a lookup for an unknown or foreign session.
func ErrSessionNotFound() error {
	return apperrors.Wrap(apperrors.CodeNotFound, "session not found", nil)
}

// ErrSessionForbidden marks an attempt to access another user's session.
func ErrSessionForbidden() error {
	return apperrors.Wrap(apperrors.CodeForbidden, "session does not belong to caller", nil)
}
