package errors

import "errors"

// Error kinds per the service's error taxonomy. Orchestrators translate
// component-local errors into one of these before returning to a caller;
// no raw upstream error text crosses that boundary.
const (
	CodeInvalidInput            = "invalid_input"
	CodeUnauthorized            = "unauthorized"
	CodeForbidden               = "forbidden"
	CodeThrottled               = "throttled"
	CodeRequestTooLarge         = "request_too_large"
	CodeEmbeddingUnavailable    = "embedding_unavailable"
	CodeVectorIndexUnavailable  = "vector_index_unavailable"
	CodeChunkStoreUnavailable   = "chunk_store_unavailable"
	CodeObjectStoreUnavailable  = "object_store_unavailable"
	CodeGenerationUnavailable   = "generation_unavailable"
	CodePartialFailure          = "partial_failure"
	CodeDeadlineExceeded        = "deadline_exceeded"
	CodeGenerationBlocked       = "generation_blocked"
	CodeGenerationTimeout       = "generation_timeout"
	CodeBackpressureTimeout     = "backpressure_timeout"
	CodeNotFound                = "not_found"
	CodeInternal                = "internal"
)

// AppError encodes domain specific error details.
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Wrap produces a new AppError instance.
func Wrap(code, message string, err error) error {
	if err == nil {
		return &AppError{Code: code, Message: message}
	}
	return &AppError{Code: code, Message: message, Err: err}
}

// IsCode helps handler differentiate failures.
func IsCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
