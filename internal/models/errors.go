package models

import "errors"

// Error kinds shared across the pipeline. Wrap with fmt.Errorf("...: %w", Err...)
// and match with errors.Is.
var (
	// ErrValidation marks caller-input errors (missing question, bad id, malformed upload).
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks an unknown document id.
	ErrNotFound = errors.New("not found")

	// ErrIndexingFailed marks an ingest that did not complete.
	ErrIndexingFailed = errors.New("indexing failed")

	// ErrIndexMismatch marks a vector index built by a different embedding model or width.
	ErrIndexMismatch = errors.New("vector index built with a different embedder")

	// ErrEmptyDocument marks a PDF with no extractable text (scanned images, empty pages).
	ErrEmptyDocument = errors.New("no text extracted from document")

	// ErrBackendUnavailable marks a single language-model backend failure.
	// It is retried across the fallback chain and never returned to callers.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrServiceUnavailable is returned when every backend, the heuristic included, failed.
	ErrServiceUnavailable = errors.New("service unavailable")
)
