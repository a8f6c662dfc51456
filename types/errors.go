package types

import (
	"context"
	"errors"
	"fmt"
)

// NotFoundError reports an unknown document, task or session id.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s with id %s not found", e.Resource, e.ID)
}

// StateConflictError reports an operation attempted against an entity in
// an incompatible state, e.g. starting research on a non-embedded
// document.
type StateConflictError struct {
	Resource string
	ID       string
	State    string
	Op       string
}

func (e StateConflictError) Error() string {
	return fmt.Sprintf("cannot %s: %s %s is in state %q", e.Op, e.Resource, e.ID, e.State)
}

// ParseError is a permanent document parsing failure. It is never retried.
type ParseError struct {
	Err error
}

func (e ParseError) Error() string { return fmt.Sprintf("parse failed: %v", e.Err) }
func (e ParseError) Unwrap() error { return e.Err }

// EmbeddingError is an embedding or indexing failure surfaced after the
// retry budget is exhausted. ChunkFrom/ChunkTo identify the chunk range
// that could not be indexed.
type EmbeddingError struct {
	ChunkFrom int
	ChunkTo   int
	Err       error
}

func (e EmbeddingError) Error() string {
	return fmt.Sprintf("embedding chunks %d-%d failed: %v", e.ChunkFrom, e.ChunkTo, e.Err)
}
func (e EmbeddingError) Unwrap() error { return e.Err }

// RetrievalError means the vector index was unreachable. An empty scope
// is not an error.
type RetrievalError struct {
	Err error
}

func (e RetrievalError) Error() string { return fmt.Sprintf("retrieval failed: %v", e.Err) }
func (e RetrievalError) Unwrap() error { return e.Err }

// GenerationError is a language model collaborator failure.
type GenerationError struct {
	Err error
}

func (e GenerationError) Error() string { return fmt.Sprintf("generation failed: %v", e.Err) }
func (e GenerationError) Unwrap() error { return e.Err }

// IsTimeout reports whether err is (or wraps) a deadline expiry from an
// external call.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
