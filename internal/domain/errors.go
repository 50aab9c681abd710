package domain

import "errors"

var (
	// ErrCapabilityUnavailable marks a failure of the embedder or the vector index.
	ErrCapabilityUnavailable = errors.New("retrieval capability unavailable")
	// ErrNoResults means retrieval worked but nothing resolvable came back.
	ErrNoResults = errors.New("no results found")
	// ErrEmptyContext is returned by Ask when there is nothing to ground an answer on.
	ErrEmptyContext = errors.New("failed to retrieve context")
	// ErrNotReady means one or more resources could not be loaded.
	ErrNotReady = errors.New("service not ready")
	// ErrInvalidQuery is returned for blank questions.
	ErrInvalidQuery = errors.New("query must not be empty")
)
