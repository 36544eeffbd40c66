package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrTemporary        = errors.New("temporary failure")

	// ErrIndexNotBuilt means sparse search ran before a successful build.
	// Programmer error: fatal to the call, surfaced to the caller.
	ErrIndexNotBuilt = errors.New("sparse index not built")

	// ErrInvalidWeight means fusion weights are outside [0,1]. Misconfiguration,
	// caught at configuration load and again at fuse time.
	ErrInvalidWeight = errors.New("invalid fusion weight")

	// ErrEmptyCorpus means build was called with zero passages. The index is
	// left unbuilt; the process keeps running.
	ErrEmptyCorpus = errors.New("empty corpus")

	// ErrUpstreamTimeout / ErrUpstreamService classify failures of the dense
	// index, reranker and generator. Both are subject to the per-component
	// degrade-or-retry policies rather than hard propagation.
	ErrUpstreamTimeout = errors.New("upstream timeout")
	ErrUpstreamService = errors.New("upstream service failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
