package vectorstore

import "errors"

var (
	ErrUnreachable       = errors.New("qdrant server unreachable")
	ErrUnavailable       = errors.New("vector index unavailable")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
