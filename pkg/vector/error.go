package vector

import "errors"

// Sentinel errors wrapped by drivers and embedders so callers can tell a
// misconfigured backend from an unreachable one.
var (
	ErrEmbedding  = errors.New("embedding failed")
	ErrConnection = errors.New("vector store connection failed")
	ErrDimensions = errors.New("embedding dimensions must be configured")
)
