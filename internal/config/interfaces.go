package config

import "context"

// SecretProvider abstracts secret retrieval to support both AWS SSM Parameter
// Store (deployed environments) and plain environment variables (local
// development). The interface also enables injection in loader tests.
type SecretProvider interface {
	// GetParametersBatch resolves multiple secret identifiers and returns a
	// map of identifier -> plaintext value for every one it found.
	// Implementations handle batching and API limits internally.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
