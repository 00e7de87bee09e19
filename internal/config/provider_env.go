package config

import (
	"context"
	"os"
)

// EnvVarProvider implements SecretProvider by resolving values from OS
// environment variables. It is the provider for local development, where
// secrets come from the environment or a .env file rather than AWS SSM.
type EnvVarProvider struct{}

func NewEnvVarProvider() *EnvVarProvider {
	return &EnvVarProvider{}
}

// GetParametersBatch looks each key up with os.LookupEnv. Missing keys are
// silently omitted from the result. The context is accepted for interface
// compatibility only.
func (p *EnvVarProvider) GetParametersBatch(_ context.Context, keys []string) (map[string]string, error) {
	result := make(map[string]string, len(keys))
	for _, key := range keys {
		if val, ok := os.LookupEnv(key); ok {
			result[key] = val
		}
	}
	return result, nil
}
