package config

import "context"

// SecretProvider resolves SSM parameter paths (or equivalent identifiers)
// to plaintext values. Keys that cannot be found are omitted from the map.
type SecretProvider interface {
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}

// ProviderFor picks the secret provider for appEnv: the environment itself
// for local runs, SSM everywhere else.
func ProviderFor(appEnv, region, endpointURL string) SecretProvider {
	if appEnv == localEnv {
		return NewEnvVarProvider()
	}
	return NewSSMProvider(region, endpointURL)
}
