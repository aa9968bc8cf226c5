// Package config loads the secrets and typed options tracecore's binaries
// need at startup.
package config

import (
	"fmt"

	vaultapi "github.com/hashicorp/vault/api"
)

// SecretManager wraps a Vault client for reading KV v2 secrets: a thin,
// service-agnostic layer the rest of config builds typed Options on top
// of.
type SecretManager struct {
	client *vaultapi.Client
}

// NewSecretManager returns a SecretManager authenticated against a Vault
// server at address using token.
func NewSecretManager(address, token string) (*SecretManager, error) {
	cfg := vaultapi.DefaultConfig()
	cfg.Address = address
	client, err := vaultapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("config: vault client: %w", err)
	}
	client.SetToken(token)
	return &SecretManager{client: client}, nil
}

// GetSecret reads the raw secret at path.
func (s *SecretManager) GetSecret(path string) (*vaultapi.Secret, error) {
	secret, err := s.client.Logical().Read(path)
	if err != nil {
		return nil, fmt.Errorf("config: read secret %q: %w", path, err)
	}
	if secret == nil {
		return nil, fmt.Errorf("config: secret %q not found", path)
	}
	return secret, nil
}

// GetKV2 reads a KV-v2 secret at path and unwraps its "data" envelope into
// a flat map of field name to string value.
func (s *SecretManager) GetKV2(path string) (map[string]string, error) {
	secret, err := s.GetSecret(path)
	if err != nil {
		return nil, err
	}
	inner, ok := secret.Data["data"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("config: secret %q is not a KV v2 payload", path)
	}
	out := make(map[string]string, len(inner))
	for k, v := range inner {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out, nil
}
