// Package secrets resolves the deployment-provided static secret used for
// key bootstrap and for the token service's fallback path. The secret comes
// from Vault when enabled, from configuration otherwise.
package secrets

import (
	"context"

	vault "github.com/hashicorp/vault/api"

	"github.com/crewbill/keysvc/internal/config"
	"github.com/crewbill/keysvc/pkg/errors"
	"github.com/crewbill/keysvc/pkg/logger"
)

// StaticSecretSource yields the environment-provided secret value. An empty
// string means no secret is provisioned and callers fall back to generation.
type StaticSecretSource interface {
	StaticSecret(ctx context.Context) (string, error)
}

// configSource serves the secret straight from configuration.
type configSource struct {
	secret string
}

// NewConfigSource wraps the statically configured secret value.
func NewConfigSource(secret string) StaticSecretSource {
	return &configSource{secret: secret}
}

func (s *configSource) StaticSecret(ctx context.Context) (string, error) {
	return s.secret, nil
}

// vaultSource reads the secret from a Vault KV v2 mount.
type vaultSource struct {
	client    *vault.Client
	log       logger.Logger
	mountPath string
	path      string
	key       string
}

// NewVaultSource builds a Vault-backed secret source from configuration.
// A dev/root token is assumed; production deployments wire AppRole auth in
// front of this.
func NewVaultSource(cfg *config.VaultConfig, log logger.Logger) (StaticSecretSource, error) {
	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = cfg.Address

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, errors.ErrInternal("failed to create vault client", err)
	}
	client.SetToken(cfg.Token)

	return &vaultSource{
		client:    client,
		log:       log.WithComponent("vault_source"),
		mountPath: cfg.MountPath,
		path:      cfg.SecretPath,
		key:       cfg.SecretKey,
	}, nil
}

func (s *vaultSource) StaticSecret(ctx context.Context) (string, error) {
	secret, err := s.client.KVv2(s.mountPath).Get(ctx, s.path)
	if err != nil {
		return "", errors.ErrStoreUnavailable(err).
			WithMetadata("source", "vault").
			WithMetadata("path", s.path)
	}
	if secret == nil || secret.Data == nil {
		s.log.Warn(ctx, "vault secret path holds no data",
			logger.String("path", s.path))
		return "", nil
	}
	value, ok := secret.Data[s.key].(string)
	if !ok {
		s.log.Warn(ctx, "vault secret key missing or not a string",
			logger.String("path", s.path),
			logger.String("key", s.key))
		return "", nil
	}
	return value, nil
}
