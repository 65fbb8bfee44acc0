// Package kms supplies the private key that signs JWT assertions, either from
// a PEM file on disk or from a HashiCorp Vault KV v2 secret.
package kms

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	vault "github.com/hashicorp/vault/api"
	"github.com/patrickmn/go-cache"

	domainService "github.com/turtacn/contentsdk/internal/domain/service"
	"github.com/turtacn/contentsdk/pkg/errors"
	"github.com/turtacn/contentsdk/pkg/logger"
)

const (
	// privateKeyField is the KV field holding the PEM text.
	privateKeyField = "private_key"
	privateKeyTTL   = time.Minute
)

// FileKeySource reads the key from a PEM file each time it is asked.
type FileKeySource struct {
	path string
}

var _ domainService.KeySource = (*FileKeySource)(nil)

// NewFileKeySource creates a key source for path.
func NewFileKeySource(path string) *FileKeySource {
	return &FileKeySource{path: path}
}

func (s *FileKeySource) PrivateKeyPEM(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, errors.ErrInvalidConfig(fmt.Sprintf("cannot read private key file %s", s.path)).WithCause(err)
	}
	return data, nil
}

// StaticKeySource returns a key held in memory.
type StaticKeySource []byte

func (s StaticKeySource) PrivateKeyPEM(ctx context.Context) ([]byte, error) {
	if len(s) == 0 {
		return nil, errors.ErrInvalidConfig("private key is empty").WithCause(errors.ErrNoPrivateKey)
	}
	return s, nil
}

// VaultKeySource reads the key from a Vault KV v2 secret and keeps it in a
// short-lived in-memory cache.
// VaultKeySource 从 Vault KV v2 读取私钥，并在内存中短暂缓存。
type VaultKeySource struct {
	client    *vault.Client
	mountPath string
	keyPath   string
	l1Cache   *cache.Cache
	logger    logger.Logger
}

var _ domainService.KeySource = (*VaultKeySource)(nil)

// NewVaultKeySource creates a key source reading {mountPath}/data/{keyPath}.
func NewVaultKeySource(client *vault.Client, mountPath, keyPath string, log logger.Logger) *VaultKeySource {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	if mountPath == "" {
		mountPath = "secret"
	}
	return &VaultKeySource{
		client:    client,
		mountPath: strings.Trim(mountPath, "/"),
		keyPath:   strings.Trim(keyPath, "/"),
		l1Cache:   cache.New(privateKeyTTL, 5*time.Minute),
		logger:    log.WithComponent("VaultKeySource"),
	}
}

// NewVaultClient builds a Vault API client for address authenticated with token.
func NewVaultClient(address, token string) (*vault.Client, error) {
	cfg := vault.DefaultConfig()
	if address != "" {
		cfg.Address = address
	}
	client, err := vault.NewClient(cfg)
	if err != nil {
		return nil, errors.ErrInvalidConfig("failed to create vault client").WithCause(err)
	}
	if token != "" {
		client.SetToken(token)
	}
	return client, nil
}

func (s *VaultKeySource) PrivateKeyPEM(ctx context.Context) ([]byte, error) {
	if cached, found := s.l1Cache.Get(s.keyPath); found {
		return cached.([]byte), nil
	}

	vaultPath := fmt.Sprintf("%s/data/%s", s.mountPath, s.keyPath)
	secret, err := s.client.Logical().ReadWithContext(ctx, vaultPath)
	if err != nil {
		s.logger.Error(ctx, "failed to read private key from Vault", err, logger.String("path", vaultPath))
		return nil, errors.ErrTransport("could not retrieve private key from vault", 0).WithCause(err)
	}
	if secret == nil || secret.Data["data"] == nil {
		return nil, errors.ErrInvalidConfig(fmt.Sprintf("no secret found at %s", vaultPath))
	}
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, errors.ErrMalformedResponse(fmt.Sprintf("unexpected secret layout at %s", vaultPath))
	}
	pemText, ok := data[privateKeyField].(string)
	if !ok || pemText == "" {
		return nil, errors.ErrInvalidConfig(fmt.Sprintf("secret at %s has no %s field", vaultPath, privateKeyField))
	}

	key := []byte(pemText)
	s.l1Cache.Set(s.keyPath, key, cache.DefaultExpiration)
	return key, nil
}
