package secrets

import (
	"context"
	"fmt"
	"strings"

	"github.com/syncline/syncline/pkg/domain"
)

// TenantScopedStore restricts every operation to the owning tenant's
// prefix. No caller holding a tenant-scoped store can resolve a path
// under another tenant's namespace.
type TenantScopedStore struct {
	inner    domain.SecretStore
	tenantID string
	prefix   string
}

func NewTenantScopedStore(inner domain.SecretStore, tenantID string) *TenantScopedStore {
	return &TenantScopedStore{
		inner:    inner,
		tenantID: tenantID,
		prefix:   domain.TenantSecretPrefix(tenantID),
	}
}

func (s *TenantScopedStore) guard(path string) error {
	if !strings.HasPrefix(path, s.prefix) {
		return fmt.Errorf("%w: tenant %s cannot access %s", domain.ErrSecretAccessDenied, s.tenantID, path)
	}

	return nil
}

func (s *TenantScopedStore) StoreSecret(ctx context.Context, path string, data map[string]string, metadata *domain.SecretMetadata) error {
	if err := s.guard(path); err != nil {
		return err
	}

	return s.inner.StoreSecret(ctx, path, data, metadata)
}

func (s *TenantScopedStore) GetSecret(ctx context.Context, path string) (domain.Secret, error) {
	if err := s.guard(path); err != nil {
		return domain.Secret{}, err
	}

	return s.inner.GetSecret(ctx, path)
}

func (s *TenantScopedStore) DeleteSecret(ctx context.Context, path string) error {
	if err := s.guard(path); err != nil {
		return err
	}

	return s.inner.DeleteSecret(ctx, path)
}

func (s *TenantScopedStore) ListSecrets(ctx context.Context, prefix string) ([]string, error) {
	if !strings.HasPrefix(prefix, s.prefix) {
		return nil, fmt.Errorf("%w: tenant %s cannot list %s", domain.ErrSecretAccessDenied, s.tenantID, prefix)
	}

	return s.inner.ListSecrets(ctx, prefix)
}

func (s *TenantScopedStore) RotateSecret(ctx context.Context, path string, newData map[string]string) error {
	if err := s.guard(path); err != nil {
		return err
	}

	return s.inner.RotateSecret(ctx, path, newData)
}
