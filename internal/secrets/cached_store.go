package secrets

import (
	"context"
	"time"

	"github.com/syncline/syncline/pkg/domain"

	"github.com/rs/zerolog/log"
)

const DefaultGraceWindow = 30 * time.Second

// CachedStore wraps a SecretStore with a read-through cache.
//
// StoreSecret and DeleteSecret invalidate eagerly. RotateSecret
// deliberately does not: the previous value stays servable for up to
// the grace window so in-flight readers finish against the credential
// they started with.
type CachedStore struct {
	inner domain.SecretStore
	cache SecretCache
	grace time.Duration
}

func NewCachedStore(inner domain.SecretStore, cache SecretCache, grace time.Duration) *CachedStore {
	if grace <= 0 {
		grace = DefaultGraceWindow
	}

	return &CachedStore{
		inner: inner,
		cache: cache,
		grace: grace,
	}
}

func (s *CachedStore) StoreSecret(ctx context.Context, path string, data map[string]string, metadata *domain.SecretMetadata) error {
	if err := s.inner.StoreSecret(ctx, path, data, metadata); err != nil {
		return err
	}

	if err := s.cache.Delete(ctx, path); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Failed to invalidate secret cache after store")
	}

	return nil
}

func (s *CachedStore) GetSecret(ctx context.Context, path string) (domain.Secret, error) {
	secret, ok, err := s.cache.Get(ctx, path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Secret cache read failed, falling back to backend")
	}
	if ok {
		return secret, nil
	}

	secret, err = s.inner.GetSecret(ctx, path)
	if err != nil {
		return domain.Secret{}, err
	}

	if err := s.cache.Set(ctx, path, secret, s.grace); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Failed to populate secret cache")
	}

	return secret, nil
}

func (s *CachedStore) DeleteSecret(ctx context.Context, path string) error {
	if err := s.inner.DeleteSecret(ctx, path); err != nil {
		return err
	}

	if err := s.cache.Delete(ctx, path); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Failed to invalidate secret cache after delete")
	}

	return nil
}

func (s *CachedStore) ListSecrets(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.ListSecrets(ctx, prefix)
}

func (s *CachedStore) RotateSecret(ctx context.Context, path string, newData map[string]string) error {
	return s.inner.RotateSecret(ctx, path, newData)
}
