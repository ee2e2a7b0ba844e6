package secrets

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/syncline/syncline/pkg/domain"
)

// MemoryStore is the in-memory secret backend. It backs tests and
// single-node deployments that keep secrets out of the database.
type MemoryStore struct {
	mu      sync.RWMutex
	secrets map[string]domain.Secret
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		secrets: make(map[string]domain.Secret),
	}
}

func (s *MemoryStore) StoreSecret(ctx context.Context, path string, data map[string]string, metadata *domain.SecretMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	secret := domain.Secret{
		Path: path,
		Data: cloneData(data),
	}

	if metadata != nil {
		secret.Metadata = *metadata
	}

	s.secrets[path] = secret

	return nil
}

func (s *MemoryStore) GetSecret(ctx context.Context, path string) (domain.Secret, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	secret, ok := s.secrets[path]
	if !ok {
		return domain.Secret{}, domain.ErrSecretNotFound
	}

	secret.Data = cloneData(secret.Data)

	return secret, nil
}

func (s *MemoryStore) DeleteSecret(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.secrets, path)

	return nil
}

func (s *MemoryStore) ListSecrets(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	paths := []string{}

	for path := range s.secrets {
		if strings.HasPrefix(path, prefix) {
			paths = append(paths, path)
		}
	}

	sort.Strings(paths)

	return paths, nil
}

func (s *MemoryStore) RotateSecret(ctx context.Context, path string, newData map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	secret, ok := s.secrets[path]
	if !ok {
		return domain.ErrSecretNotFound
	}

	secret.Data = cloneData(newData)
	s.secrets[path] = secret

	return nil
}

func cloneData(data map[string]string) map[string]string {
	cloned := make(map[string]string, len(data))
	for key, value := range data {
		cloned[key] = value
	}

	return cloned
}
