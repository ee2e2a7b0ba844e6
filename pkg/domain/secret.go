package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrSecretNotFound is the explicit absence value for GetSecret.
	// Backend unavailability surfaces as any other error.
	ErrSecretNotFound = errors.New("secret not found")

	// ErrSecretAccessDenied is returned when a caller resolves a path
	// outside its own tenant prefix.
	ErrSecretAccessDenied = errors.New("secret access denied")
)

type SecretMetadata struct {
	Tags      map[string]string `json:"tags,omitempty"`
	ExpiresAt *time.Time        `json:"expires_at,omitempty"`
}

type Secret struct {
	Path     string            `json:"path"`
	Data     map[string]string `json:"data"`
	Metadata SecretMetadata    `json:"metadata"`
}

// SecretStore is the tenant-scoped credential persistence port.
// StoreSecret is an upsert. RotateSecret must not return before the
// new value is durably readable; a prior cached value may remain
// valid for in-flight readers during a grace window.
type SecretStore interface {
	StoreSecret(ctx context.Context, path string, data map[string]string, metadata *SecretMetadata) error
	GetSecret(ctx context.Context, path string) (Secret, error)
	DeleteSecret(ctx context.Context, path string) error
	ListSecrets(ctx context.Context, prefix string) ([]string, error)
	RotateSecret(ctx context.Context, path string, newData map[string]string) error
}

// ConnectorSecretPath builds the hierarchical path under which a
// tenant's connector credentials live.
func ConnectorSecretPath(tenantID string, connectorID string) string {
	return fmt.Sprintf("tenants/%s/connectors/%s", tenantID, connectorID)
}

// TenantSecretPrefix is the namespace owned exclusively by one tenant.
func TenantSecretPrefix(tenantID string) string {
	return fmt.Sprintf("tenants/%s/", tenantID)
}
