package domain

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrCredentialNotFound = errors.New("connector credential not found")

	ErrIllegalStatusTransition = errors.New("illegal credential status transition")
)

type CredentialStatus string

const (
	CredentialStatus_Pending    CredentialStatus = "pending"
	CredentialStatus_Connected  CredentialStatus = "connected"
	CredentialStatus_Error      CredentialStatus = "error"
	CredentialStatus_Terminated CredentialStatus = "terminated"
)

// CanTransitionTo enforces the credential state machine. Terminated is
// final; Connected is only reachable through the setup workflow and
// can be re-entered from Error on a successful reconnect.
func (s CredentialStatus) CanTransitionTo(next CredentialStatus) bool {
	if s == next {
		return true
	}

	switch s {
	case CredentialStatus_Pending:
		return next == CredentialStatus_Connected || next == CredentialStatus_Error || next == CredentialStatus_Terminated
	case CredentialStatus_Connected:
		return next == CredentialStatus_Error || next == CredentialStatus_Terminated
	case CredentialStatus_Error:
		return next == CredentialStatus_Pending || next == CredentialStatus_Connected || next == CredentialStatus_Terminated
	case CredentialStatus_Terminated:
		return false
	}

	return false
}

// ConnectorCredential is a tenant's registration of one connector. The
// secret material itself lives only under SecretPath; Config must be
// sanitized before it is ever stored here.
type ConnectorCredential struct {
	TenantID        string
	ConnectorID     string
	Kind            ConnectorKind
	SecretPath      string
	Status          CredentialStatus
	Config          map[string]string
	LastValidatedAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type CredentialRepository interface {
	Upsert(ctx context.Context, credential ConnectorCredential) error
	Get(ctx context.Context, tenantID string, connectorID string) (ConnectorCredential, error)
	UpdateStatus(ctx context.Context, tenantID string, connectorID string, status CredentialStatus, validatedAt *time.Time) error
	ListConnected(ctx context.Context, tenantID string) ([]ConnectorCredential, error)
}

var secretConfigKeys = []string{
	"api_key", "apikey", "secret", "token", "password", "private_key", "client_secret", "refresh_token", "access_token",
}

// SanitizeConfig strips anything secret-looking from connector config
// before it is persisted outside the secret store.
func SanitizeConfig(config map[string]string) map[string]string {
	sanitized := make(map[string]string, len(config))

	for key, value := range config {
		if isSecretConfigKey(key) {
			continue
		}

		sanitized[key] = value
	}

	return sanitized
}

func isSecretConfigKey(key string) bool {
	lowered := strings.ToLower(key)

	for _, secretKey := range secretConfigKeys {
		if strings.Contains(lowered, secretKey) {
			return true
		}
	}

	return false
}
