package domain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestSyncResources(t *testing.T) {
	assert.Equal(t, []string{"metadata", "historical_30d"}, ConnectorKind_GoogleAnalytics4.SyncResources())
	assert.Equal(t, []string{"metadata", "historical_30d"}, ConnectorKind_SearchConsole.SyncResources())
	assert.Equal(t, []string{"contacts", "deals", "pipelines"}, ConnectorKind_HubSpot.SyncResources())
	assert.Equal(t, []string{"initial_sync"}, ConnectorKind_Generic.SyncResources())
	assert.Equal(t, []string{"initial_sync"}, ConnectorKind_Meesho.SyncResources())
}

type nopConnector struct {
	kind ConnectorKind
}

func (c nopConnector) Kind() ConnectorKind { return c.kind }
func (c nopConnector) ValidateCredentials(ctx context.Context, creds map[string]string) (bool, error) {
	return true, nil
}
func (c nopConnector) GetHealth(ctx context.Context) (ConnectorHealth, error) {
	return ConnectorHealth{Status: HealthStatusHealthy}, nil
}
func (c nopConnector) GetAuthorizeURL(state string) (string, error) { return "", nil }
func (c nopConnector) ExchangeCodeForToken(ctx context.Context, code string) (*oauth2.Token, error) {
	return nil, nil
}

func TestConnectorSelector(t *testing.T) {
	selector := NewConnectorSelector()

	selector.Register(ConnectorKind_Generic, func(ctx context.Context, p CreateConnectorParams) (Connector, error) {
		return nopConnector{kind: ConnectorKind_Generic}, nil
	})

	t.Run("creates registered kind", func(t *testing.T) {
		connector, err := selector.Create(context.Background(), ConnectorKind_Generic, CreateConnectorParams{})
		require.NoError(t, err)
		assert.Equal(t, ConnectorKind_Generic, connector.Kind())
	})

	t.Run("unknown kind is a construction-time error", func(t *testing.T) {
		_, err := selector.Create(context.Background(), ConnectorKind("doesnotexist"), CreateConnectorParams{})
		assert.ErrorIs(t, err, ErrConnectorNotFound)
	})
}

func TestCredentialStatusTransitions(t *testing.T) {
	assert.True(t, CredentialStatus_Pending.CanTransitionTo(CredentialStatus_Connected))
	assert.True(t, CredentialStatus_Pending.CanTransitionTo(CredentialStatus_Error))
	assert.True(t, CredentialStatus_Connected.CanTransitionTo(CredentialStatus_Terminated))
	assert.True(t, CredentialStatus_Error.CanTransitionTo(CredentialStatus_Connected))
	assert.False(t, CredentialStatus_Terminated.CanTransitionTo(CredentialStatus_Connected))
	assert.False(t, CredentialStatus_Terminated.CanTransitionTo(CredentialStatus_Pending))
}

func TestSanitizeConfig(t *testing.T) {
	config := map[string]string{
		"region":        "us-east-1",
		"api_key":       "sk-very-secret",
		"client_secret": "oauth-secret",
		"store_domain":  "acme.myshopify.com",
		"ACCESS_TOKEN":  "tok",
	}

	sanitized := SanitizeConfig(config)

	assert.Equal(t, map[string]string{
		"region":       "us-east-1",
		"store_domain": "acme.myshopify.com",
	}, sanitized)
}
