// Package generic is the catch-all adapter for systems without a
// dedicated integration. It accepts any non-empty credential set and
// reports healthy; real vendor calls belong in a dedicated adapter.
package generic

import (
	"context"
	"errors"

	"github.com/syncline/syncline/pkg/domain"

	"golang.org/x/oauth2"
)

type Connector struct {
	credentials map[string]string
}

func New(credentials map[string]string) *Connector {
	return &Connector{credentials: credentials}
}

func (c *Connector) Kind() domain.ConnectorKind {
	return domain.ConnectorKind_Generic
}

func (c *Connector) ValidateCredentials(ctx context.Context, creds map[string]string) (bool, error) {
	return len(creds) > 0, nil
}

func (c *Connector) GetHealth(ctx context.Context) (domain.ConnectorHealth, error) {
	return domain.ConnectorHealth{Status: domain.HealthStatusHealthy}, nil
}

func (c *Connector) GetAuthorizeURL(state string) (string, error) {
	return "", errors.New("generic connector does not support the authorization code flow")
}

func (c *Connector) ExchangeCodeForToken(ctx context.Context, code string) (*oauth2.Token, error) {
	return nil, errors.New("generic connector does not support the authorization code flow")
}
