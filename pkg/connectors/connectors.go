// Package connectors holds the external-system adapters behind the
// Connector port. Each vendor lives in its own subpackage and is
// registered on the selector by kind; RegisterAll wires the full set.
package connectors

import (
	"context"
	"net/http"
	"time"

	"github.com/syncline/syncline/pkg/connectors/asana"
	"github.com/syncline/syncline/pkg/connectors/generic"
	"github.com/syncline/syncline/pkg/connectors/googleanalytics"
	"github.com/syncline/syncline/pkg/connectors/hubspot"
	"github.com/syncline/syncline/pkg/connectors/marketplace"
	"github.com/syncline/syncline/pkg/connectors/shopify"
	"github.com/syncline/syncline/pkg/domain"
)

// Deps is the shared construction context for every adapter. BaseURLs
// overrides a kind's vendor endpoint, used by tests and self-hosted
// vendor installations.
type Deps struct {
	HTTPClient *http.Client
	BaseURLs   map[domain.ConnectorKind]string
}

func (d Deps) client() *http.Client {
	if d.HTTPClient != nil {
		return d.HTTPClient
	}

	return &http.Client{Timeout: 30 * time.Second}
}

func (d Deps) baseURL(kind domain.ConnectorKind, fallback string) string {
	if url, ok := d.BaseURLs[kind]; ok {
		return url
	}

	return fallback
}

// RegisterAll registers every shipped adapter on the selector.
func RegisterAll(selector domain.ConnectorSelector, deps Deps) {
	client := deps.client()

	selector.Register(domain.ConnectorKind_Generic, func(ctx context.Context, p domain.CreateConnectorParams) (domain.Connector, error) {
		return generic.New(p.Credentials), nil
	})

	selector.Register(domain.ConnectorKind_HubSpot, func(ctx context.Context, p domain.CreateConnectorParams) (domain.Connector, error) {
		return hubspot.New(hubspot.Deps{
			Credentials: p.Credentials,
			HTTPClient:  client,
			BaseURL:     deps.baseURL(domain.ConnectorKind_HubSpot, hubspot.DefaultBaseURL),
		})
	})

	selector.Register(domain.ConnectorKind_GoogleAnalytics4, func(ctx context.Context, p domain.CreateConnectorParams) (domain.Connector, error) {
		return googleanalytics.New(googleanalytics.Deps{
			Credentials: p.Credentials,
			HTTPClient:  client,
			BaseURL:     deps.baseURL(domain.ConnectorKind_GoogleAnalytics4, googleanalytics.DefaultBaseURL),
		})
	})

	selector.Register(domain.ConnectorKind_Asana, func(ctx context.Context, p domain.CreateConnectorParams) (domain.Connector, error) {
		return asana.New(asana.Deps{
			Credentials: p.Credentials,
			HTTPClient:  client,
			BaseURL:     deps.baseURL(domain.ConnectorKind_Asana, asana.DefaultBaseURL),
		})
	})

	selector.Register(domain.ConnectorKind_Shopify, func(ctx context.Context, p domain.CreateConnectorParams) (domain.Connector, error) {
		return shopify.New(shopify.Deps{
			Credentials: p.Credentials,
			HTTPClient:  client,
			BaseURL:     deps.baseURL(domain.ConnectorKind_Shopify, ""),
		})
	})

	for _, kind := range domain.MarketplaceKinds {
		kind := kind
		selector.Register(kind, func(ctx context.Context, p domain.CreateConnectorParams) (domain.Connector, error) {
			return marketplace.New(marketplace.Deps{
				Kind:        kind,
				Credentials: p.Credentials,
				HTTPClient:  client,
				BaseURL:     deps.baseURL(kind, marketplace.DefaultBaseURL(kind)),
			})
		})
	}
}
