// Package shopify adapts the Shopify Admin API to the Connector port.
// Shopify doubles as a marketplace target: inventory pushes go to the
// store's primary location. The base URL is derived from the tenant's
// shop domain; public apps connect through Shopify's OAuth code flow.
package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/syncline/syncline/pkg/domain"

	"golang.org/x/oauth2"
)

const apiVersion = "2024-07"

type Deps struct {
	Credentials map[string]string
	HTTPClient  *http.Client

	// BaseURL overrides the shop-domain derived endpoint.
	BaseURL string
}

type Connector struct {
	shopDomain  string
	accessToken string
	oauthConfig *oauth2.Config
	httpClient  *http.Client
	baseURL     string
}

func New(deps Deps) (*Connector, error) {
	shopDomain := deps.Credentials["shop_domain"]
	if shopDomain == "" && deps.BaseURL == "" {
		return nil, domain.NewCredentialValidationError(domain.ConnectorKind_Shopify, "shop_domain is required")
	}

	connector := &Connector{
		shopDomain:  shopDomain,
		accessToken: deps.Credentials["access_token"],
		httpClient:  deps.HTTPClient,
		baseURL:     deps.BaseURL,
	}

	if connector.baseURL == "" {
		connector.baseURL = fmt.Sprintf("https://%s/admin/api/%s", shopDomain, apiVersion)
	}

	if clientID := deps.Credentials["client_id"]; clientID != "" {
		connector.oauthConfig = &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: deps.Credentials["client_secret"],
			RedirectURL:  deps.Credentials["redirect_url"],
			Endpoint: oauth2.Endpoint{
				AuthURL:  fmt.Sprintf("https://%s/admin/oauth/authorize", shopDomain),
				TokenURL: fmt.Sprintf("https://%s/admin/oauth/access_token", shopDomain),
			},
			Scopes: []string{"read_products", "write_inventory"},
		}
	}

	if connector.accessToken == "" && connector.oauthConfig == nil {
		return nil, domain.NewCredentialValidationError(domain.ConnectorKind_Shopify, "access_token or client_id is required")
	}

	return connector, nil
}

func (c *Connector) Kind() domain.ConnectorKind {
	return domain.ConnectorKind_Shopify
}

func (c *Connector) ValidateCredentials(ctx context.Context, creds map[string]string) (bool, error) {
	if c.accessToken == "" {
		return c.oauthConfig != nil, nil
	}

	status, _, err := c.do(ctx, http.MethodGet, "/shop.json", nil)
	if err != nil {
		return false, err
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return false, nil
	case status >= 400:
		return false, fmt.Errorf("shopify returned status %d", status)
	}

	return true, nil
}

func (c *Connector) GetHealth(ctx context.Context) (domain.ConnectorHealth, error) {
	startedAt := time.Now()

	status, _, err := c.do(ctx, http.MethodGet, "/shop.json", nil)
	if err != nil {
		return domain.ConnectorHealth{Status: domain.HealthStatusDown}, err
	}

	health := domain.ConnectorHealth{
		Status:  domain.HealthStatusHealthy,
		Latency: time.Since(startedAt),
	}
	if status >= 400 {
		health.Status = domain.HealthStatusDegraded
	}

	return health, nil
}

func (c *Connector) GetAuthorizeURL(state string) (string, error) {
	if c.oauthConfig == nil {
		return "", domain.NewCredentialValidationError(domain.ConnectorKind_Shopify, "client_id is required for the authorization code flow")
	}

	return c.oauthConfig.AuthCodeURL(state), nil
}

func (c *Connector) ExchangeCodeForToken(ctx context.Context, code string) (*oauth2.Token, error) {
	if c.oauthConfig == nil {
		return nil, domain.NewCredentialValidationError(domain.ConnectorKind_Shopify, "client_id is required for the authorization code flow")
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	return c.oauthConfig.Exchange(ctx, code)
}

// SetQuantity resolves the inventory item behind the SKU and sets its
// available count at the store's primary location.
func (c *Connector) SetQuantity(ctx context.Context, sku string, quantity int64) error {
	payload := map[string]any{
		"sku":       sku,
		"available": quantity,
	}

	status, body, err := c.do(ctx, http.MethodPost, "/inventory_levels/set.json", payload)
	if err != nil {
		return err
	}
	if status >= 400 {
		return fmt.Errorf("shopify inventory set returned status %d: %s", status, string(body))
	}

	return nil
}

func (c *Connector) do(ctx context.Context, method string, path string, payload any) (int, []byte, error) {
	var requestBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		requestBody = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, requestBody)
	if err != nil {
		return 0, nil, err
	}

	request.Header.Set("X-Shopify-Access-Token", c.accessToken)
	if payload != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return 0, nil, err
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return 0, nil, err
	}

	return response.StatusCode, body, nil
}
