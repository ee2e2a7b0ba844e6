// Package googleanalytics adapts the Google Analytics 4 Data API to
// the Connector port. Tenants connect through the OAuth authorization
// code flow; an already issued refresh or access token also works for
// service-style setups.
package googleanalytics

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/syncline/syncline/pkg/domain"

	"golang.org/x/oauth2"
)

const DefaultBaseURL = "https://analyticsdata.googleapis.com"

var googleEndpoint = oauth2.Endpoint{
	AuthURL:  "https://accounts.google.com/o/oauth2/auth",
	TokenURL: "https://oauth2.googleapis.com/token",
}

type Deps struct {
	Credentials map[string]string
	HTTPClient  *http.Client
	BaseURL     string
}

type Connector struct {
	accessToken string
	propertyID  string
	oauthConfig *oauth2.Config
	httpClient  *http.Client
	baseURL     string
}

func New(deps Deps) (*Connector, error) {
	connector := &Connector{
		accessToken: deps.Credentials["access_token"],
		propertyID:  deps.Credentials["property_id"],
		httpClient:  deps.HTTPClient,
		baseURL:     deps.BaseURL,
	}

	if clientID := deps.Credentials["client_id"]; clientID != "" {
		connector.oauthConfig = &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: deps.Credentials["client_secret"],
			RedirectURL:  deps.Credentials["redirect_url"],
			Endpoint:     googleEndpoint,
			Scopes:       []string{"https://www.googleapis.com/auth/analytics.readonly"},
		}
	}

	if connector.accessToken == "" && connector.oauthConfig == nil {
		return nil, domain.NewCredentialValidationError(domain.ConnectorKind_GoogleAnalytics4, "access_token or client_id is required")
	}

	return connector, nil
}

func (c *Connector) Kind() domain.ConnectorKind {
	return domain.ConnectorKind_GoogleAnalytics4
}

// ValidateCredentials probes the property metadata endpoint. Without
// an access token the credentials are only structurally checked; the
// real verification happens when the code flow completes.
func (c *Connector) ValidateCredentials(ctx context.Context, creds map[string]string) (bool, error) {
	if c.accessToken == "" {
		return c.oauthConfig != nil, nil
	}
	if c.propertyID == "" {
		return false, nil
	}

	status, err := c.probe(ctx)
	if err != nil {
		return false, err
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return false, nil
	case status >= 400:
		return false, fmt.Errorf("analytics api returned status %d", status)
	}

	return true, nil
}

func (c *Connector) GetHealth(ctx context.Context) (domain.ConnectorHealth, error) {
	startedAt := time.Now()

	status, err := c.probe(ctx)
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
		return "", domain.NewCredentialValidationError(domain.ConnectorKind_GoogleAnalytics4, "client_id is required for the authorization code flow")
	}

	return c.oauthConfig.AuthCodeURL(state, oauth2.AccessTypeOffline), nil
}

func (c *Connector) ExchangeCodeForToken(ctx context.Context, code string) (*oauth2.Token, error) {
	if c.oauthConfig == nil {
		return nil, domain.NewCredentialValidationError(domain.ConnectorKind_GoogleAnalytics4, "client_id is required for the authorization code flow")
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	return c.oauthConfig.Exchange(ctx, code)
}

func (c *Connector) probe(ctx context.Context) (int, error) {
	url := fmt.Sprintf("%s/v1beta/properties/%s/metadata", c.baseURL, c.propertyID)

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	request.Header.Set("Authorization", "Bearer "+c.accessToken)

	response, err := c.httpClient.Do(request)
	if err != nil {
		return 0, err
	}
	defer response.Body.Close()

	io.Copy(io.Discard, response.Body)

	return response.StatusCode, nil
}
