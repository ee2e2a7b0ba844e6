package workflows

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/syncline/syncline/internal/engine"
	"github.com/syncline/syncline/internal/knowledge"
	"github.com/syncline/syncline/internal/secrets"
	"github.com/syncline/syncline/pkg/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type fakeConnector struct {
	kind            domain.ConnectorKind
	rejectCreds     bool
	validateErr     error
	healthErr       error
	setQuantityErr  error
	quantitiesBySKU map[string]int64
	mu              sync.Mutex
}

func (c *fakeConnector) Kind() domain.ConnectorKind { return c.kind }

func (c *fakeConnector) ValidateCredentials(ctx context.Context, creds map[string]string) (bool, error) {
	if c.validateErr != nil {
		return false, c.validateErr
	}
	return !c.rejectCreds, nil
}

func (c *fakeConnector) GetHealth(ctx context.Context) (domain.ConnectorHealth, error) {
	if c.healthErr != nil {
		return domain.ConnectorHealth{}, c.healthErr
	}
	return domain.ConnectorHealth{Status: domain.HealthStatusHealthy}, nil
}

func (c *fakeConnector) GetAuthorizeURL(state string) (string, error) {
	return "https://example.test/authorize?state=" + state, nil
}

func (c *fakeConnector) ExchangeCodeForToken(ctx context.Context, code string) (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: "token-" + code}, nil
}

func (c *fakeConnector) SetQuantity(ctx context.Context, sku string, quantity int64) error {
	if c.setQuantityErr != nil {
		return c.setQuantityErr
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.quantitiesBySKU == nil {
		c.quantitiesBySKU = make(map[string]int64)
	}
	c.quantitiesBySKU[sku] = quantity

	return nil
}

type memoryCredentialRepository struct {
	mu          sync.Mutex
	credentials map[string]domain.ConnectorCredential
}

func newMemoryCredentialRepository() *memoryCredentialRepository {
	return &memoryCredentialRepository{credentials: make(map[string]domain.ConnectorCredential)}
}

func credentialKey(tenantID string, connectorID string) string {
	return tenantID + "/" + connectorID
}

func (r *memoryCredentialRepository) Upsert(ctx context.Context, credential domain.ConnectorCredential) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := credentialKey(credential.TenantID, credential.ConnectorID)

	if existing, ok := r.credentials[key]; ok && !existing.Status.CanTransitionTo(credential.Status) {
		return domain.ErrIllegalStatusTransition
	}

	credential.Config = domain.SanitizeConfig(credential.Config)
	r.credentials[key] = credential

	return nil
}

func (r *memoryCredentialRepository) Get(ctx context.Context, tenantID string, connectorID string) (domain.ConnectorCredential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	credential, ok := r.credentials[credentialKey(tenantID, connectorID)]
	if !ok {
		return domain.ConnectorCredential{}, domain.ErrCredentialNotFound
	}

	return credential, nil
}

func (r *memoryCredentialRepository) UpdateStatus(ctx context.Context, tenantID string, connectorID string, status domain.CredentialStatus, validatedAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := credentialKey(tenantID, connectorID)

	credential, ok := r.credentials[key]
	if !ok {
		return domain.ErrCredentialNotFound
	}
	if !credential.Status.CanTransitionTo(status) {
		return domain.ErrIllegalStatusTransition
	}

	credential.Status = status
	if validatedAt != nil {
		credential.LastValidatedAt = validatedAt
	}
	r.credentials[key] = credential

	return nil
}

func (r *memoryCredentialRepository) ListConnected(ctx context.Context, tenantID string) ([]domain.ConnectorCredential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var connected []domain.ConnectorCredential
	for _, credential := range r.credentials {
		if credential.TenantID == tenantID && credential.Status == domain.CredentialStatus_Connected {
			connected = append(connected, credential)
		}
	}

	sort.Slice(connected, func(i, j int) bool { return connected[i].ConnectorID < connected[j].ConnectorID })

	return connected, nil
}

type failingSecretStore struct {
	domain.SecretStore
	storeErr error
}

func (s *failingSecretStore) StoreSecret(ctx context.Context, path string, data map[string]string, metadata *domain.SecretMetadata) error {
	if s.storeErr != nil {
		return s.storeErr
	}
	return s.SecretStore.StoreSecret(ctx, path, data, metadata)
}

type fixture struct {
	engine      *engine.Engine
	selector    domain.ConnectorSelector
	secrets     domain.SecretStore
	credentials *memoryCredentialRepository
	knowledge   *knowledge.Builder
	connectors  map[domain.ConnectorKind]*fakeConnector
}

func newFixture(t *testing.T, secretStore domain.SecretStore) *fixture {
	t.Helper()

	if secretStore == nil {
		secretStore = secrets.NewMemoryStore()
	}

	f := &fixture{
		selector:    domain.NewConnectorSelector(),
		secrets:     secretStore,
		credentials: newMemoryCredentialRepository(),
		knowledge:   knowledge.NewBuilder(knowledge.NewMemoryStore(), nil),
		connectors:  make(map[domain.ConnectorKind]*fakeConnector),
	}

	kinds := []domain.ConnectorKind{
		domain.ConnectorKind_HubSpot,
		domain.ConnectorKind_GoogleAnalytics4,
		domain.ConnectorKind_Asana,
		domain.ConnectorKind_Meesho,
		domain.ConnectorKind_Flipkart,
		domain.ConnectorKind_Ajio,
		domain.ConnectorKind_Myntra,
	}

	for _, kind := range kinds {
		kind := kind
		f.connectors[kind] = &fakeConnector{kind: kind}
		f.selector.Register(kind, func(ctx context.Context, p domain.CreateConnectorParams) (domain.Connector, error) {
			return f.connectors[kind], nil
		})
	}

	f.engine = engine.New(engine.Options{})

	workflows := New(NewActivities(ActivityDeps{
		Selector:    f.selector,
		Secrets:     f.secrets,
		Credentials: f.credentials,
		Knowledge:   f.knowledge,
	}))
	workflows.RegisterAll(f.engine)

	return f
}

func (f *fixture) runToCompletion(t *testing.T, p domain.StartWorkflowParams) (any, error) {
	t.Helper()

	_, err := f.engine.StartWorkflow(context.Background(), p)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return f.engine.WaitForCompletion(ctx, p.ID)
}

func TestConnectorSetupHappyPath(t *testing.T) {
	f := newFixture(t, nil)

	params := domain.ConnectorSetupParams{
		ConnectorID: "ga4-main",
		TenantID:    "acme",
		Kind:        domain.ConnectorKind_GoogleAnalytics4,
		Credentials: map[string]string{"api_key": "ga4-key"},
		Config:      map[string]string{"property_id": "1234", "api_key": "must-not-persist"},
	}

	result, err := f.runToCompletion(t, ConnectorSetupStart(params))
	require.NoError(t, err)

	setup, ok := result.(domain.ConnectorSetupResult)
	require.True(t, ok)
	assert.Equal(t, "connected", setup.Status)
	assert.Equal(t, "ga4-main", setup.ConnectorID)

	resources := make([]string, 0, len(setup.SyncSummaries))
	for _, summary := range setup.SyncSummaries {
		assert.Equal(t, "completed", summary.Status)
		resources = append(resources, summary.Resource)
	}
	assert.Equal(t, []string{"metadata", "historical_30d"}, resources)

	credential, err := f.credentials.Get(context.Background(), "acme", "ga4-main")
	require.NoError(t, err)
	assert.Equal(t, domain.CredentialStatus_Connected, credential.Status)
	assert.NotNil(t, credential.LastValidatedAt)
	assert.NotContains(t, credential.Config, "api_key")
	assert.Equal(t, "1234", credential.Config["property_id"])

	secret, err := f.secrets.GetSecret(context.Background(), domain.ConnectorSecretPath("acme", "ga4-main"))
	require.NoError(t, err)
	assert.Equal(t, "ga4-key", secret.Data["api_key"])
}

func TestConnectorSetupInvalidCredentialsPersistsNoSecret(t *testing.T) {
	f := newFixture(t, nil)
	f.connectors[domain.ConnectorKind_HubSpot].rejectCreds = true

	params := domain.ConnectorSetupParams{
		ConnectorID: "hubspot-main",
		TenantID:    "acme",
		Kind:        domain.ConnectorKind_HubSpot,
		Credentials: map[string]string{"api_key": "bad"},
	}

	_, err := f.runToCompletion(t, ConnectorSetupStart(params))
	require.Error(t, err)

	var validationErr *domain.CredentialValidationError
	assert.ErrorAs(t, err, &validationErr)

	_, err = f.secrets.GetSecret(context.Background(), domain.ConnectorSecretPath("acme", "hubspot-main"))
	assert.ErrorIs(t, err, domain.ErrSecretNotFound)

	credential, err := f.credentials.Get(context.Background(), "acme", "hubspot-main")
	require.NoError(t, err)
	assert.Equal(t, domain.CredentialStatus_Error, credential.Status)
}

func TestConnectorSetupSecretFailureNeverConnects(t *testing.T) {
	failing := &failingSecretStore{
		SecretStore: secrets.NewMemoryStore(),
		storeErr:    domain.NewApplicationError("secret_backend_down", "write refused"),
	}
	f := newFixture(t, failing)

	params := domain.ConnectorSetupParams{
		ConnectorID: "hubspot-main",
		TenantID:    "acme",
		Kind:        domain.ConnectorKind_HubSpot,
		Credentials: map[string]string{"api_key": "good"},
	}

	_, err := f.runToCompletion(t, ConnectorSetupStart(params))
	require.Error(t, err)

	credential, getErr := f.credentials.Get(context.Background(), "acme", "hubspot-main")
	require.NoError(t, getErr)
	assert.Equal(t, domain.CredentialStatus_Error, credential.Status)
}

func TestConnectorSetupPartialSyncStillConnects(t *testing.T) {
	f := newFixture(t, nil)

	// Health probe backs every analytics resource sync, so a flaky
	// vendor fails the resources but not the connection itself.
	f.connectors[domain.ConnectorKind_GoogleAnalytics4].healthErr = errors.New("504 upstream timeout")

	params := domain.ConnectorSetupParams{
		ConnectorID: "ga4-main",
		TenantID:    "acme",
		Kind:        domain.ConnectorKind_GoogleAnalytics4,
		Credentials: map[string]string{"api_key": "ga4-key"},
	}

	result, err := f.runToCompletion(t, ConnectorSetupStart(params))
	require.NoError(t, err)

	setup := result.(domain.ConnectorSetupResult)
	assert.Equal(t, "connected", setup.Status)
	for _, summary := range setup.SyncSummaries {
		assert.Equal(t, "failed", summary.Status)
		assert.NotEmpty(t, summary.Error)
	}

	credential, err := f.credentials.Get(context.Background(), "acme", "ga4-main")
	require.NoError(t, err)
	assert.Equal(t, domain.CredentialStatus_Connected, credential.Status)
}

func TestConnectorSetupIdempotentProvisioning(t *testing.T) {
	f := newFixture(t, nil)

	release := make(chan struct{})

	// Hold connector construction open so the second submission lands
	// while the first run is still in flight.
	validating := &fakeConnector{kind: domain.ConnectorKind_HubSpot}
	f.connectors[domain.ConnectorKind_HubSpot] = validating

	blocked := make(chan struct{}, 1)
	f.selector.Register(domain.ConnectorKind_HubSpot, func(ctx context.Context, p domain.CreateConnectorParams) (domain.Connector, error) {
		select {
		case blocked <- struct{}{}:
			<-release
		default:
		}
		return validating, nil
	})

	params := domain.ConnectorSetupParams{
		ConnectorID: "hubspot-main",
		TenantID:    "acme",
		Kind:        domain.ConnectorKind_HubSpot,
		Credentials: map[string]string{"api_key": "good"},
	}
	start := ConnectorSetupStart(params)

	runID1, err := f.engine.StartWorkflow(context.Background(), start)
	require.NoError(t, err)

	<-blocked

	runID2, err := f.engine.StartWorkflow(context.Background(), start)
	require.NoError(t, err)
	assert.Equal(t, runID1, runID2)

	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = f.engine.WaitForCompletion(ctx, start.ID)
	require.NoError(t, err)
}

func TestInventoryLockBroadcastsToEveryTarget(t *testing.T) {
	f := newFixture(t, nil)
	f.connectors[domain.ConnectorKind_Flipkart].setQuantityErr = errors.New("429 too many requests")

	targets := []domain.ConnectorKind{
		domain.ConnectorKind_Meesho,
		domain.ConnectorKind_Flipkart,
		domain.ConnectorKind_Ajio,
	}

	for _, kind := range targets {
		path := domain.ConnectorSecretPath("acme", string(kind))
		require.NoError(t, f.secrets.StoreSecret(context.Background(), path, map[string]string{"api_key": "k"}, nil))
	}

	params := domain.InventoryLockParams{
		TenantID:     "acme",
		SKU:          "SKU-001",
		Quantity:     7,
		Marketplaces: targets,
	}

	result, err := f.runToCompletion(t, InventoryLockStart(params))
	require.NoError(t, err)

	lock := result.(domain.InventoryLockResult)
	assert.Equal(t, "inventory_locked", lock.Status)
	assert.Equal(t, "SKU-001", lock.SKU)
	require.Len(t, lock.Details, len(targets))

	byMarketplace := make(map[domain.ConnectorKind]domain.MarketplaceResult)
	for _, detail := range lock.Details {
		byMarketplace[detail.Marketplace] = detail
	}

	assert.Equal(t, "ok", byMarketplace[domain.ConnectorKind_Meesho].Result)
	assert.Equal(t, "ok", byMarketplace[domain.ConnectorKind_Ajio].Result)
	assert.Equal(t, "failed", byMarketplace[domain.ConnectorKind_Flipkart].Result)
	assert.NotEmpty(t, byMarketplace[domain.ConnectorKind_Flipkart].Error)

	assert.Equal(t, int64(7), f.connectors[domain.ConnectorKind_Meesho].quantitiesBySKU["SKU-001"])
	assert.Equal(t, int64(7), f.connectors[domain.ConnectorKind_Ajio].quantitiesBySKU["SKU-001"])
}

func TestInventoryLockResolvesTenantConnectedTargets(t *testing.T) {
	f := newFixture(t, nil)

	require.NoError(t, f.credentials.Upsert(context.Background(), domain.ConnectorCredential{
		TenantID:    "acme",
		ConnectorID: "meesho-shop",
		Kind:        domain.ConnectorKind_Meesho,
		SecretPath:  domain.ConnectorSecretPath("acme", "meesho-shop"),
		Status:      domain.CredentialStatus_Connected,
	}))
	require.NoError(t, f.credentials.Upsert(context.Background(), domain.ConnectorCredential{
		TenantID:    "acme",
		ConnectorID: "hubspot-main",
		Kind:        domain.ConnectorKind_HubSpot,
		SecretPath:  domain.ConnectorSecretPath("acme", "hubspot-main"),
		Status:      domain.CredentialStatus_Connected,
	}))
	require.NoError(t, f.secrets.StoreSecret(context.Background(),
		domain.ConnectorSecretPath("acme", "meesho-shop"), map[string]string{"api_key": "k"}, nil))

	result, err := f.runToCompletion(t, InventoryLockStart(domain.InventoryLockParams{
		TenantID: "acme",
		SKU:      "SKU-002",
		Quantity: 3,
	}))
	require.NoError(t, err)

	lock := result.(domain.InventoryLockResult)
	require.Len(t, lock.Details, 1)
	assert.Equal(t, domain.ConnectorKind_Meesho, lock.Details[0].Marketplace)
	assert.Equal(t, "ok", lock.Details[0].Result)
}

func TestInventoryLockDefaultsToFullMarketplaceSet(t *testing.T) {
	f := newFixture(t, nil)

	for _, kind := range domain.MarketplaceKinds {
		path := domain.ConnectorSecretPath("acme", string(kind))
		require.NoError(t, f.secrets.StoreSecret(context.Background(), path, map[string]string{"api_key": "k"}, nil))
	}

	result, err := f.runToCompletion(t, InventoryLockStart(domain.InventoryLockParams{
		TenantID: "acme",
		SKU:      "SKU-003",
		Quantity: 1,
	}))
	require.NoError(t, err)

	lock := result.(domain.InventoryLockResult)
	assert.Len(t, lock.Details, len(domain.MarketplaceKinds))
}

func TestKAGExtractionRecordsMentionPairs(t *testing.T) {
	f := newFixture(t, nil)

	result, err := f.runToCompletion(t, KAGExtractionStart(domain.KAGExtractionParams{
		ChunkID:  "chunk-1",
		TenantID: "acme",
		Content:  "Pull the lead from HubSpot, then open a task in Asana for follow-up.",
	}))
	require.NoError(t, err)

	extraction := result.(domain.KAGExtractionResult)
	assert.Equal(t, "completed", extraction.Status)
	assert.Equal(t, 1, extraction.LinksCreated)

	relationship, err := f.knowledge.RecordInteraction(context.Background(), "hubspot", "asana", true)
	require.NoError(t, err)
	assert.Equal(t, 15, relationship.Strength)
	assert.Equal(t, 2, relationship.EvidenceCount)
}

func TestKAGExtractionNoPairIsNoop(t *testing.T) {
	f := newFixture(t, nil)

	result, err := f.runToCompletion(t, KAGExtractionStart(domain.KAGExtractionParams{
		ChunkID:  "chunk-2",
		TenantID: "acme",
		Content:  "HubSpot is the only tool discussed in this chunk.",
	}))
	require.NoError(t, err)

	extraction := result.(domain.KAGExtractionResult)
	assert.Equal(t, 0, extraction.LinksCreated)
}

func TestConnectorDisconnectRemovesSecretAndTerminates(t *testing.T) {
	f := newFixture(t, nil)

	setup := domain.ConnectorSetupParams{
		ConnectorID: "hubspot-main",
		TenantID:    "acme",
		Kind:        domain.ConnectorKind_HubSpot,
		Credentials: map[string]string{"api_key": "good"},
	}
	_, err := f.runToCompletion(t, ConnectorSetupStart(setup))
	require.NoError(t, err)

	result, err := f.runToCompletion(t, ConnectorDisconnectStart(domain.ConnectorDisconnectParams{
		ConnectorID: "hubspot-main",
		TenantID:    "acme",
	}))
	require.NoError(t, err)

	disconnect := result.(domain.ConnectorDisconnectResult)
	assert.Equal(t, "terminated", disconnect.Status)

	credential, err := f.credentials.Get(context.Background(), "acme", "hubspot-main")
	require.NoError(t, err)
	assert.Equal(t, domain.CredentialStatus_Terminated, credential.Status)

	_, err = f.secrets.GetSecret(context.Background(), domain.ConnectorSecretPath("acme", "hubspot-main"))
	assert.ErrorIs(t, err, domain.ErrSecretNotFound)
}

func TestConnectorSetupAfterDisconnectIsRejected(t *testing.T) {
	f := newFixture(t, nil)

	setup := domain.ConnectorSetupParams{
		ConnectorID: "asana-main",
		TenantID:    "acme",
		Kind:        domain.ConnectorKind_Asana,
		Credentials: map[string]string{"access_token": "good"},
	}
	_, err := f.runToCompletion(t, ConnectorSetupStart(setup))
	require.NoError(t, err)

	_, err = f.runToCompletion(t, ConnectorDisconnectStart(domain.ConnectorDisconnectParams{
		ConnectorID: "asana-main",
		TenantID:    "acme",
	}))
	require.NoError(t, err)

	_, err = f.runToCompletion(t, ConnectorSetupStart(setup))
	require.Error(t, err)
	assert.Equal(t, domain.ErrorTypeApplication, domain.ErrorType(err))

	credential, err := f.credentials.Get(context.Background(), "acme", "asana-main")
	require.NoError(t, err)
	assert.Equal(t, domain.CredentialStatus_Terminated, credential.Status)
}

func TestExtractToolMentionsOrderAndDedup(t *testing.T) {
	vocabulary := []domain.ConnectorKind{
		domain.ConnectorKind_HubSpot,
		domain.ConnectorKind_Asana,
		domain.ConnectorKind_Shopify,
	}

	mentions := ExtractToolMentions("shopify order lands, hubspot contact updates, shopify inventory syncs", vocabulary)
	assert.Equal(t, []string{"shopify", "hubspot"}, mentions)

	// Compound tokens are single words, not prefix matches.
	assert.Empty(t, ExtractToolMentions("hubspot_crm export finished", vocabulary))
}
