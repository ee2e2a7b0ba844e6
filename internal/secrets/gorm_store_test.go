package secrets

import (
	"bytes"
	"context"
	"testing"

	"github.com/syncline/syncline/pkg/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestGormStore(t *testing.T) *GormStore {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&SecretRecord{}))

	store, err := NewGormStore(db, bytes.Repeat([]byte{0x42}, 32))
	require.NoError(t, err)

	return store
}

func TestGormStoreRejectsShortKey(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	_, err = NewGormStore(db, []byte("too-short"))
	assert.Error(t, err)
}

func TestGormStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestGormStore(t)

	path := domain.ConnectorSecretPath("acme", "google_analytics_4")
	data := map[string]string{"client_secret": "cs", "refresh_token": "rt"}

	require.NoError(t, store.StoreSecret(ctx, path, data, &domain.SecretMetadata{
		Tags: map[string]string{"kind": "google_analytics_4"},
	}))

	secret, err := store.GetSecret(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, data, secret.Data)
	assert.Equal(t, "google_analytics_4", secret.Metadata.Tags["kind"])

	_, err = store.GetSecret(ctx, "tenants/acme/connectors/missing")
	assert.ErrorIs(t, err, domain.ErrSecretNotFound)
}

func TestGormStoreUpsertOverwrites(t *testing.T) {
	ctx := context.Background()
	store := newTestGormStore(t)

	path := domain.ConnectorSecretPath("acme", "hubspot")

	require.NoError(t, store.StoreSecret(ctx, path, map[string]string{"api_key": "v1"}, nil))
	require.NoError(t, store.StoreSecret(ctx, path, map[string]string{"api_key": "v2"}, nil))

	secret, err := store.GetSecret(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "v2", secret.Data["api_key"])
}

func TestGormStoreRotateIsDurablyReadable(t *testing.T) {
	ctx := context.Background()
	store := newTestGormStore(t)

	path := domain.ConnectorSecretPath("acme", "shopify")

	require.NoError(t, store.StoreSecret(ctx, path, map[string]string{"token": "old"}, nil))
	require.NoError(t, store.RotateSecret(ctx, path, map[string]string{"token": "new"}))

	secret, err := store.GetSecret(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "new", secret.Data["token"])

	err = store.RotateSecret(ctx, "tenants/acme/connectors/missing", map[string]string{"token": "x"})
	assert.ErrorIs(t, err, domain.ErrSecretNotFound)
}
