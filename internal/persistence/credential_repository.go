package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/syncline/syncline/pkg/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormCredentialRepository struct {
	db *gorm.DB
}

func NewGormCredentialRepository(db *gorm.DB) *GormCredentialRepository {
	return &GormCredentialRepository{db: db}
}

// Upsert inserts the credential or, when the row already exists,
// applies it as a status transition. The state machine holds on this
// path too: re-registering a terminated connector or downgrading a
// connected one to pending is rejected, not silently overwritten.
func (r *GormCredentialRepository) Upsert(ctx context.Context, credential domain.ConnectorCredential) error {
	model, err := credentialToModel(credential)
	if err != nil {
		return err
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing ConnectorCredentialModel

		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&existing, "tenant_id = ? AND connector_id = ?", credential.TenantID, credential.ConnectorID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if err := tx.Create(&model).Error; err != nil {
				return fmt.Errorf("failed to insert connector credential: %w", err)
			}

			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read connector credential for upsert: %w", err)
		}

		current := domain.CredentialStatus(existing.Status)
		if !current.CanTransitionTo(credential.Status) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrIllegalStatusTransition, current, credential.Status)
		}

		err = tx.Model(&ConnectorCredentialModel{}).
			Where("tenant_id = ? AND connector_id = ?", credential.TenantID, credential.ConnectorID).
			Updates(map[string]any{
				"kind":              model.Kind,
				"secret_path":       model.SecretPath,
				"status":            model.Status,
				"config_json":       model.ConfigJSON,
				"last_validated_at": model.LastValidatedAt,
				"updated_at":        model.UpdatedAt,
			}).Error
		if err != nil {
			return fmt.Errorf("failed to upsert connector credential: %w", err)
		}

		return nil
	})
}

func (r *GormCredentialRepository) Get(ctx context.Context, tenantID string, connectorID string) (domain.ConnectorCredential, error) {
	var model ConnectorCredentialModel

	err := r.db.WithContext(ctx).
		First(&model, "tenant_id = ? AND connector_id = ?", tenantID, connectorID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ConnectorCredential{}, domain.ErrCredentialNotFound
	}
	if err != nil {
		return domain.ConnectorCredential{}, fmt.Errorf("failed to read connector credential: %w", err)
	}

	return credentialFromModel(model)
}

// UpdateStatus moves the credential through the state machine. The
// transition is checked against the current row inside a transaction
// so an illegal move (for example terminated back to connected) is
// rejected, not silently applied.
func (r *GormCredentialRepository) UpdateStatus(ctx context.Context, tenantID string, connectorID string, status domain.CredentialStatus, validatedAt *time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model ConnectorCredentialModel

		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&model, "tenant_id = ? AND connector_id = ?", tenantID, connectorID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrCredentialNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read connector credential for update: %w", err)
		}

		current := domain.CredentialStatus(model.Status)
		if !current.CanTransitionTo(status) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrIllegalStatusTransition, current, status)
		}

		updates := map[string]any{
			"status":     string(status),
			"updated_at": time.Now().UTC(),
		}
		if validatedAt != nil {
			updates["last_validated_at"] = validatedAt
		}

		err = tx.Model(&ConnectorCredentialModel{}).
			Where("tenant_id = ? AND connector_id = ?", tenantID, connectorID).
			Updates(updates).Error
		if err != nil {
			return fmt.Errorf("failed to update credential status: %w", err)
		}

		return nil
	})
}

func (r *GormCredentialRepository) ListConnected(ctx context.Context, tenantID string) ([]domain.ConnectorCredential, error) {
	var models []ConnectorCredentialModel

	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND status = ?", tenantID, string(domain.CredentialStatus_Connected)).
		Order("connector_id").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list connected credentials: %w", err)
	}

	credentials := make([]domain.ConnectorCredential, 0, len(models))

	for _, model := range models {
		credential, err := credentialFromModel(model)
		if err != nil {
			return nil, err
		}

		credentials = append(credentials, credential)
	}

	return credentials, nil
}

func credentialToModel(credential domain.ConnectorCredential) (ConnectorCredentialModel, error) {
	// Secrets must never leak into this table.
	configJSON, err := json.Marshal(domain.SanitizeConfig(credential.Config))
	if err != nil {
		return ConnectorCredentialModel{}, fmt.Errorf("failed to marshal credential config: %w", err)
	}

	now := time.Now().UTC()

	createdAt := credential.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	return ConnectorCredentialModel{
		TenantID:        credential.TenantID,
		ConnectorID:     credential.ConnectorID,
		Kind:            string(credential.Kind),
		SecretPath:      credential.SecretPath,
		Status:          string(credential.Status),
		ConfigJSON:      configJSON,
		LastValidatedAt: credential.LastValidatedAt,
		CreatedAt:       createdAt,
		UpdatedAt:       now,
	}, nil
}

func credentialFromModel(model ConnectorCredentialModel) (domain.ConnectorCredential, error) {
	config := map[string]string{}

	if len(model.ConfigJSON) > 0 {
		if err := json.Unmarshal(model.ConfigJSON, &config); err != nil {
			return domain.ConnectorCredential{}, fmt.Errorf("failed to unmarshal credential config: %w", err)
		}
	}

	return domain.ConnectorCredential{
		TenantID:        model.TenantID,
		ConnectorID:     model.ConnectorID,
		Kind:            domain.ConnectorKind(model.Kind),
		SecretPath:      model.SecretPath,
		Status:          domain.CredentialStatus(model.Status),
		Config:          config,
		LastValidatedAt: model.LastValidatedAt,
		CreatedAt:       model.CreatedAt,
		UpdatedAt:       model.UpdatedAt,
	}, nil
}
