package persistence

import (
	"fmt"

	"github.com/syncline/syncline/internal/secrets"

	"gorm.io/gorm"
)

// Migrate brings the relational schema up to date. Safe to run on
// every startup.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&ConnectorCredentialModel{},
		&WorkflowExecutionModel{},
		&KnowledgeRelationshipModel{},
		&secrets.SecretRecord{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	return nil
}
