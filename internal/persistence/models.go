package persistence

import (
	"time"
)

// ConnectorCredentialModel is the connector_credentials row. Config
// holds only sanitized settings; secret material lives exclusively in
// the secret store under SecretPath.
type ConnectorCredentialModel struct {
	TenantID        string `gorm:"primaryKey;size:64"`
	ConnectorID     string `gorm:"primaryKey;size:64"`
	Kind            string `gorm:"size:64"`
	SecretPath      string `gorm:"size:512"`
	Status          string `gorm:"size:16;index"`
	ConfigJSON      []byte
	LastValidatedAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (ConnectorCredentialModel) TableName() string {
	return "connector_credentials"
}

type WorkflowExecutionModel struct {
	ID              string `gorm:"primaryKey;size:32"`
	WorkflowID      string `gorm:"size:256;index"`
	WorkflowName    string `gorm:"size:128"`
	TenantID        string `gorm:"size:64;index"`
	Status          string `gorm:"size:16"`
	StartedAt       time.Time
	CompletedAt     *time.Time
	DurationSeconds float64
	StepsTotal      int
	StepsCompleted  int
	StepsFailed     int
	FailedStep      string `gorm:"size:128"`
	ErrorMessage    string
	CostEstimate    float64
}

func (WorkflowExecutionModel) TableName() string {
	return "workflow_executions"
}

// KnowledgeRelationshipModel is platform-global, not tenant-scoped:
// it records tool affinity, not tenant data.
type KnowledgeRelationshipModel struct {
	ID               uint   `gorm:"primaryKey;autoIncrement"`
	SourceTool       string `gorm:"size:128;uniqueIndex:idx_tool_pair"`
	TargetTool       string `gorm:"size:128;uniqueIndex:idx_tool_pair"`
	RelationshipType string `gorm:"size:64"`
	Strength         int
	EvidenceCount    int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (KnowledgeRelationshipModel) TableName() string {
	return "knowledge_relationships"
}
