package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrRelationshipNotFound = errors.New("knowledge relationship not found")

	// ErrGraphUnavailable marks the graph mirror as unreachable. It
	// never fails a recording operation; callers degrade to the
	// relational path.
	ErrGraphUnavailable = errors.New("graph store unavailable")
)

const (
	RelationshipType_EmergentWorkflow = "emergent_workflow"

	// Strength deltas for the co-usage score. The score has no upper
	// bound; unbounded growth is kept as a ranking signal.
	RelationshipInitialStrength = 10
	RelationshipSuccessReward   = 5
	RelationshipFailurePenalty  = 10
	RelationshipInitialEvidence = 1
)

// ToolRelationship is a platform-global edge recording that two tools
// are used together productively. Unique per (source, target) pair;
// never hard-deleted, a cold edge just decays toward zero.
type ToolRelationship struct {
	SourceTool       string
	TargetTool       string
	RelationshipType string
	Strength         int
	EvidenceCount    int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func NewToolRelationship(source string, target string) ToolRelationship {
	now := time.Now().UTC()

	return ToolRelationship{
		SourceTool:       source,
		TargetTool:       target,
		RelationshipType: RelationshipType_EmergentWorkflow,
		Strength:         RelationshipInitialStrength,
		EvidenceCount:    RelationshipInitialEvidence,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Apply folds one observed interaction into the edge. Strength is
// clamped at a floor of zero, never negative.
func (r *ToolRelationship) Apply(success bool) {
	if success {
		r.Strength += RelationshipSuccessReward
	} else {
		r.Strength -= RelationshipFailurePenalty
		if r.Strength < 0 {
			r.Strength = 0
		}
	}

	r.EvidenceCount++
	r.UpdatedAt = time.Now().UTC()
}

// KnowledgeStore is the relational side of the knowledge graph and its
// source of truth. ApplyInteraction must be atomic per (source,
// target): concurrent reports for the same pair must not lose updates.
type KnowledgeStore interface {
	ApplyInteraction(ctx context.Context, source string, target string, success bool) (ToolRelationship, error)
	GetRelationship(ctx context.Context, source string, target string) (ToolRelationship, error)
	ListRelationships(ctx context.Context, minStrength int) ([]ToolRelationship, error)
	RelatedTools(ctx context.Context, tool string, minStrength int) ([]string, error)
}

// GraphMirror is the derived labeled-property-graph copy used for
// traversal queries. It holds no independent state and must be fully
// reconstructable from the relational table.
type GraphMirror interface {
	UpsertRelationship(ctx context.Context, relationship ToolRelationship) error
	RelatedTools(ctx context.Context, tool string, minStrength int) ([]string, error)
	Reset(ctx context.Context) error
}

type KnowledgeRecorder interface {
	RecordInteraction(ctx context.Context, source string, target string, success bool) (ToolRelationship, error)
}
