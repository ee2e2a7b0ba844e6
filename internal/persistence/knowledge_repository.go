package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/syncline/syncline/pkg/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormKnowledgeRepository struct {
	db *gorm.DB
}

func NewGormKnowledgeRepository(db *gorm.DB) *GormKnowledgeRepository {
	return &GormKnowledgeRepository{db: db}
}

// ApplyInteraction folds one observation into the (source, target)
// edge. The read-modify-write runs under a row lock inside a
// transaction, so concurrent reports for the same pair serialize
// instead of losing updates. First-writer-wins on the unique pair
// index covers the create race: the loser retries as an update.
func (r *GormKnowledgeRepository) ApplyInteraction(ctx context.Context, source string, target string, success bool) (domain.ToolRelationship, error) {
	relationship, err := r.applyInteractionOnce(ctx, source, target, success)
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		relationship, err = r.applyInteractionOnce(ctx, source, target, success)
	}
	if err != nil {
		return domain.ToolRelationship{}, err
	}

	return relationship, nil
}

func (r *GormKnowledgeRepository) applyInteractionOnce(ctx context.Context, source string, target string, success bool) (domain.ToolRelationship, error) {
	var relationship domain.ToolRelationship

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model KnowledgeRelationshipModel

		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&model, "source_tool = ? AND target_tool = ?", source, target).Error

		if errors.Is(err, gorm.ErrRecordNotFound) {
			relationship = domain.NewToolRelationship(source, target)

			model = relationshipToModel(relationship)
			if err := tx.Create(&model).Error; err != nil {
				return err
			}

			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read knowledge relationship: %w", err)
		}

		relationship = relationshipFromModel(model)
		relationship.Apply(success)

		err = tx.Model(&KnowledgeRelationshipModel{}).
			Where("id = ?", model.ID).
			Updates(map[string]any{
				"strength":       relationship.Strength,
				"evidence_count": relationship.EvidenceCount,
				"updated_at":     relationship.UpdatedAt,
			}).Error
		if err != nil {
			return fmt.Errorf("failed to update knowledge relationship: %w", err)
		}

		return nil
	})
	if err != nil {
		return domain.ToolRelationship{}, err
	}

	return relationship, nil
}

func (r *GormKnowledgeRepository) GetRelationship(ctx context.Context, source string, target string) (domain.ToolRelationship, error) {
	var model KnowledgeRelationshipModel

	err := r.db.WithContext(ctx).
		First(&model, "source_tool = ? AND target_tool = ?", source, target).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ToolRelationship{}, domain.ErrRelationshipNotFound
	}
	if err != nil {
		return domain.ToolRelationship{}, fmt.Errorf("failed to read knowledge relationship: %w", err)
	}

	return relationshipFromModel(model), nil
}

func (r *GormKnowledgeRepository) ListRelationships(ctx context.Context, minStrength int) ([]domain.ToolRelationship, error) {
	var models []KnowledgeRelationshipModel

	err := r.db.WithContext(ctx).
		Where("strength >= ?", minStrength).
		Order("strength DESC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list knowledge relationships: %w", err)
	}

	relationships := make([]domain.ToolRelationship, 0, len(models))
	for _, model := range models {
		relationships = append(relationships, relationshipFromModel(model))
	}

	return relationships, nil
}

// RelatedTools is the relational-only traversal used when the graph
// mirror is unreachable: direct neighbors in both directions plus
// second-hop neighbors through a self-join.
func (r *GormKnowledgeRepository) RelatedTools(ctx context.Context, tool string, minStrength int) ([]string, error) {
	var direct []string

	err := r.db.WithContext(ctx).
		Model(&KnowledgeRelationshipModel{}).
		Select("target_tool").
		Where("source_tool = ? AND strength >= ?", tool, minStrength).
		Pluck("target_tool", &direct).Error
	if err != nil {
		return nil, fmt.Errorf("failed to traverse relationships: %w", err)
	}

	var inbound []string

	err = r.db.WithContext(ctx).
		Model(&KnowledgeRelationshipModel{}).
		Select("source_tool").
		Where("target_tool = ? AND strength >= ?", tool, minStrength).
		Pluck("source_tool", &inbound).Error
	if err != nil {
		return nil, fmt.Errorf("failed to traverse relationships: %w", err)
	}

	var secondHop []string

	err = r.db.WithContext(ctx).
		Table("knowledge_relationships AS a").
		Select("DISTINCT b.target_tool").
		Joins("JOIN knowledge_relationships AS b ON a.target_tool = b.source_tool").
		Where("a.source_tool = ? AND a.strength >= ? AND b.strength >= ? AND b.target_tool <> ?", tool, minStrength, minStrength, tool).
		Pluck("b.target_tool", &secondHop).Error
	if err != nil {
		return nil, fmt.Errorf("failed to traverse second hop: %w", err)
	}

	return dedupeStrings(append(append(direct, inbound...), secondHop...)), nil
}

func dedupeStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, value := range values {
		if _, ok := seen[value]; ok {
			continue
		}

		seen[value] = struct{}{}
		result = append(result, value)
	}

	return result
}

func relationshipToModel(relationship domain.ToolRelationship) KnowledgeRelationshipModel {
	return KnowledgeRelationshipModel{
		SourceTool:       relationship.SourceTool,
		TargetTool:       relationship.TargetTool,
		RelationshipType: relationship.RelationshipType,
		Strength:         relationship.Strength,
		EvidenceCount:    relationship.EvidenceCount,
		CreatedAt:        relationship.CreatedAt,
		UpdatedAt:        relationship.UpdatedAt,
	}
}

func relationshipFromModel(model KnowledgeRelationshipModel) domain.ToolRelationship {
	return domain.ToolRelationship{
		SourceTool:       model.SourceTool,
		TargetTool:       model.TargetTool,
		RelationshipType: model.RelationshipType,
		Strength:         model.Strength,
		EvidenceCount:    model.EvidenceCount,
		CreatedAt:        model.CreatedAt,
		UpdatedAt:        model.UpdatedAt,
	}
}
