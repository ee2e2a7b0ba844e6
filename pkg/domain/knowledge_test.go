package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewToolRelationship(t *testing.T) {
	rel := NewToolRelationship("hubspot", "shopify")

	assert.Equal(t, "hubspot", rel.SourceTool)
	assert.Equal(t, "shopify", rel.TargetTool)
	assert.Equal(t, RelationshipType_EmergentWorkflow, rel.RelationshipType)
	assert.Equal(t, 10, rel.Strength)
	assert.Equal(t, 1, rel.EvidenceCount)
}

func TestToolRelationshipApply(t *testing.T) {
	t.Run("success strengthens the edge", func(t *testing.T) {
		rel := NewToolRelationship("a", "b")
		rel.Apply(true)

		assert.Equal(t, 15, rel.Strength)
		assert.Equal(t, 2, rel.EvidenceCount)
	})

	t.Run("failure weakens the edge with a floor of zero", func(t *testing.T) {
		rel := NewToolRelationship("a", "b")
		rel.Apply(false)

		assert.Equal(t, 0, rel.Strength)
		assert.Equal(t, 2, rel.EvidenceCount)
	})

	t.Run("strength never goes negative", func(t *testing.T) {
		rel := NewToolRelationship("a", "b")
		rel.Strength = 3

		rel.Apply(false)

		assert.Equal(t, 0, rel.Strength)
	})

	t.Run("evidence keeps accumulating past the floor", func(t *testing.T) {
		rel := NewToolRelationship("a", "b")

		rel.Apply(false)
		rel.Apply(false)
		rel.Apply(true)

		assert.Equal(t, 5, rel.Strength)
		assert.Equal(t, 4, rel.EvidenceCount)
	})
}
