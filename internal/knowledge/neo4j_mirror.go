package knowledge

import (
	"context"
	"fmt"

	"github.com/syncline/syncline/pkg/domain"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jMirror keeps a labeled-property-graph copy of the knowledge
// relationships for traversal queries. Every write is a MERGE keyed on
// the (source, target) pair, so the mirror converges no matter how
// often an edge is replayed.
type Neo4jMirror struct {
	driver neo4j.DriverWithContext
}

func NewNeo4jMirror(driver neo4j.DriverWithContext) *Neo4jMirror {
	return &Neo4jMirror{driver: driver}
}

func (m *Neo4jMirror) UpsertRelationship(ctx context.Context, relationship domain.ToolRelationship) error {
	session := m.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := `
		MERGE (s:Tool {name: $source})
		MERGE (t:Tool {name: $target})
		MERGE (s)-[r:USED_WITH {type: $type}]->(t)
		SET r.strength = $strength,
		    r.evidence_count = $evidence,
		    r.updated_at = datetime($updatedAt)
	`

	_, err := session.Run(ctx, query, map[string]any{
		"source":    relationship.SourceTool,
		"target":    relationship.TargetTool,
		"type":      relationship.RelationshipType,
		"strength":  relationship.Strength,
		"evidence":  relationship.EvidenceCount,
		"updatedAt": relationship.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrGraphUnavailable, err)
	}

	return nil
}

func (m *Neo4jMirror) RelatedTools(ctx context.Context, tool string, minStrength int) ([]string, error) {
	session := m.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := `
		MATCH (s:Tool {name: $tool})-[r:USED_WITH*1..2]-(related:Tool)
		WHERE ALL(rel IN r WHERE rel.strength >= $minStrength) AND related.name <> $tool
		RETURN DISTINCT related.name AS name
	`

	result, err := session.Run(ctx, query, map[string]any{
		"tool":        tool,
		"minStrength": minStrength,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGraphUnavailable, err)
	}

	var related []string

	for result.Next(ctx) {
		record := result.Record()

		name, ok := record.Get("name")
		if !ok {
			continue
		}

		if nameStr, ok := name.(string); ok {
			related = append(related, nameStr)
		}
	}

	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGraphUnavailable, err)
	}

	return related, nil
}

func (m *Neo4jMirror) Reset(ctx context.Context) error {
	session := m.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.Run(ctx, `MATCH (t:Tool) DETACH DELETE t`, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrGraphUnavailable, err)
	}

	return nil
}
