package knowledge

import (
	"context"
	"fmt"

	"github.com/syncline/syncline/pkg/domain"

	"github.com/rs/zerolog/log"
)

// Builder records tool-to-tool interaction outcomes. The relational
// store is the source of truth; the graph mirror is written
// opportunistically and its unavailability never fails a recording.
type Builder struct {
	store  domain.KnowledgeStore
	mirror domain.GraphMirror
}

func NewBuilder(store domain.KnowledgeStore, mirror domain.GraphMirror) *Builder {
	return &Builder{
		store:  store,
		mirror: mirror,
	}
}

func (b *Builder) RecordInteraction(ctx context.Context, source string, target string, success bool) (domain.ToolRelationship, error) {
	relationship, err := b.store.ApplyInteraction(ctx, source, target, success)
	if err != nil {
		return domain.ToolRelationship{}, fmt.Errorf("failed to record interaction: %w", err)
	}

	if b.mirror != nil {
		if err := b.mirror.UpsertRelationship(ctx, relationship); err != nil {
			log.Warn().Err(err).
				Str("source", source).
				Str("target", target).
				Msg("Graph mirror write failed, continuing relational-only")
		}
	}

	return relationship, nil
}

// RelatedTools prefers the graph mirror for traversal and degrades to
// the relational self-join when the mirror is down or absent.
func (b *Builder) RelatedTools(ctx context.Context, tool string, minStrength int) ([]string, error) {
	if b.mirror != nil {
		related, err := b.mirror.RelatedTools(ctx, tool, minStrength)
		if err == nil {
			return related, nil
		}

		log.Warn().Err(err).Str("tool", tool).Msg("Graph mirror traversal failed, using relational fallback")
	}

	return b.store.RelatedTools(ctx, tool, minStrength)
}

// RebuildMirror reconstructs the graph mirror from the relational
// table. The mirror holds no independent state, so a full reset and
// replay is always safe.
func (b *Builder) RebuildMirror(ctx context.Context) (int, error) {
	if b.mirror == nil {
		return 0, domain.ErrGraphUnavailable
	}

	if err := b.mirror.Reset(ctx); err != nil {
		return 0, fmt.Errorf("failed to reset graph mirror: %w", err)
	}

	relationships, err := b.store.ListRelationships(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to list relationships for rebuild: %w", err)
	}

	rebuilt := 0

	for _, relationship := range relationships {
		if err := b.mirror.UpsertRelationship(ctx, relationship); err != nil {
			return rebuilt, fmt.Errorf("failed to mirror %s -> %s: %w", relationship.SourceTool, relationship.TargetTool, err)
		}

		rebuilt++
	}

	return rebuilt, nil
}
