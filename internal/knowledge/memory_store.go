package knowledge

import (
	"context"
	"sort"
	"sync"

	"github.com/syncline/syncline/pkg/domain"
)

// MemoryStore is the in-memory KnowledgeStore backend. The single
// mutex serializes read-modify-write per process, matching the row
// lock the relational backend takes per edge.
type MemoryStore struct {
	mu    sync.Mutex
	edges map[[2]string]domain.ToolRelationship
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		edges: make(map[[2]string]domain.ToolRelationship),
	}
}

func (s *MemoryStore) ApplyInteraction(ctx context.Context, source string, target string, success bool) (domain.ToolRelationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := [2]string{source, target}

	relationship, ok := s.edges[key]
	if !ok {
		relationship = domain.NewToolRelationship(source, target)
		s.edges[key] = relationship

		return relationship, nil
	}

	relationship.Apply(success)
	s.edges[key] = relationship

	return relationship, nil
}

func (s *MemoryStore) GetRelationship(ctx context.Context, source string, target string) (domain.ToolRelationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	relationship, ok := s.edges[[2]string{source, target}]
	if !ok {
		return domain.ToolRelationship{}, domain.ErrRelationshipNotFound
	}

	return relationship, nil
}

func (s *MemoryStore) ListRelationships(ctx context.Context, minStrength int) ([]domain.ToolRelationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	relationships := []domain.ToolRelationship{}

	for _, relationship := range s.edges {
		if relationship.Strength >= minStrength {
			relationships = append(relationships, relationship)
		}
	}

	sort.Slice(relationships, func(i, j int) bool {
		return relationships[i].Strength > relationships[j].Strength
	})

	return relationships, nil
}

func (s *MemoryStore) RelatedTools(ctx context.Context, tool string, minStrength int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := map[string]struct{}{}
	related := []string{}

	add := func(name string) {
		if name == tool {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}

		seen[name] = struct{}{}
		related = append(related, name)
	}

	for key, relationship := range s.edges {
		if relationship.Strength < minStrength {
			continue
		}

		if key[0] == tool {
			add(key[1])

			// Second hop through the direct neighbor.
			for nextKey, next := range s.edges {
				if nextKey[0] == key[1] && next.Strength >= minStrength {
					add(nextKey[1])
				}
			}
		}

		if key[1] == tool {
			add(key[0])
		}
	}

	sort.Strings(related)

	return related, nil
}
