package workflows

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/syncline/syncline/internal/engine"
	"github.com/syncline/syncline/pkg/domain"
)

var wordPattern = regexp.MustCompile(`[a-z0-9_]+`)

// ExtractToolMentions scans chunk content for known tool names and
// returns them ordered by first occurrence, deduplicated. Matching is
// case-insensitive on whole word tokens only; a compound token such as
// "hubspot_crm" is one token and does not count as a hubspot mention.
func ExtractToolMentions(content string, vocabulary []domain.ConnectorKind) []string {
	known := make(map[string]string, len(vocabulary))
	for _, kind := range vocabulary {
		known[strings.ToLower(string(kind))] = string(kind)
	}

	var mentions []string
	seen := make(map[string]bool)

	for _, token := range wordPattern.FindAllString(strings.ToLower(content), -1) {
		tool, ok := known[token]
		if !ok {
			continue
		}
		if seen[tool] {
			continue
		}

		seen[tool] = true
		mentions = append(mentions, tool)
	}

	return mentions
}

// KAGExtraction mines one knowledge chunk for tool co-use and feeds
// the knowledge graph. Tools mentioned together in a chunk form an
// emergent workflow trace: each consecutive mention pair becomes one
// successful interaction, ordered source before target by appearance.
func (w *Workflows) KAGExtraction(wc *engine.Context, args any) (any, error) {
	p, ok := args.(domain.KAGExtractionParams)
	if !ok {
		return nil, domain.NewApplicationError("bad_arguments", fmt.Sprintf("kag extraction got %T", args))
	}

	logger := wc.Logger().With().
		Str("tenant_id", p.TenantID).
		Str("chunk_id", p.ChunkID).
		Logger()

	mentions := ExtractToolMentions(p.Content, w.activities.selector.Kinds())
	if len(mentions) < 2 {
		logger.Debug().Int("mentions", len(mentions)).Msg("Chunk holds no tool pair, nothing to record")

		return domain.KAGExtractionResult{
			Status:  "completed",
			ChunkID: p.ChunkID,
		}, nil
	}

	wc.SetTotalSteps(len(mentions) - 1)

	linksCreated := 0

	for i := 0; i < len(mentions)-1; i++ {
		source, target := mentions[i], mentions[i+1]

		_, err := engine.ExecuteActivity(wc, fmt.Sprintf("record_pair_%s_%s", source, target), engine.ActivityOptions{
			Timeout:     10 * time.Second,
			RetryPolicy: domain.DefaultRetryPolicy(),
		}, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, w.activities.RecordToolPair(ctx, source, target)
		})
		if err != nil {
			return nil, err
		}

		linksCreated++
	}

	logger.Info().Int("links_created", linksCreated).Msg("Knowledge chunk extracted")

	return domain.KAGExtractionResult{
		Status:       "completed",
		ChunkID:      p.ChunkID,
		LinksCreated: linksCreated,
	}, nil
}
