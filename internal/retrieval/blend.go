package retrieval

import (
	"sort"
	"time"

	"github.com/maru-labs/maru/internal/docstore"
	"github.com/maru-labs/maru/internal/graphstore"
	"github.com/maru-labs/maru/internal/turn"
)

// blend merges doc and graph results with weighted reciprocal rank fusion,
// deduplicates by ref, and keeps the top-K above the confidence floor.
func (d *Dispatcher) blend(chunks []docstore.Chunk, neighbors []graphstore.Neighbor) []turn.EvidenceItem {
	type scored struct {
		item  turn.EvidenceItem
		score float64
	}

	k := d.config.RRFConstant
	if k <= 0 {
		k = 60
	}

	byRef := make(map[string]*scored)
	ordered := make([]string, 0, len(chunks)+len(neighbors))

	add := func(item turn.EvidenceItem, weight float64, rank int) {
		score := weight / (k + float64(rank+1))
		if existing, ok := byRef[item.Ref]; ok {
			existing.score += score
			return
		}
		byRef[item.Ref] = &scored{item: item, score: score}
		ordered = append(ordered, item.Ref)
	}

	now := time.Now()
	for rank, chunk := range chunks {
		if chunk.Confidence < d.config.ConfidenceFloor {
			continue
		}
		source := turn.SourceDoc
		if chunk.IsPolicy {
			source = turn.SourcePolicy
		}
		freshness := int64(0)
		if !chunk.UpdatedAt.IsZero() {
			freshness = int64(now.Sub(chunk.UpdatedAt).Seconds())
		}
		add(turn.EvidenceItem{
			Source:           source,
			Ref:              chunk.ChunkID,
			Payload:          chunk.Text,
			Confidence:       chunk.Confidence,
			FreshnessSeconds: freshness,
		}, d.config.DocWeight, rank)
	}

	for rank, n := range neighbors {
		add(turn.EvidenceItem{
			Source:     turn.SourceGraph,
			Ref:        n.Ref,
			Payload:    n.Relationship + ": " + n.Summary,
			Confidence: 0.7,
		}, d.config.GraphWeight, rank)
	}

	results := make([]*scored, 0, len(byRef))
	for _, ref := range ordered {
		results = append(results, byRef[ref])
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})

	limit := d.config.TopK
	if limit <= 0 || limit > len(results) {
		limit = len(results)
	}

	items := make([]turn.EvidenceItem, 0, limit)
	for _, s := range results[:limit] {
		items = append(items, s.item)
	}
	return items
}
