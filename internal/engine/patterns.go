package engine

import (
	"context"
	"math"
	"sort"

	"getrader/internal/analysis/pattern"
)

// MarketPatterns runs the pattern analyzer over the current feed. Items
// are ordered by absolute trend slope, steepest first.
func (e *Engine) MarketPatterns(ctx context.Context) ([]pattern.Result, error) {
	items, err := e.deps.Feed.Items(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]pattern.Result, 0, len(items))
	for _, it := range items {
		out = append(out, pattern.Analyze(it))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return math.Abs(out[i].SlopePercent) > math.Abs(out[j].SlopePercent)
	})
	return out, nil
}

