package visual

import (
	"testing"
	"time"

	"getrader/internal/decision"
	"getrader/internal/tracker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func outcomes(profits ...float64) []tracker.TradeOutcome {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	out := make([]tracker.TradeOutcome, len(profits))
	for i, p := range profits {
		out[i] = tracker.TradeOutcome{
			ItemID:      "4151",
			Action:      decision.Action{Type: decision.ActionBuy},
			Profit:      p,
			CompletedAt: base.Add(time.Duration(i) * time.Minute),
		}
	}
	return out
}

func TestEquitySeries(t *testing.T) {
	equity, drawdown := equitySeries(outcomes(100, -50, 200, -300))
	assert.Equal(t, []float64{100, 50, 250, -50}, equity)
	assert.Equal(t, []float64{0, -50, 0, -300}, drawdown)
}

func TestRenderEquityHTML(t *testing.T) {
	html, err := RenderEquityHTML(EquityInput{Title: "session abc", Outcomes: outcomes(120, -40)})
	require.NoError(t, err)
	body := string(html)
	assert.Contains(t, body, "echarts")
	assert.Contains(t, body, "session abc")
	assert.Contains(t, body, "Per-trade profit")

	_, err = RenderEquityHTML(EquityInput{})
	assert.Error(t, err)
}
