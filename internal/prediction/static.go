package prediction

import (
	"context"

	"getrader/internal/decision"
	"getrader/internal/market"
)

const staticConfidence = 0.1

// StaticBackend is the last resort of the chain: it always answers HOLD.
type StaticBackend struct{}

func (StaticBackend) Name() string { return SourceStatic }

func (StaticBackend) Predict(_ context.Context, st market.MarketState) (Prediction, error) {
	return Prediction{
		Action:     decision.ActionHold,
		Confidence: staticConfidence,
		QValues:    [3]float64{0, staticConfidence, 0},
		Source:     SourceStatic,
		Reasoning:  "no model backend available for item " + st.ItemID + ", holding",
	}, nil
}
