package prediction

import (
	"context"
	"fmt"
	"math"
	"time"

	"getrader/internal/decision"
	"getrader/internal/logger"
	"getrader/internal/market"
)

// Hooks lets callers observe gateway traffic without the gateway knowing
// about metrics.
type Hooks struct {
	Served func(source string)
	Failed func(backend string, err error)
}

// Gateway tries each backend in order and falls back to StaticBackend, so
// Predict always returns a usable prediction.
type Gateway struct {
	backends []Backend
	timeout  time.Duration
	hooks    Hooks
}

func NewGateway(timeout time.Duration, backends ...Backend) *Gateway {
	var chain []Backend
	for _, b := range backends {
		if b != nil {
			chain = append(chain, b)
		}
	}
	return &Gateway{backends: chain, timeout: timeout}
}

func (g *Gateway) SetHooks(h Hooks) { g.hooks = h }

// Backends returns the configured chain names, static excluded.
func (g *Gateway) Backends() []string {
	names := make([]string, 0, len(g.backends))
	for _, b := range g.backends {
		names = append(names, b.Name())
	}
	return names
}

func (g *Gateway) Predict(ctx context.Context, st market.MarketState) Prediction {
	for _, b := range g.backends {
		p, err := g.call(ctx, b, st)
		if err != nil {
			logger.Debugf("[prediction] %s failed for item %s: %v", b.Name(), st.ItemID, err)
			if g.hooks.Failed != nil {
				g.hooks.Failed(b.Name(), err)
			}
			continue
		}
		return g.served(normalize(p, b.Name()))
	}
	p, _ := StaticBackend{}.Predict(ctx, st)
	return g.served(normalize(p, SourceStatic))
}

func (g *Gateway) served(p Prediction) Prediction {
	if g.hooks.Served != nil {
		g.hooks.Served(p.Source)
	}
	return p
}

func (g *Gateway) call(ctx context.Context, b Backend, st market.MarketState) (p Prediction, err error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("backend %s panic: %v", b.Name(), r)
		}
	}()
	return b.Predict(ctx, st)
}

// Feedback routes a settled outcome to the backend that produced the
// prediction, when that backend learns.
func (g *Gateway) Feedback(source string, st market.MarketState, action decision.ActionType, reward float64) {
	for _, b := range g.backends {
		if b.Name() != source {
			continue
		}
		if fr, ok := b.(FeedbackReceiver); ok {
			fr.Feedback(st, action, reward)
		}
		return
	}
}

func normalize(p Prediction, source string) Prediction {
	if !p.Action.Valid() {
		p.Action = decision.ActionHold
	}
	if math.IsNaN(p.Confidence) {
		p.Confidence = 0
	}
	p.Confidence = math.Max(0, math.Min(1, p.Confidence))
	if p.Source == "" {
		p.Source = source
	}
	if p.Quantity < 0 {
		p.Quantity = 0
	}
	return p
}
