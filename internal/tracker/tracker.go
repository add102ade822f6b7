package tracker

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"getrader/internal/decision"
	"getrader/internal/logger"
	"getrader/internal/market"
)

type activeTrade struct {
	tradeID    string
	sessionID  string
	decisionID string
	action     decision.Action
	state      market.MarketState
	price      float64
	riskScore  float64
	startedAt  time.Time
}

type aggregates struct {
	totalProfit     float64
	totalLoss       float64
	peakProfit      float64
	currentDrawdown float64
	maxDrawdown     float64
}

// Tracker owns the active trade table and the append-only outcome ledger of
// one session. All methods are safe for concurrent use.
type Tracker struct {
	mu     sync.Mutex
	cfg    Config
	active map[string]*activeTrade
	ledger []TradeOutcome
	agg    aggregates
	sink   OutcomeSink
	now    func() time.Time
}

func New(cfg Config, sink OutcomeSink) *Tracker {
	return &Tracker{
		cfg:    cfg.withDefaults(),
		active: make(map[string]*activeTrade),
		sink:   sink,
		now:    time.Now,
	}
}

// StartTrade registers an executed decision. The entry price is the action
// price, or the state's mid price when the action carries none.
func (t *Tracker) StartTrade(tradeID, sessionID, decisionID string, action decision.Action, state market.MarketState) error {
	if tradeID == "" {
		return fmt.Errorf("trade id is required")
	}
	price := action.Price
	if price <= 0 {
		price = state.MidPrice
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.active[tradeID]; ok {
		return fmt.Errorf("%w: %s", ErrTradeActive, tradeID)
	}
	t.active[tradeID] = &activeTrade{
		tradeID:    tradeID,
		sessionID:  sessionID,
		decisionID: decisionID,
		action:     action,
		state:      state,
		price:      price,
		riskScore:  RiskScore(action.Type, state),
		startedAt:  t.now(),
	}
	return nil
}

// CompleteTrade settles an active trade and appends it to the ledger. A
// non-positive finalPrice falls back to the final state's mid price.
func (t *Tracker) CompleteTrade(ctx context.Context, tradeID string, finalPrice float64, finalState market.MarketState, success bool) (TradeOutcome, error) {
	if finalPrice <= 0 {
		finalPrice = finalState.MidPrice
	}
	t.mu.Lock()
	tr, ok := t.active[tradeID]
	if !ok {
		t.mu.Unlock()
		return TradeOutcome{}, fmt.Errorf("%w: %s", ErrTradeNotFound, tradeID)
	}
	delete(t.active, tradeID)

	now := t.now()
	profit := t.profitOf(tr, finalPrice, success)
	out := TradeOutcome{
		TradeID:         tr.tradeID,
		DecisionID:      tr.decisionID,
		SessionID:       tr.sessionID,
		ItemID:          tr.state.ItemID,
		Action:          tr.action,
		InitialState:    tr.state,
		FinalState:      finalState,
		InitialPrice:    tr.price,
		FinalPrice:      finalPrice,
		Success:         success,
		Profit:          profit,
		DurationMs:      now.Sub(tr.startedAt).Milliseconds(),
		RiskScore:       tr.riskScore,
		RiskRewardRatio: riskReward(profit, tr.riskScore, tr.price*float64(quantity(tr.action))),
		StartedAt:       tr.startedAt,
		CompletedAt:     now,
	}
	t.ledger = append(t.ledger, out)
	t.record(profit)
	sink := t.sink
	t.mu.Unlock()

	if sink != nil {
		if err := sink.SaveTradeOutcome(ctx, out); err != nil {
			logger.Warnf("[tracker] persist outcome %s failed: %v", tradeID, err)
		}
	}
	return out, nil
}

// CancelTrade drops an active trade without settling it.
func (t *Tracker) CancelTrade(tradeID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.active[tradeID]; !ok {
		return false
	}
	delete(t.active, tradeID)
	return true
}

// CancelAll drops every active trade and returns how many were dropped.
func (t *Tracker) CancelAll() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.active)
	t.active = make(map[string]*activeTrade)
	return n
}

func (t *Tracker) ActiveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}

// Outcomes returns a copy of the ledger, oldest first.
func (t *Tracker) Outcomes() []TradeOutcome {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TradeOutcome, len(t.ledger))
	copy(out, t.ledger)
	return out
}

// EquityCurve returns the cumulative profit after each settled trade.
func (t *Tracker) EquityCurve() []EquityPoint {
	t.mu.Lock()
	defer t.mu.Unlock()
	points := make([]EquityPoint, 0, len(t.ledger))
	cum := 0.0
	for _, o := range t.ledger {
		cum += o.Profit
		points = append(points, EquityPoint{Time: o.CompletedAt, Cumulative: cum})
	}
	return points
}

func (t *Tracker) profitOf(tr *activeTrade, finalPrice float64, success bool) float64 {
	if !success {
		return -t.cfg.FailurePenalty
	}
	qty := float64(quantity(tr.action))
	var gross float64
	switch tr.action.Type {
	case decision.ActionBuy:
		gross = (finalPrice - tr.price) * qty
	case decision.ActionSell:
		gross = (tr.price - finalPrice) * qty
	default:
		return t.cfg.HoldReward
	}
	return gross - math.Abs(gross)*t.cfg.FeeRate
}

// record updates running aggregates. Caller holds t.mu.
func (t *Tracker) record(profit float64) {
	switch {
	case profit > 0:
		t.agg.totalProfit += profit
		t.agg.currentDrawdown = 0
	case profit < 0:
		t.agg.totalLoss += -profit
		t.agg.currentDrawdown += -profit
		if t.agg.currentDrawdown > t.agg.maxDrawdown {
			t.agg.maxDrawdown = t.agg.currentDrawdown
		}
	}
	if net := t.agg.totalProfit - t.agg.totalLoss; net > t.agg.peakProfit {
		t.agg.peakProfit = net
	}
}

func quantity(a decision.Action) int {
	if a.Quantity <= 0 {
		return 1
	}
	return a.Quantity
}

func riskReward(profit, risk, notional float64) float64 {
	denom := risk * notional
	if denom <= 0 {
		return 0
	}
	return profit / denom
}

// RiskScore estimates entry risk in [0,1] from the action kind, volatility,
// spread and how far the action fights the trend or RSI.
func RiskScore(action decision.ActionType, st market.MarketState) float64 {
	risk := 0.05
	if action == decision.ActionBuy || action == decision.ActionSell {
		risk = 0.3
	}
	risk += math.Min(math.Max(st.Volatility, 0)/10, 1) * 0.25
	risk += math.Min(math.Max(st.SpreadPercent, 0)/10, 1) * 0.2
	switch action {
	case decision.ActionBuy:
		if st.Trend == market.TrendDown {
			risk += 0.15
		}
		if st.RSI > 70 {
			risk += 0.15
		}
	case decision.ActionSell:
		if st.Trend == market.TrendUp {
			risk += 0.15
		}
		if st.RSI < 30 {
			risk += 0.15
		}
	}
	return math.Max(0, math.Min(1, risk))
}
