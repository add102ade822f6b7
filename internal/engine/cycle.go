package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"getrader/internal/decision"
	"getrader/internal/learning"
	"getrader/internal/logger"
	"getrader/internal/market"
	"getrader/internal/prediction"
	"getrader/internal/session"
	"getrader/internal/tracker"

	"github.com/google/uuid"
)

// gate 是单条预测的执行判定结果。
type gate struct {
	execute  bool
	quantity int
	reason   string
}

// RunCycle processes every feed item once for the session. Items that fail
// to encode are logged and skipped; the cycle still completes.
func (e *Engine) RunCycle(ctx context.Context, sessionID string) (CycleReport, error) {
	s, err := e.deps.Sessions.Get(sessionID)
	if err != nil {
		return CycleReport{}, err
	}
	if !s.Status.Running() {
		return CycleReport{}, fmt.Errorf("%w: %s is %s", ErrSessionNotRunning, sessionID, s.Status)
	}
	tr, err := e.tracker(sessionID)
	if err != nil {
		return CycleReport{}, err
	}
	adaptive, ok := e.deps.Learner.Config(sessionID)
	if !ok {
		return CycleReport{}, fmt.Errorf("%w: %s", learning.ErrUnknownSession, sessionID)
	}
	items, err := e.deps.Feed.Items(ctx)
	if err != nil {
		return CycleReport{}, fmt.Errorf("load feed: %w", err)
	}

	cfg := e.config()
	report := CycleReport{SessionID: sessionID, Items: len(items), BySource: make(map[string]int)}
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		st, err := e.deps.Encoder.Encode(item)
		if err != nil {
			report.Skipped++
			logger.Debugf("[engine] %s skip item %s: %v", sessionID, item.ID, err)
			continue
		}
		executed := e.processItem(ctx, s, cfg, tr, adaptive, st)
		report.Decisions++
		if executed != "" {
			report.Executed++
			report.BySource[executed]++
		}
	}

	if _, err := e.deps.Sessions.UpdateMetrics(sessionID, session.MetricsDelta{
		Episodes:  1,
		Decisions: report.Decisions,
	}); err != nil {
		logger.Warnf("[engine] %s update cycle metrics: %v", sessionID, err)
	}
	logger.Infof("[engine] %s cycle done items=%d decisions=%d executed=%d skipped=%d",
		sessionID, report.Items, report.Decisions, report.Executed, report.Skipped)
	return report, nil
}

// processItem runs one item through predict, audit and gate. It returns the
// answering backend when a trade was started, otherwise "".
func (e *Engine) processItem(ctx context.Context, s session.Session, cfg Config, tr *tracker.Tracker, adaptive *learning.AdaptiveConfig, st market.MarketState) string {
	pctx := prediction.WithExploration(ctx, adaptive.ExplorationRate())
	p := e.deps.Gateway.Predict(pctx, st)
	confidence := adaptive.CalibrateConfidence(p.Confidence)

	g := e.evaluate(s, cfg, adaptive, st, p.Action, p.Quantity, confidence)
	reasoning := p.Reasoning
	if g.reason != "" {
		reasoning = fmt.Sprintf("%s; not executed: %s", reasoning, g.reason)
	}
	d := decision.Decision{
		SessionID:     s.ID,
		ItemID:        st.ItemID,
		Action:        decision.Action{Type: p.Action, Quantity: g.quantity, Price: st.MidPrice},
		Confidence:    confidence,
		SourceBackend: p.Source,
		ModelVersion:  p.ModelVersion,
		Reasoning:     reasoning,
		Executed:      g.execute,
		Timestamp:     e.now(),
	}
	id, err := e.deps.Stores.Audit.SaveDecision(ctx, d)
	if err != nil || id == "" {
		id = uuid.NewString()
		logger.Warnf("[engine] %s audit save for item %s failed, using local id %s: %v", s.ID, st.ItemID, id, err)
	}
	d.ID = id
	e.deps.Metrics.ObserveDecision(p.Source, g.execute)
	if !g.execute {
		return ""
	}

	tradeID := uuid.NewString()
	if err := tr.StartTrade(tradeID, s.ID, d.ID, d.Action, st); err != nil {
		logger.Errorf("[engine] %s start trade for decision %s: %v", s.ID, d.ID, err)
		return ""
	}
	delay := e.settleDelay(cfg)
	h := e.settlement.Schedule(s.ID, delay, func() {
		e.settle(context.WithoutCancel(ctx), s.ID, tradeID, d, p.Source, st)
	})
	if h == nil {
		tr.CancelTrade(tradeID)
		logger.Warnf("[engine] %s settlement rejected for trade %s", s.ID, tradeID)
		return ""
	}
	logger.Debugf("[engine] %s %s %s x%d @%.0f conf=%.2f src=%s settle in %s",
		s.ID, d.Action.Type, st.ItemID, d.Action.Quantity, d.Action.Price, confidence, p.Source, delay)
	return p.Source
}

// evaluate applies the execution gates in order: confidence threshold,
// trade budget, item value, tax-adjusted margin, adaptive minimum profit and
// the action frequency multiplier. Training sessions skip the threshold and
// profit gates to gather experience.
func (e *Engine) evaluate(s session.Session, cfg Config, adaptive *learning.AdaptiveConfig, st market.MarketState, action decision.ActionType, wantQty int, confidence float64) gate {
	training := s.Config.Training || s.Status == session.StatusTraining
	if !prediction.Executable(confidence, training, cfg.ConfidenceThreshold) {
		return gate{reason: fmt.Sprintf("confidence %.2f below threshold %.2f", confidence, cfg.ConfidenceThreshold)}
	}
	if s.Config.MaxTrades > 0 {
		tr, _ := e.tracker(s.ID)
		inFlight := 0
		if tr != nil {
			inFlight = tr.ActiveCount()
		}
		if s.Metrics.TotalTrades+inFlight >= s.Config.MaxTrades {
			return gate{reason: fmt.Sprintf("trade budget of %d reached", s.Config.MaxTrades)}
		}
	}
	if action == decision.ActionHold {
		return gate{execute: true, quantity: 1}
	}

	maxValue := adaptive.MaxItemValue()
	if s.Config.MaxItemValue > 0 && (maxValue <= 0 || s.Config.MaxItemValue < maxValue) {
		maxValue = s.Config.MaxItemValue
	}
	price := st.MidPrice
	if price <= 0 {
		return gate{reason: "no price"}
	}
	if maxValue > 0 && price > maxValue {
		return gate{reason: fmt.Sprintf("price %.0f exceeds max item value %.0f", price, maxValue)}
	}
	qty := wantQty
	if maxValue > 0 {
		affordable := int(math.Floor(maxValue / price))
		if qty <= 0 || qty > affordable {
			qty = affordable
		}
	}
	if qty <= 0 {
		qty = 1
	}

	if !training {
		margin := cfg.Tax.MarginAfterTax(st.Low, st.High)
		if margin < s.Config.MinProfitMargin {
			return gate{reason: fmt.Sprintf("margin after tax %.4f below %.4f", margin, s.Config.MinProfitMargin)}
		}
		expected := cfg.Tax.NetProfit(st.Low, st.High, qty).Net
		if floor := adaptive.MinProfitThreshold(); floor > 0 && expected < floor {
			return gate{reason: fmt.Sprintf("expected profit %.0f below adaptive minimum %.0f", expected, floor)}
		}
	}
	if mult := adaptive.ActionMultiplier(action); mult < 1 && e.randFloat() >= mult {
		return gate{reason: fmt.Sprintf("%s frequency reduced to %.2f", action, mult)}
	}
	return gate{execute: true, quantity: qty}
}

func (e *Engine) settleDelay(cfg Config) time.Duration {
	span := cfg.SettleDelayMax - cfg.SettleDelayMin
	if span <= 0 {
		return cfg.SettleDelayMin
	}
	return cfg.SettleDelayMin + time.Duration(e.randFloat()*float64(span))
}

func (e *Engine) randFloat() float64 {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return e.rng.Float64()
}

// settle completes one trade and propagates the outcome to the audit log,
// the session counters, the answering backend and the learning trigger.
func (e *Engine) settle(ctx context.Context, sessionID, tradeID string, d decision.Decision, source string, st market.MarketState) {
	tr, err := e.tracker(sessionID)
	if err != nil {
		return
	}
	success := e.randFloat() < SuccessProbability(d.Action.Type, st)
	final := e.finalState(d.Action.Type, st, success)

	out, err := tr.CompleteTrade(ctx, tradeID, final.MidPrice, final, success)
	if err != nil {
		if errors.Is(err, tracker.ErrTradeNotFound) {
			logger.Debugf("[engine] %s trade %s already dropped", sessionID, tradeID)
			return
		}
		logger.Errorf("[engine] %s complete trade %s: %v", sessionID, tradeID, err)
		return
	}

	if err := e.deps.Stores.Audit.UpdateDecisionOutcome(ctx, d.ID, decision.Outcome{
		TradeID:     out.TradeID,
		Success:     out.Success,
		Profit:      out.Profit,
		DurationMs:  out.DurationMs,
		CompletedAt: out.CompletedAt,
	}); err != nil {
		logger.Warnf("[engine] %s attach outcome to decision %s: %v", sessionID, d.ID, err)
	}

	delta := session.MetricsDelta{Trades: 1, Profit: out.Profit, Reward: &out.Profit}
	if out.Success {
		delta.SuccessfulTrades = 1
	}
	s, err := e.deps.Sessions.UpdateMetrics(sessionID, delta)
	if err != nil {
		logger.Warnf("[engine] %s update metrics after trade %s: %v", sessionID, tradeID, err)
	}
	e.deps.Metrics.ObserveTrade(string(d.Action.Type), out.Success, out.Profit)
	e.deps.Gateway.Feedback(source, st, d.Action.Type, out.Profit)

	if err != nil {
		return
	}
	e.deps.Learner.MaybeTrigger(ctx, sessionID, s.Metrics.TotalTrades)
	if s.Config.MaxTrades > 0 && s.Metrics.TotalTrades >= s.Config.MaxTrades && s.Status != session.StatusCompleted {
		logger.Infof("[engine] %s reached %d trades, ending session", sessionID, s.Metrics.TotalTrades)
		if _, err := e.deps.Sessions.End(sessionID); err != nil && !errors.Is(err, session.ErrSessionCompleted) {
			logger.Warnf("[engine] %s auto end: %v", sessionID, err)
		}
	}
}

// SuccessProbability is the simulated chance that a trade works out. HOLD
// succeeds with 0.7; BUY and SELL start at 0.5 and are nudged by trend, RSI
// zone and spread, clamped to [0.05, 0.95].
func SuccessProbability(action decision.ActionType, st market.MarketState) float64 {
	if action == decision.ActionHold {
		return 0.7
	}
	p := 0.5
	switch {
	case action == decision.ActionBuy && st.Trend == market.TrendUp,
		action == decision.ActionSell && st.Trend == market.TrendDown:
		p += 0.15
	case action == decision.ActionBuy && st.Trend == market.TrendDown,
		action == decision.ActionSell && st.Trend == market.TrendUp:
		p -= 0.15
	}
	switch {
	case st.RSI < 30:
		if action == decision.ActionBuy {
			p += 0.1
		} else {
			p -= 0.1
		}
	case st.RSI > 70:
		if action == decision.ActionSell {
			p += 0.1
		} else {
			p -= 0.1
		}
	}
	if st.SpreadPercent > 5 {
		p -= 0.1
	} else if st.SpreadPercent > 0 && st.SpreadPercent < 1 {
		p += 0.05
	}
	return math.Max(0.05, math.Min(0.95, p))
}

// finalState moves the price in the trade's favour on success and against
// it on failure, by 0.5% plus up to PriceNoise.
func (e *Engine) finalState(action decision.ActionType, st market.MarketState, success bool) market.MarketState {
	final := st
	final.Timestamp = e.now().UTC()
	if action == decision.ActionHold || st.MidPrice <= 0 {
		return final
	}
	move := 0.005 + e.randFloat()*e.config().PriceNoise
	up := (action == decision.ActionBuy) == success
	if !up {
		move = -move
	}
	scale := 1 + move
	final.MidPrice = math.Max(1, math.Round(st.MidPrice*scale))
	final.High = math.Max(1, math.Round(st.High*scale))
	final.Low = math.Max(1, math.Round(st.Low*scale))
	return final
}
