package market

import (
	"fmt"
	"math"
	"time"

	"getrader/internal/analysis/indicator"
)

type EncoderConfig struct {
	RSIPeriod  int
	MACDFast   int
	MACDSlow   int
	MinHistory int
}

func (c EncoderConfig) withDefaults() EncoderConfig {
	if c.RSIPeriod < 2 {
		c.RSIPeriod = 14
	}
	if c.MACDFast <= 0 {
		c.MACDFast = 12
	}
	if c.MACDSlow <= 0 {
		c.MACDSlow = 26
	}
	if c.MinHistory < 3 {
		c.MinHistory = 3
	}
	return c
}

// Encoder derives MarketState snapshots. It holds no mutable state and is
// safe for concurrent use.
type Encoder struct {
	cfg EncoderConfig
	now func() time.Time
}

func NewEncoder(cfg EncoderConfig) *Encoder {
	return &Encoder{cfg: cfg.withDefaults(), now: time.Now}
}

// Encode builds the market state for item. The same item always encodes to
// the same state; the timestamp is taken from the newest history point.
func (e *Encoder) Encode(item Item) (MarketState, error) {
	if len(item.History) < e.cfg.MinHistory {
		return MarketState{}, fmt.Errorf("item %s: %w (have %d, need %d)",
			item.ID, ErrInsufficientHistory, len(item.History), e.cfg.MinHistory)
	}
	prices := make([]float64, len(item.History))
	for i, p := range item.History {
		prices[i] = p.Value()
	}

	high, low := item.High, item.Low
	if high <= 0 && low <= 0 {
		last := prices[len(prices)-1]
		high, low = last, last
	}

	rsi := indicator.RSI(prices, e.cfg.RSIPeriod)
	macd := indicator.MACDLine(prices, e.cfg.MACDFast, e.cfg.MACDSlow)

	return MarketState{
		ItemID:        item.ID,
		MidPrice:      (high + low) / 2,
		High:          high,
		Low:           low,
		Volume:        item.Volume,
		SpreadPercent: SpreadPercent(high, low),
		Volatility:    math.Abs(rsi-50) / 5,
		RSI:           rsi,
		MACD:          macd,
		Trend:         trendOf(macd),
		Timestamp:     e.timestampOf(item.History),
	}, nil
}

// SpreadPercent returns (high-low)/low*100, or 0 when low is not positive.
func SpreadPercent(high, low float64) float64 {
	if low <= 0 {
		return 0
	}
	return (high - low) / low * 100
}

func trendOf(macd float64) Trend {
	switch {
	case macd > 0:
		return TrendUp
	case macd < 0:
		return TrendDown
	default:
		return TrendFlat
	}
}

func (e *Encoder) timestampOf(history []PricePoint) time.Time {
	last := history[len(history)-1].Timestamp
	if last <= 0 {
		return e.now().UTC()
	}
	return time.UnixMilli(last).UTC()
}
