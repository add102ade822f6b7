// Package market turns raw item observations into encoded market states.
package market

import (
	"context"
	"errors"
	"time"
)

// ErrInsufficientHistory is returned when an item has too few price points
// to derive indicators.
var ErrInsufficientHistory = errors.New("insufficient price history")

// Trend is the direction implied by the MACD line.
type Trend string

const (
	TrendUp   Trend = "UP"
	TrendDown Trend = "DOWN"
	TrendFlat Trend = "FLAT"
)

// PricePoint is one historical sample. Timestamp is unix milliseconds.
type PricePoint struct {
	Price     float64 `json:"price,omitempty"`
	High      float64 `json:"high,omitempty"`
	Timestamp int64   `json:"timestamp"`
}

// Value returns Price when set, otherwise High.
func (p PricePoint) Value() float64 {
	if p.Price > 0 {
		return p.Price
	}
	return p.High
}

// Item is a tradeable commodity as delivered by a Feed.
type Item struct {
	ID      string       `json:"id"`
	Name    string       `json:"name,omitempty"`
	High    float64      `json:"high"`
	Low     float64      `json:"low"`
	Volume  float64      `json:"volume"`
	History []PricePoint `json:"priceHistory"`
}

// MarketState is the immutable snapshot produced by the encoder.
type MarketState struct {
	ItemID        string    `json:"itemId"`
	MidPrice      float64   `json:"midPrice"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	Volume        float64   `json:"volume"`
	SpreadPercent float64   `json:"spreadPercent"`
	Volatility    float64   `json:"volatility"`
	RSI           float64   `json:"rsi"`
	MACD          float64   `json:"macd"`
	Trend         Trend     `json:"trend"`
	Timestamp     time.Time `json:"timestamp"`
}

// Feed supplies the current item universe.
type Feed interface {
	Items(ctx context.Context) ([]Item, error)
}
