// Package prediction answers "what should we do with this item" through an
// ordered chain of backends: remote inference, local scorer, static rule.
package prediction

import (
	"context"
	"errors"

	"getrader/internal/decision"
	"getrader/internal/market"
)

const (
	SourceRemote = "remote"
	SourceLocal  = "local"
	SourceStatic = "static"
)

var (
	ErrBackendUnavailable = errors.New("prediction backend unavailable")
	ErrRateLimited        = errors.New("prediction backend rate limited")
	ErrInvalidResponse    = errors.New("invalid prediction response")
)

// Prediction is a backend's answer for one market state.
type Prediction struct {
	Action         decision.ActionType `json:"action"`
	Quantity       int                 `json:"quantity,omitempty"`
	Price          float64             `json:"price,omitempty"`
	Confidence     float64             `json:"confidence"`
	ExpectedReturn float64             `json:"expectedReturn"`
	QValues        [3]float64          `json:"qValues"`
	Source         string              `json:"source"`
	ModelVersion   string              `json:"modelVersion,omitempty"`
	Reasoning      string              `json:"reasoning,omitempty"`
}

// Backend produces predictions. Implementations must be safe for
// concurrent use.
type Backend interface {
	Name() string
	Predict(ctx context.Context, state market.MarketState) (Prediction, error)
}

// FeedbackReceiver is implemented by backends that learn from outcomes.
type FeedbackReceiver interface {
	Feedback(state market.MarketState, action decision.ActionType, reward float64)
}

type explorationKey struct{}

// WithExploration attaches a per-request exploration rate for backends that
// support epsilon-greedy action selection.
func WithExploration(ctx context.Context, rate float64) context.Context {
	return context.WithValue(ctx, explorationKey{}, rate)
}

// ExplorationFrom returns the exploration rate carried by ctx, if any.
func ExplorationFrom(ctx context.Context) (float64, bool) {
	v, ok := ctx.Value(explorationKey{}).(float64)
	return v, ok
}

// Executable reports whether a prediction should be acted on. Training
// sessions act on every prediction to gather experience.
func Executable(confidence float64, training bool, threshold float64) bool {
	return training || confidence > threshold
}
