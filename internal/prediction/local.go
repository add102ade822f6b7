package prediction

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"getrader/internal/decision"
	"getrader/internal/market"

	"gonum.org/v1/gonum/mat"
)

// rows follow decision.Actions order: BUY, HOLD, SELL.
var priorWeights = []float64{
	// price vol  spread volat rsi   macd  trend bias
	0, 0.1, -0.2, 0, -1.2, 0.8, 0.6, 0,
	0, 0, 0.3, 0.2, 0, 0, 0, 0.4,
	0, 0.1, -0.2, 0, 1.2, -0.8, -0.6, 0,
}

const (
	localTemperature = 0.5
	rewardScale      = 1000.0
)

type LocalConfig struct {
	LearningRate float64
	Exploration  float64
	ModelVersion string
	Seed         int64
}

// LocalStats summarises the local scorer for the model registry.
type LocalStats struct {
	Predictions  int64   `json:"predictions"`
	Explorations int64   `json:"explorations"`
	Updates      int64   `json:"updates"`
	LearningRate float64 `json:"learningRate"`
	WeightNorm   float64 `json:"weightNorm"`
	ModelVersion string  `json:"modelVersion"`
}

// LocalBackend is a linear Q-value scorer over EncodeFeatures with softmax
// confidence and epsilon-greedy exploration. Outcome feedback nudges the
// weights of the action that was taken.
type LocalBackend struct {
	mu      sync.RWMutex
	weights *mat.Dense
	cfg     LocalConfig

	rngMu sync.Mutex
	rng   *rand.Rand

	predictions  int64
	explorations int64
	updates      int64
}

func NewLocalBackend(cfg LocalConfig) *LocalBackend {
	w := make([]float64, len(priorWeights))
	copy(w, priorWeights)
	return &LocalBackend{
		weights: mat.NewDense(len(decision.Actions), FeatureCount, w),
		cfg:     cfg,
		rng:     rand.New(rand.NewSource(cfg.Seed)),
	}
}

func (l *LocalBackend) Name() string { return SourceLocal }

func (l *LocalBackend) qValues(x *mat.VecDense) [3]float64 {
	var q mat.VecDense
	l.mu.RLock()
	q.MulVec(l.weights, x)
	l.mu.RUnlock()
	return [3]float64{q.AtVec(0), q.AtVec(1), q.AtVec(2)}
}

func (l *LocalBackend) Predict(ctx context.Context, st market.MarketState) (Prediction, error) {
	if err := ctx.Err(); err != nil {
		return Prediction{}, err
	}
	x := mat.NewVecDense(FeatureCount, EncodeFeatures(st))
	q := l.qValues(x)
	probs := softmax(q, localTemperature)

	best := 0
	for i := 1; i < len(q); i++ {
		if q[i] > q[best] {
			best = i
		}
	}
	choice := best
	reason := fmt.Sprintf("local scorer: rsi=%.1f trend=%s q=[%.3f %.3f %.3f]", st.RSI, st.Trend, q[0], q[1], q[2])

	epsilon := l.cfg.Exploration
	if v, ok := ExplorationFrom(ctx); ok {
		epsilon = v
	}
	l.rngMu.Lock()
	explore := epsilon > 0 && l.rng.Float64() < epsilon
	if explore {
		choice = l.rng.Intn(len(q))
	}
	l.predictions++
	if explore {
		l.explorations++
	}
	l.rngMu.Unlock()
	if explore {
		reason = fmt.Sprintf("exploration (epsilon=%.2f); %s", epsilon, reason)
	}

	return Prediction{
		Action:         decision.Actions[choice],
		Confidence:     probs[choice],
		ExpectedReturn: q[choice],
		QValues:        q,
		Source:         SourceLocal,
		ModelVersion:   l.cfg.ModelVersion,
		Reasoning:      reason,
	}, nil
}

// Feedback moves the Q-value of action towards the squashed reward.
func (l *LocalBackend) Feedback(st market.MarketState, action decision.ActionType, reward float64) {
	if !action.Valid() {
		return
	}
	feats := EncodeFeatures(st)
	x := mat.NewVecDense(FeatureCount, feats)
	row := action.Index()

	l.mu.Lock()
	defer l.mu.Unlock()
	rate := l.cfg.LearningRate
	if rate <= 0 {
		return
	}
	current := mat.Dot(l.weights.RowView(row), x)
	delta := rate * (math.Tanh(reward/rewardScale) - current)
	for j, f := range feats {
		l.weights.Set(row, j, l.weights.At(row, j)+delta*f)
	}
	l.updates++
}

// SetLearningRate replaces the feedback step size. Negative rates are
// treated as 0, which freezes the weights.
func (l *LocalBackend) SetLearningRate(rate float64) {
	if rate < 0 {
		rate = 0
	}
	l.mu.Lock()
	l.cfg.LearningRate = rate
	l.mu.Unlock()
}

func (l *LocalBackend) Stats() LocalStats {
	l.mu.RLock()
	norm := mat.Norm(l.weights, 2)
	lr := l.cfg.LearningRate
	updates := l.updates
	l.mu.RUnlock()
	l.rngMu.Lock()
	defer l.rngMu.Unlock()
	return LocalStats{
		Predictions:  l.predictions,
		Explorations: l.explorations,
		Updates:      updates,
		LearningRate: lr,
		WeightNorm:   norm,
		ModelVersion: l.cfg.ModelVersion,
	}
}

func softmax(q [3]float64, temperature float64) [3]float64 {
	maxQ := math.Max(q[0], math.Max(q[1], q[2]))
	var out [3]float64
	sum := 0.0
	for i, v := range q {
		out[i] = math.Exp((v - maxQ) / temperature)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
