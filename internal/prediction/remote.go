package prediction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"getrader/internal/decision"
	"getrader/internal/market"
	"getrader/internal/pkg/circuit"

	"github.com/go-resty/resty/v2"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

const responseSchema = `{
  "type": "object",
  "required": ["action"],
  "properties": {
    "action": {
      "oneOf": [
        {"type": "integer", "minimum": 0, "maximum": 2},
        {"type": "string", "minLength": 1},
        {
          "type": "object",
          "required": ["type"],
          "properties": {
            "type": {"oneOf": [{"type": "string"}, {"type": "integer", "minimum": 0, "maximum": 2}]},
            "quantity": {"type": "number", "minimum": 0},
            "price": {"type": "number", "minimum": 0}
          }
        }
      ]
    },
    "confidence": {"type": "number"},
    "expected_return": {"type": "number"},
    "q_values": {"type": "array", "items": {"type": "number"}, "minItems": 3, "maxItems": 3},
    "model_version": {"type": "string"},
    "reasoning": {"type": "string"}
  }
}`

var compiledResponseSchema = jsonschema.MustCompileString("prediction-response.json", responseSchema)

type RemoteConfig struct {
	URL              string
	Timeout          time.Duration
	RatePerMinute    float64
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

type remoteRequest struct {
	ItemID   string             `json:"itemId"`
	Features []float64          `json:"features"`
	State    market.MarketState `json:"state"`
}

// RemoteBackend calls an external inference service over HTTP.
type RemoteBackend struct {
	url     string
	client  *resty.Client
	limiter *rate.Limiter
	breaker *circuit.Breaker
}

func NewRemoteBackend(cfg RemoteConfig) (*RemoteBackend, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, fmt.Errorf("remote backend requires a url")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 1500 * time.Millisecond
	}
	client := resty.New()
	client.SetTimeout(cfg.Timeout)
	client.SetHeader("Content-Type", "application/json")

	limit := rate.Inf
	if cfg.RatePerMinute > 0 {
		limit = rate.Limit(cfg.RatePerMinute / 60)
	}
	return &RemoteBackend{
		url:     url,
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
		breaker: circuit.New("remote-inference", cfg.BreakerThreshold, cfg.BreakerCooldown),
	}, nil
}

func (r *RemoteBackend) Name() string { return SourceRemote }

func (r *RemoteBackend) Breaker() circuit.Snapshot { return r.breaker.Snapshot() }

func (r *RemoteBackend) Predict(ctx context.Context, st market.MarketState) (Prediction, error) {
	if !r.breaker.Allow() {
		return Prediction{}, fmt.Errorf("%w: circuit open", ErrBackendUnavailable)
	}
	if !r.limiter.Allow() {
		return Prediction{}, ErrRateLimited
	}
	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(remoteRequest{ItemID: st.ItemID, Features: EncodeFeatures(st), State: st}).
		Post(r.url)
	if err != nil {
		r.breaker.RecordFailure()
		return Prediction{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if resp.IsError() {
		r.breaker.RecordFailure()
		return Prediction{}, fmt.Errorf("%w: status %d", ErrBackendUnavailable, resp.StatusCode())
	}
	pred, err := ParseRemoteResponse(resp.Body())
	if err != nil {
		r.breaker.RecordFailure()
		return Prediction{}, err
	}
	r.breaker.RecordSuccess()
	pred.Source = SourceRemote
	return pred, nil
}

// ParseRemoteResponse validates and decodes an inference response. The
// action may be a numeric code (0=BUY, 1=HOLD, 2=SELL), a name, or an object
// with type/quantity/price.
func ParseRemoteResponse(body []byte) (Prediction, error) {
	if !gjson.ValidBytes(body) {
		return Prediction{}, fmt.Errorf("%w: not json", ErrInvalidResponse)
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return Prediction{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if err := compiledResponseSchema.Validate(doc); err != nil {
		return Prediction{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	root := gjson.ParseBytes(body)
	action := root.Get("action")
	var pred Prediction
	var ok bool
	switch {
	case action.IsObject():
		pred.Action, ok = actionOf(action.Get("type"))
		pred.Quantity = int(action.Get("quantity").Int())
		pred.Price = action.Get("price").Float()
	default:
		pred.Action, ok = actionOf(action)
	}
	if !ok {
		return Prediction{}, fmt.Errorf("%w: unknown action %s", ErrInvalidResponse, action.Raw)
	}
	pred.Confidence = root.Get("confidence").Float()
	pred.ExpectedReturn = root.Get("expected_return").Float()
	pred.ModelVersion = root.Get("model_version").String()
	pred.Reasoning = root.Get("reasoning").String()
	for i, q := range root.Get("q_values").Array() {
		if i < len(pred.QValues) {
			pred.QValues[i] = q.Float()
		}
	}
	return pred, nil
}

func actionOf(v gjson.Result) (decision.ActionType, bool) {
	if v.Type == gjson.Number {
		return decision.ActionFromCode(int(v.Int()))
	}
	return decision.ParseAction(v.String())
}
