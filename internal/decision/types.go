package decision

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrDecisionNotFound = errors.New("decision not found")
	ErrOutcomeAttached  = errors.New("decision outcome already attached")
)

// ActionType 是三种交易动作之一。
type ActionType string

const (
	ActionBuy  ActionType = "BUY"
	ActionSell ActionType = "SELL"
	ActionHold ActionType = "HOLD"
)

// Actions lists every action in Q-value order (BUY, HOLD, SELL).
var Actions = [3]ActionType{ActionBuy, ActionHold, ActionSell}

// Index returns the Q-value slot of the action: BUY=0, HOLD=1, SELL=2.
func (a ActionType) Index() int {
	switch a {
	case ActionBuy:
		return 0
	case ActionSell:
		return 2
	default:
		return 1
	}
}

func (a ActionType) Valid() bool {
	return a == ActionBuy || a == ActionSell || a == ActionHold
}

// ParseAction accepts BUY/SELL/HOLD in any case plus the common aliases
// LONG/SHORT/WAIT.
func ParseAction(s string) (ActionType, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY", "LONG":
		return ActionBuy, true
	case "SELL", "SHORT":
		return ActionSell, true
	case "HOLD", "WAIT", "NONE":
		return ActionHold, true
	default:
		return ActionHold, false
	}
}

// ActionFromCode maps numeric model output to an action. Unknown codes are HOLD.
func ActionFromCode(code int) (ActionType, bool) {
	if code < 0 || code >= len(Actions) {
		return ActionHold, false
	}
	return Actions[code], true
}

// Action 是一次决策的具体执行参数。
type Action struct {
	Type     ActionType `json:"type"`
	Quantity int        `json:"quantity"`
	Price    float64    `json:"price"`
}

// Outcome 在交易结算后附加到决策上，只写一次。
type Outcome struct {
	TradeID     string    `json:"tradeId"`
	Success     bool      `json:"success"`
	Profit      float64   `json:"profit"`
	DurationMs  int64     `json:"durationMs"`
	CompletedAt time.Time `json:"completedAt"`
}

// Decision 单条交易决策的审计记录。
type Decision struct {
	ID            string    `json:"id"`
	SessionID     string    `json:"sessionId"`
	ItemID        string    `json:"itemId"`
	Action        Action    `json:"action"`
	Confidence    float64   `json:"confidence"`
	SourceBackend string    `json:"sourceBackend"`
	ModelVersion  string    `json:"modelVersion,omitempty"`
	Reasoning     string    `json:"reasoning,omitempty"`
	Executed      bool      `json:"executed"`
	Timestamp     time.Time `json:"timestamp"`
	Outcome       *Outcome  `json:"outcome,omitempty"`
}

// Filter 限定决策查询范围；零值字段不参与过滤。
type Filter struct {
	SessionID string
	StartTime time.Time
}

// QueryOptions 控制排序与条数。默认按时间升序。
type QueryOptions struct {
	SortDesc bool
	Limit    int
}

// AuditStore 持久化决策及其结算结果。
type AuditStore interface {
	SaveDecision(ctx context.Context, d Decision) (string, error)
	UpdateDecisionOutcome(ctx context.Context, id string, outcome Outcome) error
	GetDecisions(ctx context.Context, filter Filter, opts QueryOptions) ([]Decision, error)
}
