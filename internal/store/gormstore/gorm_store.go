package gormstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"getrader/internal/decision"
	"getrader/internal/market"
	storemodel "getrader/internal/store/model"
	"getrader/internal/tracker"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type decisionModel = storemodel.DecisionModel
type tradeOutcomeModel = storemodel.TradeOutcomeModel
type modelMetadataModel = storemodel.ModelMetadataModel

// GormStore persists decisions, trade outcomes and model metadata with
// Gorm + SQLite.
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormStore opens (and migrates) the database at path.
func NewGormStore(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: 数据库路径不能为空")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	models := []interface{}{
		&decisionModel{},
		&tradeOutcomeModel{},
		&modelMetadataModel{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: allow a small amount of parallelism for concurrent HTTP reads
	// while keeping lock contention low.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &GormStore{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SQLDB exposes the underlying *sql.DB for shared connections.
func (s *GormStore) SQLDB() (*sql.DB, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store 未初始化")
	}
	return s.db.DB()
}

var (
	_ decision.AuditStore  = (*GormStore)(nil)
	_ tracker.OutcomeSink = (*GormStore)(nil)
)

// --------------------- Decision audit -------------------------

// SaveDecision inserts d and returns its id, generating one when empty.
func (s *GormStore) SaveDecision(ctx context.Context, d decision.Decision) (string, error) {
	if s == nil || s.db == nil {
		return "", fmt.Errorf("gorm store 未初始化")
	}
	if strings.TrimSpace(d.ID) == "" {
		d.ID = uuid.NewString()
	}
	if d.Timestamp.IsZero() {
		d.Timestamp = s.now()
	}
	m, err := newDecisionModel(d)
	if err != nil {
		return "", err
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return "", err
	}
	return d.ID, nil
}

// UpdateDecisionOutcome attaches the outcome once; a second attach fails.
func (s *GormStore) UpdateDecisionOutcome(ctx context.Context, id string, o decision.Outcome) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store 未初始化")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("decision id 必填")
	}
	raw, err := json.Marshal(o)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&decisionModel{}).
		Where("id = ? AND has_outcome = 0", id).
		Updates(map[string]interface{}{
			"has_outcome":  1,
			"outcome_json": datatypes.JSON(raw),
			"updated_at":   s.now().Unix(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := s.db.WithContext(ctx).Model(&decisionModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return fmt.Errorf("%w: %s", decision.ErrDecisionNotFound, id)
		}
		return fmt.Errorf("%w: %s", decision.ErrOutcomeAttached, id)
	}
	return nil
}

func (s *GormStore) GetDecisions(ctx context.Context, f decision.Filter, opts decision.QueryOptions) ([]decision.Decision, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store 未初始化")
	}
	q := s.db.WithContext(ctx).Model(&decisionModel{})
	if sid := strings.TrimSpace(f.SessionID); sid != "" {
		q = q.Where("session_id = ?", sid)
	}
	if !f.StartTime.IsZero() {
		q = q.Where("ts >= ?", f.StartTime.UnixMilli())
	}
	if opts.SortDesc {
		q = q.Order("ts DESC, id DESC")
	} else {
		q = q.Order("ts ASC, id ASC")
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	var models []decisionModel
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]decision.Decision, 0, len(models))
	for _, m := range models {
		d, err := decisionModelToRecord(m)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// --------------------- Trade outcomes -------------------------

func (s *GormStore) SaveTradeOutcome(ctx context.Context, o tracker.TradeOutcome) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store 未初始化")
	}
	if strings.TrimSpace(o.TradeID) == "" {
		return fmt.Errorf("trade_id 必填")
	}
	initial, err := json.Marshal(o.InitialState)
	if err != nil {
		return err
	}
	final, err := json.Marshal(o.FinalState)
	if err != nil {
		return err
	}
	m := tradeOutcomeModel{
		TradeID:          o.TradeID,
		DecisionID:       o.DecisionID,
		SessionID:        o.SessionID,
		ItemID:           o.ItemID,
		Action:           string(o.Action.Type),
		Quantity:         o.Action.Quantity,
		InitialPrice:     o.InitialPrice,
		FinalPrice:       o.FinalPrice,
		Success:          boolToInt(o.Success),
		Profit:           o.Profit,
		DurationMs:       o.DurationMs,
		RiskScore:        o.RiskScore,
		RiskRewardRatio:  o.RiskRewardRatio,
		InitialStateJSON: datatypes.JSON(initial),
		FinalStateJSON:   datatypes.JSON(final),
		StartedAtMs:      timeToMillis(o.StartedAt),
		CompletedAtMs:    timeToMillis(o.CompletedAt),
	}
	return s.db.WithContext(ctx).Create(&m).Error
}

// ListTradeOutcomes returns a session's settled trades, oldest first.
func (s *GormStore) ListTradeOutcomes(ctx context.Context, sessionID string, limit int) ([]tracker.TradeOutcome, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store 未初始化")
	}
	q := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Order("completed_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var models []tradeOutcomeModel
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]tracker.TradeOutcome, 0, len(models))
	for _, m := range models {
		o := tracker.TradeOutcome{
			TradeID:         m.TradeID,
			DecisionID:      m.DecisionID,
			SessionID:       m.SessionID,
			ItemID:          m.ItemID,
			Action:          decision.Action{Type: decision.ActionType(m.Action), Quantity: m.Quantity, Price: m.InitialPrice},
			InitialPrice:    m.InitialPrice,
			FinalPrice:      m.FinalPrice,
			Success:         m.Success == 1,
			Profit:          m.Profit,
			DurationMs:      m.DurationMs,
			RiskScore:       m.RiskScore,
			RiskRewardRatio: m.RiskRewardRatio,
			StartedAt:       millisToTime(m.StartedAtMs),
			CompletedAt:     millisToTime(m.CompletedAtMs),
		}
		o.InitialState = decodeState(m.InitialStateJSON)
		o.FinalState = decodeState(m.FinalStateJSON)
		out = append(out, o)
	}
	return out, nil
}

// --------------------------- Model Helpers ------------------------------

func ensureDir(path string) error {
	dir := filepathDir(path)
	if dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func newDecisionModel(d decision.Decision) (decisionModel, error) {
	m := decisionModel{
		ID:            d.ID,
		SessionID:     d.SessionID,
		ItemID:        d.ItemID,
		Action:        string(d.Action.Type),
		Quantity:      d.Action.Quantity,
		Price:         d.Action.Price,
		Confidence:    d.Confidence,
		SourceBackend: d.SourceBackend,
		ModelVersion:  d.ModelVersion,
		Reasoning:     d.Reasoning,
		Executed:      boolToInt(d.Executed),
		TimestampMs:   d.Timestamp.UnixMilli(),
		UpdatedAtUnix: d.Timestamp.Unix(),
	}
	if d.Outcome != nil {
		raw, err := json.Marshal(d.Outcome)
		if err != nil {
			return decisionModel{}, err
		}
		m.HasOutcome = 1
		m.OutcomeJSON = datatypes.JSON(raw)
	}
	return m, nil
}

func decisionModelToRecord(m decisionModel) (decision.Decision, error) {
	d := decision.Decision{
		ID:            m.ID,
		SessionID:     m.SessionID,
		ItemID:        m.ItemID,
		Action:        decision.Action{Type: decision.ActionType(m.Action), Quantity: m.Quantity, Price: m.Price},
		Confidence:    m.Confidence,
		SourceBackend: m.SourceBackend,
		ModelVersion:  m.ModelVersion,
		Reasoning:     m.Reasoning,
		Executed:      m.Executed == 1,
		Timestamp:     millisToTime(m.TimestampMs),
	}
	if m.HasOutcome == 1 && len(m.OutcomeJSON) > 0 {
		var o decision.Outcome
		if err := json.Unmarshal(m.OutcomeJSON, &o); err != nil {
			return decision.Decision{}, fmt.Errorf("decode outcome of %s: %w", m.ID, err)
		}
		d.Outcome = &o
	}
	return d, nil
}

func decodeState(raw datatypes.JSON) market.MarketState {
	var st market.MarketState
	if len(raw) == 0 {
		return st
	}
	_ = json.Unmarshal(raw, &st)
	return st
}

// --------------------------- Helper Functions ------------------------------------

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func timeToMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func ptrTimeToMillis(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return timeToMillis(*t)
}

func millisToTime(v int64) time.Time {
	if v <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(v)
}

func millisToPtrTime(v int64) *time.Time {
	if v <= 0 {
		return nil
	}
	t := time.UnixMilli(v)
	return &t
}

func filepathDir(path string) string {
	last := strings.LastIndex(path, "/")
	if last == -1 {
		last = strings.LastIndex(path, "\\")
	}
	if last == -1 {
		return ""
	}
	return path[:last]
}
