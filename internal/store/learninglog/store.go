package learninglog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"getrader/internal/learning"

	_ "modernc.org/sqlite"
)

// Store 持久化在线学习记录（指标 + 调整动作 + 模型状态）。
type Store struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	ownsDB bool
}

var _ learning.RecordStore = (*Store)(nil)

func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("learning log path 不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, path: path, ownsDB: true}, nil
}

// UseExternalDB 允许复用外部初始化的 SQLite 连接，避免多连接锁冲突。
func (s *Store) UseExternalDB(db *sql.DB) error {
	if s == nil {
		return fmt.Errorf("learning log store 未初始化")
	}
	if db == nil {
		return fmt.Errorf("external db 不能为空")
	}
	if err := ensureSchema(db); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ownsDB && s.db != nil && s.db != db {
		_ = s.db.Close()
	}
	s.db = db
	s.ownsDB = false
	return nil
}

// Close 关闭底层 DB（外部连接不关闭）。
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	var err error
	if s.ownsDB {
		err = s.db.Close()
	}
	s.db = nil
	return err
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS learning_sessions (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			completed_at INTEGER NOT NULL,
			total_decisions INTEGER NOT NULL DEFAULT 0,
			success_rate REAL NOT NULL DEFAULT 0,
			average_profit REAL NOT NULL DEFAULT 0,
			action_count INTEGER NOT NULL DEFAULT 0,
			metrics_json TEXT,
			actions_json TEXT,
			config_json TEXT,
			model_stats_json TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_learning_sessions_session ON learning_sessions(session_id, completed_at)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("learning log schema: %w", err)
		}
	}
	return nil
}

func (s *Store) handle() (*sql.DB, error) {
	if s == nil {
		return nil, fmt.Errorf("learning log store 未初始化")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, fmt.Errorf("learning log store 已关闭")
	}
	return s.db, nil
}

// SaveLearningSession 写入一条学习记录。
func (s *Store) SaveLearningSession(ctx context.Context, rec learning.Record) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	if strings.TrimSpace(rec.ID) == "" {
		return fmt.Errorf("learning record id 必填")
	}
	metrics, err := json.Marshal(rec.Metrics)
	if err != nil {
		return err
	}
	actions, err := json.Marshal(rec.Actions)
	if err != nil {
		return err
	}
	cfg, err := json.Marshal(rec.Config)
	if err != nil {
		return err
	}
	stats, err := json.Marshal(rec.ModelStats)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `INSERT INTO learning_sessions
		(id, session_id, started_at, completed_at, total_decisions, success_rate, average_profit, action_count,
		 metrics_json, actions_json, config_json, model_stats_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SessionID, rec.StartedAt.UnixMilli(), rec.CompletedAt.UnixMilli(),
		rec.Metrics.TotalDecisions, rec.Metrics.SuccessRate, rec.Metrics.AverageProfit, len(rec.Actions),
		string(metrics), string(actions), string(cfg), string(stats))
	return err
}

// ListLearningSessions 按完成时间倒序返回学习记录；sessionID 为空时不过滤。
func (s *Store) ListLearningSessions(ctx context.Context, sessionID string, limit int) ([]learning.Record, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	var (
		clauses []string
		args    []interface{}
	)
	if sid := strings.TrimSpace(sessionID); sid != "" {
		clauses = append(clauses, "session_id = ?")
		args = append(args, sid)
	}
	query := `SELECT id, session_id, started_at, completed_at, metrics_json, actions_json, config_json, model_stats_json
		FROM learning_sessions`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY completed_at DESC, id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []learning.Record
	for rows.Next() {
		var (
			rec                               learning.Record
			started, completed                int64
			metrics, actions, cfg, modelStats sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.SessionID, &started, &completed, &metrics, &actions, &cfg, &modelStats); err != nil {
			return nil, err
		}
		rec.StartedAt = time.UnixMilli(started)
		rec.CompletedAt = time.UnixMilli(completed)
		for _, part := range []struct {
			raw sql.NullString
			dst any
		}{
			{metrics, &rec.Metrics},
			{actions, &rec.Actions},
			{cfg, &rec.Config},
			{modelStats, &rec.ModelStats},
		} {
			if !part.raw.Valid || part.raw.String == "" || part.raw.String == "null" {
				continue
			}
			if err := json.Unmarshal([]byte(part.raw.String), part.dst); err != nil {
				return nil, fmt.Errorf("decode learning record %s: %w", rec.ID, err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
