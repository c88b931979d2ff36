package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/betbot/wetrade/internal/domain"
	"github.com/betbot/wetrade/internal/metrics"
)

// 定宽时间格式，保证按字符串排序即按时间排序
const tsLayout = "2006-01-02T15:04:05.000000000Z"

// Journal 用户消息事件的 sqlite 归档，实现 notify.Sink
type Journal struct {
	db *sql.DB
}

// Open 打开（必要时创建）数据库并迁移表结构；path 为 ":memory:" 时使用内存库
func Open(path string) (*Journal, error) {
	if path == "" {
		return nil, errors.New("journal: db path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("mkdir journal dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite：单连接更稳定
	db.SetMaxIdleConns(1)

	j := &Journal{db: db}
	if err := j.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`
CREATE TABLE IF NOT EXISTS events (
  id TEXT PRIMARY KEY,
  ts TEXT NOT NULL,
  kind TEXT NOT NULL,
  level TEXT NOT NULL,
  order_id TEXT,
  symbol TEXT,
  message TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_events_order ON events(order_id, ts);`,
	}
	for _, st := range stmts {
		if _, err := j.db.ExecContext(ctx, st); err != nil {
			return fmt.Errorf("migrate journal: %w", err)
		}
	}
	return nil
}

// Write 写入一条事件；同 ID 重复写入忽略
func (j *Journal) Write(ctx context.Context, ev domain.Event) error {
	_, err := j.db.ExecContext(ctx, `
INSERT OR IGNORE INTO events (id, ts, kind, level, order_id, symbol, message)
VALUES (?,?,?,?,?,?,?)
`, ev.ID, ev.Time.UTC().Format(tsLayout), string(ev.Kind), string(ev.Level),
		nullString(ev.OrderID), nullString(ev.Symbol), ev.Message)
	if err != nil {
		metrics.JournalFailures.Add(1)
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Recent 最近 limit 条事件（新 → 旧）
func (j *Journal) Recent(ctx context.Context, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx, `
SELECT id, ts, kind, level, order_id, symbol, message
FROM events
ORDER BY ts DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// ForOrder 某个订单的全部事件（旧 → 新）
func (j *Journal) ForOrder(ctx context.Context, orderID string) ([]domain.Event, error) {
	rows, err := j.db.QueryContext(ctx, `
SELECT id, ts, kind, level, order_id, symbol, message
FROM events
WHERE order_id=?
ORDER BY ts ASC
`, orderID)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// Prune 删除 before 之前的事件，返回删除条数
func (j *Journal) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := j.db.ExecContext(ctx, `DELETE FROM events WHERE ts < ?`, before.UTC().Format(tsLayout))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

func scanEvents(rows *sql.Rows) ([]domain.Event, error) {
	defer rows.Close()
	var out []domain.Event
	for rows.Next() {
		var (
			ev              domain.Event
			ts, kind, level string
			orderID, symbol sql.NullString
		)
		if err := rows.Scan(&ev.ID, &ts, &kind, &level, &orderID, &symbol, &ev.Message); err != nil {
			return nil, err
		}
		t, err := time.Parse(tsLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("parse ts %q: %w", ts, err)
		}
		ev.Time = t
		ev.Kind = domain.EventKind(kind)
		ev.Level = domain.EventLevel(level)
		ev.OrderID = orderID.String
		ev.Symbol = symbol.String
		out = append(out, ev)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
