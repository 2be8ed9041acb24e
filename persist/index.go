package persist

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Index 在 SQLite 中登记已保存的记录，便于按流水线检索。
// 记录文件本身仍是唯一的事实来源，索引丢失不影响读取。
type Index struct {
	db *sql.DB
}

// Entry 是一条索引记录。
type Entry struct {
	ID             string    `json:"id"`
	Pipeline       string    `json:"pipeline"`
	ConversationID *string   `json:"conversation_id"`
	Path           string    `json:"path"`
	Size           int64     `json:"size"`
	CreatedAt      time.Time `json:"created_at"`
}

const indexSchema = `
CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	pipeline TEXT NOT NULL,
	conversation_id TEXT,
	path TEXT NOT NULL,
	size INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversations_pipeline ON conversations(pipeline, created_at);
`

// OpenIndex 打开（必要时创建）索引库，path 为 ":memory:" 时使用内存库。
func OpenIndex(ctx context.Context, path string) (*Index, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create index dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// 内存库每个连接各自独立
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", p, err)
		}
	}
	if _, err := db.ExecContext(ctx, indexSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init index schema: %w", err)
	}
	return &Index{db: db}, nil
}

func (x *Index) Close() error {
	return x.db.Close()
}

// Record inserts or replaces an entry.
func (x *Index) Record(ctx context.Context, e Entry) error {
	var convID sql.NullString
	if e.ConversationID != nil {
		convID = sql.NullString{String: *e.ConversationID, Valid: true}
	}
	_, err := x.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO conversations (id, pipeline, conversation_id, path, size, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Pipeline, convID, e.Path, e.Size, e.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("index %s: %w", e.ID, err)
	}
	return nil
}

func (x *Index) Remove(ctx context.Context, id string) error {
	_, err := x.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	return err
}

// List 按创建时间倒序返回索引；pipeline 为空时不过滤，limit<=0 时不限制条数。
func (x *Index) List(ctx context.Context, pipeline string, limit int) ([]Entry, error) {
	query := `SELECT id, pipeline, conversation_id, path, size, created_at FROM conversations`
	var args []any
	if pipeline != "" {
		query += ` WHERE pipeline = ?`
		args = append(args, pipeline)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := x.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e       Entry
			convID  sql.NullString
			created string
		)
		if err := rows.Scan(&e.ID, &e.Pipeline, &convID, &e.Path, &e.Size, &created); err != nil {
			return nil, err
		}
		if convID.Valid {
			id := convID.String
			e.ConversationID = &id
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
