// Package persist 把流水线的终态写成 JSON 会话记录，并提供读取、列举与删除。
package persist

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultPrefix 是会话记录文件名的前缀。
	DefaultPrefix = "conversation_"
	// TimestampLayout 是记录内 timestamp 字段的格式（ISO-8601，微秒精度，本地时间）。
	TimestampLayout = "2006-01-02T15:04:05.000000"
)

// Sink 是写入单个输出目录的持久化终点，每个输出族（conversations / comics / excel）一个。
type Sink struct {
	Dir      string
	Prefix   string
	// Index 可选；保存成功后登记一条索引，失败只记日志。
	Index    *Index
	Logger   *zap.Logger
	// Recorder 可选，每次保存成功后计数。
	Recorder interface{ RecordSaved(pipeline string) }

	now func() time.Time
}

// NewSink returns a sink writing into dir with the default file prefix.
func NewSink(dir string) *Sink {
	return &Sink{Dir: dir, Prefix: DefaultPrefix, now: time.Now}
}

// Identifier 对锚点字段取 md5 并截断为 8 位十六进制；空锚点得到 md5("") 的前缀。
func Identifier(anchor string) string {
	sum := md5.Sum([]byte(anchor))
	return hex.EncodeToString(sum[:])[:8]
}

// Record 是磁盘上的会话记录。
type Record struct {
	Timestamp      string          `json:"timestamp"`
	ConversationID *string         `json:"conversation_id"`
	State          json.RawMessage `json:"state"`
}

func (s *Sink) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

func (s *Sink) prefix() string {
	if s.Prefix == "" {
		return DefaultPrefix
	}
	return s.Prefix
}

func (s *Sink) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

// FileName 返回给定时刻的记录文件名：有 id 时为 <prefix><id>_<秒级时间>，否则为 <prefix><毫秒级时间>。
func (s *Sink) FileName(conversationID *string, at time.Time) string {
	if conversationID != nil {
		return fmt.Sprintf("%s%s_%s.json", s.prefix(), *conversationID, at.Format("20060102_150405"))
	}
	ts := strings.Replace(at.Format("20060102_150405.000"), ".", "_", 1)
	return fmt.Sprintf("%s%s.json", s.prefix(), ts)
}

// Save 写入一条记录并返回文件路径。写入是单次 os.WriteFile：不 fsync，不走临时文件改名，不检查同名文件。
// pipeline 只用于索引登记。
func (s *Sink) Save(ctx context.Context, pipeline string, state any, conversationID *string) (string, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	now := s.clock()
	path := filepath.Join(s.Dir, s.FileName(conversationID, now))

	data, err := encodeRecord(Record{
		Timestamp:      now.Format(TimestampLayout),
		ConversationID: conversationID,
		State:          MarshalFields(SerializeState(state)),
	})
	if err != nil {
		return "", fmt.Errorf("encode record: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write record: %w", err)
	}
	s.logger().Info("conversation saved", zap.String("path", path), zap.String("pipeline", pipeline))
	if s.Recorder != nil {
		s.Recorder.RecordSaved(pipeline)
	}

	if s.Index != nil {
		entry := Entry{
			ID:             strings.TrimSuffix(filepath.Base(path), ".json"),
			Pipeline:       pipeline,
			ConversationID: conversationID,
			Path:           path,
			Size:           int64(len(data)),
			CreatedAt:      now,
		}
		if err := s.Index.Record(ctx, entry); err != nil {
			s.logger().Warn("index conversation failed", zap.String("path", path), zap.Error(err))
		}
	}
	return path, nil
}

func encodeRecord(r Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
