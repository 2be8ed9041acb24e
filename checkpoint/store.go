// Package checkpoint 保存在中断点暂停的运行，直到调用方恢复它。
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ErrNotFound is returned for unknown or expired run ids.
var ErrNotFound = errors.New("checkpoint: run not found")

// Run 是一次暂停的运行：下一阶段、已执行阶段与当时的状态快照。
type Run struct {
	ID        string          `json:"run_id"`
	Agent     string          `json:"agent"`
	Next      string          `json:"next"`
	Executed  []string        `json:"executed,omitempty"`
	State     json.RawMessage `json:"state"`
	CreatedAt time.Time       `json:"created_at"`
}

// Store 持久化暂停的运行。
type Store interface {
	Put(ctx context.Context, run Run) error
	Get(ctx context.Context, id string) (Run, error)
	Delete(ctx context.Context, id string) error
}

// NewID returns a lexicographically sortable run id.
func NewID() string {
	return ulid.Make().String()
}

// MemoryStore 进程内存储，重启即丢失。
type MemoryStore struct {
	mu   sync.Mutex
	runs map[string]Run
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]Run)}
}

func (s *MemoryStore) Put(_ context.Context, run Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return Run{}, ErrNotFound
	}
	return run, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs, id)
	return nil
}

// Len reports how many runs are currently suspended.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runs)
}
