package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"content_agents/checkpoint"
	"content_agents/pipeline"
)

var (
	// ErrUnknownAgent is returned for agent names that were never registered.
	ErrUnknownAgent = errors.New("agents: unknown agent")
	// ErrBadInput wraps seed or patch bodies that do not decode into the agent's state.
	ErrBadInput = errors.New("agents: invalid input")
)

// 运行状态
const (
	StatusCompleted   = "completed"
	StatusInterrupted = "interrupted"
	StatusFailed      = "failed"
	StatusResumed     = "resumed"
)

// RunResult 是启动或恢复一次运行之后返回给调用方的结果。
type RunResult struct {
	RunID    string          `json:"run_id"`
	Agent    string          `json:"agent"`
	Status   string          `json:"status"`
	Next     string          `json:"next,omitempty"`
	Executed []string        `json:"executed"`
	State    json.RawMessage `json:"state,omitempty"`
}

// RunRecorder 记录运行结果（metrics）。
type RunRecorder interface {
	RecordRun(agent, status string)
}

// snapshot 是去掉类型参数之后的 Checkpoint。
type snapshot struct {
	State    json.RawMessage
	Next     string
	Executed []string
	Done     bool
}

type runner interface {
	start(ctx context.Context, seed json.RawMessage) (snapshot, error)
	resume(ctx context.Context, from snapshot, patch json.RawMessage) (snapshot, error)
}

// Registry 按名字保存流水线；暂停的运行存入 checkpoint.Store，直到被恢复。
type Registry struct {
	store    checkpoint.Store
	recorder RunRecorder
	logger   *zap.Logger
	runners  map[string]runner
	now      func() time.Time
}

func NewRegistry(store checkpoint.Store, recorder RunRecorder, logger *zap.Logger) *Registry {
	if store == nil {
		store = checkpoint.NewMemoryStore()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		store:    store,
		recorder: recorder,
		logger:   logger,
		runners:  make(map[string]runner),
		now:      time.Now,
	}
}

// Register 以流水线自身的名字注册。重复注册会覆盖之前的流水线。
func Register[S any](r *Registry, p *pipeline.Pipeline[S]) {
	r.runners[p.Name()] = pipelineRunner[S]{p: p}
}

// Names returns the registered agent names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.runners))
	for name := range r.runners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether agent is registered.
func (r *Registry) Has(agent string) bool {
	_, ok := r.runners[agent]
	return ok
}

// Start 用 seed 启动一次运行。遇到中断点时把运行存入 store 并返回 interrupted。
func (r *Registry) Start(ctx context.Context, agent string, seed json.RawMessage) (RunResult, error) {
	rn, ok := r.runners[agent]
	if !ok {
		return RunResult{}, fmt.Errorf("%w: %s", ErrUnknownAgent, agent)
	}
	runID := checkpoint.NewID()
	logger := r.logger.With(zap.String("agent", agent), zap.String("run_id", runID))
	logger.Info("run started")

	snap, err := rn.start(ctx, seed)
	res := newResult(runID, agent, snap)
	if err != nil {
		return r.failed(logger, res, err)
	}
	if !snap.Done {
		run := checkpoint.Run{
			ID:        runID,
			Agent:     agent,
			Next:      snap.Next,
			Executed:  snap.Executed,
			State:     snap.State,
			CreatedAt: r.now(),
		}
		if err := r.store.Put(ctx, run); err != nil {
			return r.failed(logger, res, fmt.Errorf("store checkpoint: %w", err))
		}
		logger.Info("run interrupted", zap.String("next", snap.Next))
	} else {
		logger.Info("run completed")
	}
	r.record(agent, res.Status)
	return res, nil
}

// Resume 取出暂停的运行，把 patch 合并进状态后执行剩余阶段。
// 失败时保留 checkpoint，调用方可以修正后再次恢复。
func (r *Registry) Resume(ctx context.Context, runID string, patch json.RawMessage) (RunResult, error) {
	run, err := r.store.Get(ctx, runID)
	if err != nil {
		return RunResult{}, err
	}
	rn, ok := r.runners[run.Agent]
	if !ok {
		return RunResult{}, fmt.Errorf("%w: %s", ErrUnknownAgent, run.Agent)
	}
	logger := r.logger.With(zap.String("agent", run.Agent), zap.String("run_id", runID))
	logger.Info("run resumed", zap.String("next", run.Next))

	snap, err := rn.resume(ctx, snapshot{State: run.State, Next: run.Next, Executed: run.Executed}, patch)
	res := newResult(runID, run.Agent, snap)
	if err != nil {
		return r.failed(logger, res, err)
	}
	if err := r.store.Delete(ctx, runID); err != nil {
		logger.Warn("failed to delete checkpoint", zap.Error(err))
	}
	r.record(run.Agent, StatusResumed)
	r.record(run.Agent, res.Status)
	logger.Info("run completed")
	return res, nil
}

// Get returns a suspended run.
func (r *Registry) Get(ctx context.Context, runID string) (checkpoint.Run, error) {
	return r.store.Get(ctx, runID)
}

func (r *Registry) failed(logger *zap.Logger, res RunResult, err error) (RunResult, error) {
	res.Status = StatusFailed
	if errors.Is(err, ErrBadInput) {
		logger.Warn("run rejected", zap.Error(err))
		return res, err
	}
	logger.Error("run failed", zap.Error(err))
	r.record(res.Agent, StatusFailed)
	return res, err
}

func (r *Registry) record(agent, status string) {
	if r.recorder != nil {
		r.recorder.RecordRun(agent, status)
	}
}

func newResult(runID, agent string, snap snapshot) RunResult {
	status := StatusCompleted
	if !snap.Done {
		status = StatusInterrupted
	}
	executed := snap.Executed
	if executed == nil {
		executed = []string{}
	}
	return RunResult{
		RunID:    runID,
		Agent:    agent,
		Status:   status,
		Next:     snap.Next,
		Executed: executed,
		State:    snap.State,
	}
}

type pipelineRunner[S any] struct {
	p *pipeline.Pipeline[S]
}

func (pr pipelineRunner[S]) start(ctx context.Context, seed json.RawMessage) (snapshot, error) {
	var s S
	if err := decodeInto(&s, seed); err != nil {
		return snapshot{}, err
	}
	cp, err := pr.p.Start(ctx, s)
	return toSnapshot(cp), err
}

func (pr pipelineRunner[S]) resume(ctx context.Context, from snapshot, patch json.RawMessage) (snapshot, error) {
	var s S
	if err := decodeInto(&s, from.State); err != nil {
		return from, err
	}
	if err := decodeInto(&s, patch); err != nil {
		return from, err
	}
	executed := make([]pipeline.StageID, len(from.Executed))
	for i, id := range from.Executed {
		executed[i] = pipeline.StageID(id)
	}
	cp, err := pr.p.Resume(ctx, pipeline.Checkpoint[S]{
		Pipeline: pr.p.Name(),
		State:    s,
		Next:     pipeline.StageID(from.Next),
		Executed: executed,
	})
	return toSnapshot(cp), err
}

// decodeInto 把 JSON 对象合并进 v；空 body 与 null 视为不修改。
func decodeInto(v any, data json.RawMessage) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadInput, err)
	}
	return nil
}

func toSnapshot[S any](cp pipeline.Checkpoint[S]) snapshot {
	state, _ := json.Marshal(cp.State)
	executed := make([]string, len(cp.Executed))
	for i, id := range cp.Executed {
		executed[i] = string(id)
	}
	return snapshot{State: state, Next: string(cp.Next), Executed: executed, Done: cp.Done}
}
