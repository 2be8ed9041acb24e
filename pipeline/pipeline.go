// Package pipeline 把一组阶段装配成单入口、单出口的固定流水线。
//
// 支持三种形态：严格线性；入口处一次二选一的分支（之后汇入同一条线性尾部）；
// 在声明的中断点之后暂停，把状态交还调用方，由 Resume 继续执行剩余阶段。
// 编排器从不重排、重试或重入已执行的阶段。
package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"
)

// Entry 在入口处根据种子状态选择第一个阶段。
type Entry[S any] struct {
	Candidates []StageID
	Route      func(S) StageID
}

// Definition 声明一条流水线。
type Definition[S any] struct {
	Name string
	// Seeds 是调用方可以在种子状态中提供的字段。
	Seeds  []string
	Entry  *Entry[S]
	Stages []Stage[S]
	// InterruptAfter 为空表示没有中断点。
	InterruptAfter StageID
	// Warn 把软失败的原因追加进状态的 warnings 字段。
	Warn     func(s S, warning string) S
	Observer Observer
}

// Checkpoint 是一次执行（可能暂停）之后交还给调用方的结果。
type Checkpoint[S any] struct {
	Pipeline string    `json:"pipeline"`
	State    S         `json:"state"`
	Next     StageID   `json:"next,omitempty"`
	Executed []StageID `json:"executed,omitempty"`
	Done     bool      `json:"done"`
}

// Pipeline is a validated, runnable Definition.
type Pipeline[S any] struct {
	def   Definition[S]
	index map[StageID]int
	obs   Observer
}

// Build validates the definition and returns a runnable pipeline.
func (d Definition[S]) Build() (*Pipeline[S], error) {
	if err := d.validate(); err != nil {
		return nil, err
	}
	index := make(map[StageID]int, len(d.Stages))
	for i, st := range d.Stages {
		index[st.ID] = i
	}
	obs := d.Observer
	if obs == nil {
		obs = Observers(nil)
	}
	return &Pipeline[S]{def: d, index: index, obs: obs}, nil
}

// MustBuild is Build for package-level wiring; it panics on an invalid definition.
func (d Definition[S]) MustBuild() *Pipeline[S] {
	p, err := d.Build()
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Pipeline[S]) Name() string { return p.def.Name }

// Stages returns the stage ids in declaration order.
func (p *Pipeline[S]) Stages() []StageID {
	ids := make([]StageID, len(p.def.Stages))
	for i, st := range p.def.Stages {
		ids[i] = st.ID
	}
	return ids
}

// InterruptAfter returns the declared interruption point, if any.
func (p *Pipeline[S]) InterruptAfter() StageID { return p.def.InterruptAfter }

// Start 从入口开始执行，遇到声明的中断点时暂停。
func (p *Pipeline[S]) Start(ctx context.Context, seed S) (Checkpoint[S], error) {
	return p.exec(ctx, p.newCheckpoint(seed), p.entry(seed), p.def.InterruptAfter)
}

// RunUntil 从入口执行到 stopAfter（含）为止；stopAfter 不在本次路径上时执行到结束。
func (p *Pipeline[S]) RunUntil(ctx context.Context, seed S, stopAfter StageID) (Checkpoint[S], error) {
	if _, ok := p.index[stopAfter]; !ok {
		return Checkpoint[S]{}, fmt.Errorf("%w: %s", ErrUnknownStage, stopAfter)
	}
	return p.exec(ctx, p.newCheckpoint(seed), p.entry(seed), stopAfter)
}

// Resume 从 cp.Next 继续执行剩余全部阶段，不再暂停。
// 调用方可以在恢复前修改 cp.State（例如填入人工选定的字段）。
func (p *Pipeline[S]) Resume(ctx context.Context, cp Checkpoint[S]) (Checkpoint[S], error) {
	if cp.Pipeline != "" && cp.Pipeline != p.def.Name {
		return cp, fmt.Errorf("pipeline %s: checkpoint belongs to %s", p.def.Name, cp.Pipeline)
	}
	if cp.Done || cp.Next == "" {
		return cp, ErrNothingToResume
	}
	from, ok := p.index[cp.Next]
	if !ok {
		return cp, fmt.Errorf("%w: %s", ErrUnknownStage, cp.Next)
	}
	cp.Pipeline = p.def.Name
	return p.exec(ctx, cp, from, "")
}

// Run 一次性执行到结束，忽略中断点。
func (p *Pipeline[S]) Run(ctx context.Context, seed S) (S, error) {
	cp, err := p.exec(ctx, p.newCheckpoint(seed), p.entry(seed), "")
	return cp.State, err
}

func (p *Pipeline[S]) newCheckpoint(seed S) Checkpoint[S] {
	return Checkpoint[S]{Pipeline: p.def.Name, State: seed}
}

func (p *Pipeline[S]) entry(seed S) int {
	if p.def.Entry == nil || p.def.Entry.Route == nil {
		return 0
	}
	id := p.def.Entry.Route(seed)
	if i, ok := p.index[id]; ok {
		return i
	}
	return 0
}

func (p *Pipeline[S]) exec(ctx context.Context, cp Checkpoint[S], from int, stopAfter StageID) (Checkpoint[S], error) {
	stages := p.def.Stages
	for i := from; i < len(stages); i++ {
		st := stages[i]
		p.obs.StageStarted(ctx, p.def.Name, st.ID)
		started := time.Now()
		res := invoke(ctx, st, cp.State)

		outcome := res.Outcome
		switch res.Outcome {
		case OutcomeOK:
			cp.State = res.State
		case OutcomeSoftFail:
			cp.State = p.warn(res.State, st.ID, res.Reason)
		default:
			if st.Policy == Escalate {
				p.obs.StageFinished(ctx, p.def.Name, st.ID, OutcomeHardFail, time.Since(started), res.Reason)
				cp.Next = st.ID
				return cp, &StageError{Pipeline: p.def.Name, Stage: st.ID, Err: res.Reason}
			}
			outcome = OutcomeSoftFail
			cp.State = p.warn(cp.State, st.ID, res.Reason)
		}
		p.obs.StageFinished(ctx, p.def.Name, st.ID, outcome, time.Since(started), res.Reason)
		cp.Executed = append(cp.Executed, st.ID)

		if st.ID == stopAfter && i+1 < len(stages) {
			cp.Next = stages[i+1].ID
			cp.Done = false
			return cp, nil
		}
	}
	cp.Next = ""
	cp.Done = true
	return cp, nil
}

func (p *Pipeline[S]) warn(s S, stage StageID, reason error) S {
	if p.def.Warn == nil {
		return s
	}
	msg := string(stage) + " failed"
	if reason != nil {
		msg = fmt.Sprintf("%s: %v", stage, reason)
	}
	return p.def.Warn(s, msg)
}

// invoke 保证阶段内部的 panic 不会越过阶段边界。
func invoke[S any](ctx context.Context, st Stage[S], s S) (res Result[S]) {
	defer func() {
		if r := recover(); r != nil {
			res = HardFail[S](fmt.Errorf("panic in stage %s: %v\n%s", st.ID, r, debug.Stack()))
		}
	}()
	if st.Run == nil {
		return Ok(s)
	}
	return st.Run(ctx, s)
}
