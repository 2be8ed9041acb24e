package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// StageID 唯一标识流水线中的一个阶段。
type StageID string

// Policy 声明阶段失败时由编排器如何处理。
type Policy int

const (
	// Degrade 失败只降级当前字段：写入 warnings 后继续执行。
	Degrade Policy = iota
	// Escalate 失败终止整条流水线（下游全部依赖该阶段输出，或持久化失败）。
	Escalate
)

func (p Policy) String() string {
	if p == Escalate {
		return "escalate"
	}
	return "degrade"
}

// StageFunc 是一次 State -> State 的转换。
type StageFunc[S any] func(ctx context.Context, s S) Result[S]

// Stage 描述一个阶段：读哪些字段、写哪些字段、失败策略以及执行函数。
type Stage[S any] struct {
	ID     StageID
	Reads  []string
	Writes []string
	Policy Policy
	Run    StageFunc[S]
}

var (
	// ErrHardFail marks an error that aborted a run.
	ErrHardFail = errors.New("pipeline: hard failure")
	// ErrUnknownStage is returned for stage ids that are not part of the pipeline.
	ErrUnknownStage = errors.New("pipeline: unknown stage")
	// ErrNothingToResume is returned when resuming a checkpoint that already finished.
	ErrNothingToResume = errors.New("pipeline: nothing to resume")
	// ErrInvalidDefinition is wrapped by every Build validation error.
	ErrInvalidDefinition = errors.New("pipeline: invalid definition")
)

// StageError 表示某个 Escalate 阶段的硬失败。
type StageError struct {
	Pipeline string
	Stage    StageID
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline %s: stage %s failed: %v", e.Pipeline, e.Stage, e.Err)
}

func (e *StageError) Unwrap() []error {
	return []error{ErrHardFail, e.Err}
}
