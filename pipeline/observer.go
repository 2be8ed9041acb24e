package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Observer is notified around every stage execution.
type Observer interface {
	StageStarted(ctx context.Context, pipeline string, stage StageID)
	StageFinished(ctx context.Context, pipeline string, stage StageID, outcome Outcome, elapsed time.Duration, err error)
}

// Observers fans out to every non-nil observer in order.
type Observers []Observer

func (o Observers) StageStarted(ctx context.Context, pipeline string, stage StageID) {
	for _, obs := range o {
		if obs != nil {
			obs.StageStarted(ctx, pipeline, stage)
		}
	}
}

func (o Observers) StageFinished(ctx context.Context, pipeline string, stage StageID, outcome Outcome, elapsed time.Duration, err error) {
	for _, obs := range o {
		if obs != nil {
			obs.StageFinished(ctx, pipeline, stage, outcome, elapsed, err)
		}
	}
}

type logObserver struct {
	logger *zap.Logger
}

// LogObserver 以结构化日志记录每个阶段的开始与结果。
func LogObserver(logger *zap.Logger) Observer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return logObserver{logger: logger}
}

func (l logObserver) StageStarted(_ context.Context, pipeline string, stage StageID) {
	l.logger.Debug("stage started", zap.String("pipeline", pipeline), zap.String("stage", string(stage)))
}

func (l logObserver) StageFinished(_ context.Context, pipeline string, stage StageID, outcome Outcome, elapsed time.Duration, err error) {
	fields := []zap.Field{
		zap.String("pipeline", pipeline),
		zap.String("stage", string(stage)),
		zap.String("outcome", outcome.String()),
		zap.Duration("elapsed", elapsed),
	}
	switch outcome {
	case OutcomeOK:
		l.logger.Info("stage done", fields...)
	case OutcomeSoftFail:
		l.logger.Warn("stage degraded", append(fields, zap.Error(err))...)
	default:
		l.logger.Error("stage aborted run", append(fields, zap.Error(err))...)
	}
}
