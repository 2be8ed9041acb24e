package persist

import (
	"context"

	"content_agents/pipeline"
)

// SaveOptions 描述一条流水线的持久化终点阶段。
type SaveOptions[S any] struct {
	ID       pipeline.StageID
	Pipeline string
	// Anchor 返回用于派生会话 id 的锚点字段；为 nil 时记录没有 conversation_id。
	Anchor func(S) string
	// Done 把保存后的文件路径写回状态。
	Done  func(s S, path string) S
	Reads []string
}

// SaveStage 构造终点阶段。写入失败会终止整次运行（Escalate）。
func SaveStage[S any](sink *Sink, o SaveOptions[S]) pipeline.Stage[S] {
	id := o.ID
	if id == "" {
		id = "save_state"
	}
	return pipeline.Stage[S]{
		ID:     id,
		Reads:  o.Reads,
		Writes: []string{"saved_file_path"},
		Policy: pipeline.Escalate,
		Run: func(ctx context.Context, s S) pipeline.Result[S] {
			var convID *string
			if o.Anchor != nil {
				cid := Identifier(o.Anchor(s))
				convID = &cid
			}
			path, err := sink.Save(ctx, o.Pipeline, s, convID)
			if err != nil {
				return pipeline.HardFail[S](err)
			}
			if o.Done != nil {
				s = o.Done(s, path)
			}
			return pipeline.Ok(s)
		},
	}
}
