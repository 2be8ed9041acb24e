package agents

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"content_agents/checkpoint"
	"content_agents/pipeline"
)

type pickState struct {
	Topics        []string `json:"topics,omitempty"`
	SelectedTopic string   `json:"selected_topic,omitempty"`
	Article       string   `json:"article,omitempty"`
	Trail
}

func pickPipeline(t *testing.T, failArticle bool) *pipeline.Pipeline[pickState] {
	t.Helper()
	p, err := pipeline.Definition[pickState]{
		Name:  "picker",
		Seeds: []string{"selected_topic"},
		Stages: []pipeline.Stage[pickState]{
			{
				ID:     "generate_topic",
				Writes: []string{"topics"},
				Run: func(_ context.Context, s pickState) pipeline.Result[pickState] {
					s.Topics = []string{"春日露营", "城市骑行"}
					s.Say("选题完成")
					return pipeline.Ok(s)
				},
			},
			{
				ID:     "generate_article",
				Reads:  []string{"selected_topic"},
				Writes: []string{"article"},
				Policy: pipeline.Escalate,
				Run: func(_ context.Context, s pickState) pipeline.Result[pickState] {
					if failArticle {
						return pipeline.HardFail[pickState](errors.New("model unavailable"))
					}
					s.Article = "关于" + s.SelectedTopic
					return pipeline.Ok(s)
				},
			},
		},
		InterruptAfter: "generate_topic",
		Warn: func(s pickState, w string) pickState {
			s.Warn(w)
			return s
		},
	}.Build()
	require.NoError(t, err)
	return p
}

type runCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *runCounter) RecordRun(_ string, status string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = map[string]int{}
	}
	c.counts[status]++
}

func TestRegistry_StartInterruptResume(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	rec := &runCounter{}
	reg := NewRegistry(store, rec, nil)
	Register(reg, pickPipeline(t, false))
	ctx := context.Background()

	assert.Equal(t, []string{"picker"}, reg.Names())
	assert.True(t, reg.Has("picker"))

	res, err := reg.Start(ctx, "picker", nil)
	require.NoError(t, err)
	assert.Equal(t, StatusInterrupted, res.Status)
	assert.Equal(t, "generate_article", res.Next)
	assert.Equal(t, []string{"generate_topic"}, res.Executed)
	assert.Equal(t, "春日露营", gjson.GetBytes(res.State, "topics.0").String())
	assert.False(t, gjson.GetBytes(res.State, "article").Exists())
	assert.Equal(t, 1, store.Len())

	run, err := reg.Get(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, "picker", run.Agent)

	done, err := reg.Resume(ctx, res.RunID, json.RawMessage(`{"selected_topic":"城市骑行"}`))
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	assert.Equal(t, []string{"generate_topic", "generate_article"}, done.Executed)
	assert.Equal(t, "关于城市骑行", gjson.GetBytes(done.State, "article").String())
	assert.Equal(t, "选题完成", gjson.GetBytes(done.State, "messages.0.content").String())
	assert.Zero(t, store.Len())

	_, err = reg.Resume(ctx, res.RunID, nil)
	assert.ErrorIs(t, err, checkpoint.ErrNotFound)

	assert.Equal(t, 1, rec.counts[StatusInterrupted])
	assert.Equal(t, 1, rec.counts[StatusResumed])
	assert.Equal(t, 1, rec.counts[StatusCompleted])
}

func TestRegistry_SeedSkipsInterrupt(t *testing.T) {
	reg := NewRegistry(nil, nil, nil)
	Register(reg, pickPipeline(t, false))

	res, err := reg.Start(context.Background(), "picker", json.RawMessage(`{"selected_topic":"城市骑行"}`))
	require.NoError(t, err)
	// 没有入口分支时从第一个阶段开始，仍会在中断点暂停
	assert.Equal(t, StatusInterrupted, res.Status)
	assert.Equal(t, "城市骑行", gjson.GetBytes(res.State, "selected_topic").String())
}

func TestRegistry_Errors(t *testing.T) {
	reg := NewRegistry(nil, nil, nil)
	Register(reg, pickPipeline(t, true))
	ctx := context.Background()

	_, err := reg.Start(ctx, "missing", nil)
	assert.ErrorIs(t, err, ErrUnknownAgent)

	_, err = reg.Start(ctx, "picker", json.RawMessage(`[1,2]`))
	assert.ErrorIs(t, err, ErrBadInput)

	res, err := reg.Start(ctx, "picker", nil)
	require.NoError(t, err)

	failed, err := reg.Resume(ctx, res.RunID, json.RawMessage(`{"selected_topic":"x"}`))
	assert.ErrorIs(t, err, pipeline.ErrHardFail)
	assert.Equal(t, StatusFailed, failed.Status)

	// checkpoint 在失败后仍然保留
	_, err = reg.Get(ctx, res.RunID)
	assert.NoError(t, err)
}

func TestTrail_AppendOnly(t *testing.T) {
	var tr Trail
	tr.Say("a")
	tr.Say("b")
	tr.Warn("w")
	require.Len(t, tr.Messages, 2)
	assert.NotEqual(t, tr.Messages[0].ID, tr.Messages[1].ID)
	assert.Equal(t, "ai", tr.Messages[0].Type)
	assert.Equal(t, []string{"w"}, tr.Warnings)
}
