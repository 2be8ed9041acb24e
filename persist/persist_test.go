package persist

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"content_agents/pipeline"
)

type dumpable struct {
	Topic string `json:"topic"`
	Hook  func() `json:"hook"`
}

func (d dumpable) Dump() map[string]any {
	return map[string]any{"topic": d.Topic}
}

type Meta struct {
	Source string `json:"source"`
}

type sinkState struct {
	Meta
	SubtitleText string   `json:"subtitle_text,omitempty"`
	Article      string   `json:"article"`
	Analysis     dumpable `json:"analysis"`
	Stream       chan int `json:"stream"`
	Titles       []string `json:"titles"`
	Skipped      string   `json:"-"`
	hidden       string
}

var fixedTime = time.Date(2025, 1, 2, 15, 4, 5, 123456000, time.Local)

func newTestSink(t *testing.T) *Sink {
	t.Helper()
	s := NewSink(filepath.Join(t.TempDir(), "outputs", "conversations"))
	s.now = func() time.Time { return fixedTime }
	return s
}

func strPtr(s string) *string { return &s }

func TestIdentifier(t *testing.T) {
	assert.Equal(t, "d41d8cd9", Identifier(""))
	assert.Equal(t, "90015098", Identifier("abc"))
	assert.Equal(t, Identifier("同一段字幕"), Identifier("同一段字幕"))
	assert.NotEqual(t, Identifier("字幕A"), Identifier("字幕B"))
	assert.Len(t, Identifier("任意内容"), 8)
}

func TestFileName(t *testing.T) {
	s := NewSink("out")
	assert.Equal(t, "conversation_abcd1234_20250102_150405.json", s.FileName(strPtr("abcd1234"), fixedTime))
	assert.Equal(t, "conversation_20250102_150405_123.json", s.FileName(nil, fixedTime))

	s.Prefix = "comic_"
	assert.Equal(t, "comic_x_20250102_150405.json", s.FileName(strPtr("x"), fixedTime))
}

func TestSave_WritesRecord(t *testing.T) {
	s := newTestSink(t)
	state := sinkState{
		Meta:     Meta{Source: "sample.srt"},
		Article:  "<p>睡眠很重要</p>",
		Analysis: dumpable{Topic: "睡眠", Hook: func() {}},
		Skipped:  "never written",
		hidden:   "never written",
	}
	cid := Identifier("")
	path, err := s.Save(context.Background(), "content", state, &cid)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.Dir, "conversation_d41d8cd9_20250102_150405.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.HasPrefix(text, "{\n  \"timestamp\": \"2025-01-02T15:04:05.123456\""), text)
	assert.Contains(t, text, `"<p>睡眠很重要</p>"`, "html and non-ascii are kept verbatim")
	assert.NotContains(t, text, "never written")

	var rec struct {
		Timestamp      string         `json:"timestamp"`
		ConversationID *string        `json:"conversation_id"`
		State          map[string]any `json:"state"`
	}
	require.NoError(t, json.Unmarshal(data, &rec))
	require.NotNil(t, rec.ConversationID)
	assert.Equal(t, "d41d8cd9", *rec.ConversationID)

	want := map[string]any{
		"source":   "sample.srt",
		"article":  "<p>睡眠很重要</p>",
		"analysis": map[string]any{"topic": "睡眠"},
		"stream":   "<nil>",
		"titles":   nil,
	}
	if diff := cmp.Diff(want, rec.State); diff != "" {
		t.Fatalf("state mismatch (-want +got):\n%s", diff)
	}
}

func TestSave_StateRoundTrips(t *testing.T) {
	s := newTestSink(t)
	state := map[string]any{
		"titles":   []any{"标题一", "标题二"},
		"messages": []any{map[string]any{"type": "ai", "content": "你好"}},
		"ratio":    0.25,
	}
	path, err := s.Save(context.Background(), "xiaohongshu", state, nil)
	require.NoError(t, err)
	assert.Equal(t, "conversation_20250102_150405_123.json", filepath.Base(path))

	rec, err := Load(path)
	require.NoError(t, err)
	assert.Nil(t, rec.ConversationID)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(rec.State, &decoded))
	assert.Equal(t, state, decoded)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"conversation_id": null`)
}

func TestSave_FieldOrderFollowsStruct(t *testing.T) {
	s := newTestSink(t)
	path, err := s.Save(context.Background(), "content", sinkState{SubtitleText: "字幕"}, nil)
	require.NoError(t, err)
	rec, err := Load(path)
	require.NoError(t, err)

	state := string(rec.State)
	order := []string{`"source"`, `"subtitle_text"`, `"article"`, `"analysis"`, `"stream"`, `"titles"`}
	last := -1
	for _, key := range order {
		idx := strings.Index(state, key)
		require.Greater(t, idx, last, key)
		last = idx
	}
}

func TestSave_WriteFailurePropagates(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	s := NewSink(filepath.Join(blocker, "sub"))
	_, err := s.Save(context.Background(), "content", sinkState{}, nil)
	assert.Error(t, err)
}

func TestRecords(t *testing.T) {
	ctx := context.Background()
	s := newTestSink(t)

	first, err := s.Save(ctx, "content", map[string]any{"article": "a"}, strPtr("aaaa1111"))
	require.NoError(t, err)
	s.now = func() time.Time { return fixedTime.Add(time.Second) }
	second, err := s.Save(ctx, "content", map[string]any{"article": "b"}, strPtr("bbbb2222"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir, "broken.json"), []byte("{"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(first, fixedTime, fixedTime))
	require.NoError(t, os.Chtimes(second, fixedTime.Add(time.Hour), fixedTime.Add(time.Hour)))

	list, err := s.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "conversation_bbbb2222_20250102_150406", list[0].ID)
	assert.Equal(t, "conversation_aaaa1111_20250102_150405.json", list[1].Filename)
	assert.Positive(t, list[1].Size)

	latest, err := s.Latest(1)
	require.NoError(t, err)
	assert.Equal(t, []string{second}, latest)

	rec, err := s.Get(list[1].ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"article":"a"}`, string(rec.State))

	_, err = s.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	for _, bad := range []string{"", "../etc/passwd", "a/b", ".."} {
		_, err = s.Get(bad)
		assert.ErrorIs(t, err, ErrNotFound, bad)
	}

	require.NoError(t, s.Delete(ctx, list[1].ID))
	assert.ErrorIs(t, s.Delete(ctx, list[1].ID), ErrNotFound)
	_, err = os.Stat(first)
	assert.True(t, os.IsNotExist(err))
}

func TestList_MissingDir(t *testing.T) {
	s := NewSink(filepath.Join(t.TempDir(), "nope"))
	list, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestIndex(t *testing.T) {
	ctx := context.Background()
	idx, err := OpenIndex(ctx, ":memory:")
	require.NoError(t, err)
	defer idx.Close()

	s := newTestSink(t)
	s.Index = idx
	_, err = s.Save(ctx, "comic", map[string]any{"description": "猫"}, strPtr(Identifier("猫")))
	require.NoError(t, err)
	s.now = func() time.Time { return fixedTime.Add(time.Minute) }
	_, err = s.Save(ctx, "excel", map[string]any{"table_text": "|a|"}, nil)
	require.NoError(t, err)

	all, err := idx.List(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "excel", all[0].Pipeline, "newest first")
	assert.Nil(t, all[0].ConversationID)

	comics, err := idx.List(ctx, "comic", 10)
	require.NoError(t, err)
	require.Len(t, comics, 1)
	require.NotNil(t, comics[0].ConversationID)
	assert.Equal(t, Identifier("猫"), *comics[0].ConversationID)
	assert.True(t, comics[0].CreatedAt.Equal(fixedTime))

	require.NoError(t, s.Delete(ctx, comics[0].ID))
	comics, err = idx.List(ctx, "comic", 10)
	require.NoError(t, err)
	assert.Empty(t, comics)
}

type stageState struct {
	Description   string   `json:"description"`
	SavedFilePath string   `json:"saved_file_path,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
}

func TestSaveStage(t *testing.T) {
	s := newTestSink(t)
	stage := SaveStage(s, SaveOptions[stageState]{
		ID:       "save_conversation_state",
		Pipeline: "comic",
		Anchor:   func(st stageState) string { return st.Description },
		Done: func(st stageState, path string) stageState {
			st.SavedFilePath = path
			return st
		},
	})
	assert.Equal(t, pipeline.Escalate, stage.Policy)
	assert.Equal(t, []string{"saved_file_path"}, stage.Writes)

	res := stage.Run(context.Background(), stageState{Description: "一只猫"})
	require.Equal(t, pipeline.OutcomeOK, res.Outcome)
	assert.Equal(t,
		filepath.Join(s.Dir, "conversation_"+Identifier("一只猫")+"_20250102_150405.json"),
		res.State.SavedFilePath)
}

func TestSaveStage_FailureAbortsRun(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	p := pipeline.Definition[stageState]{
		Name: "comic",
		Stages: []pipeline.Stage[stageState]{
			SaveStage(NewSink(filepath.Join(blocker, "out")), SaveOptions[stageState]{Pipeline: "comic"}),
		},
	}.MustBuild()

	_, err := p.Run(context.Background(), stageState{Description: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, pipeline.ErrHardFail))
}

func TestSave_LogsStructuredMessage(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := NewSink(t.TempDir())
	s.Logger = zap.New(core)

	id := Identifier("周末不内耗指南")
	path, err := s.Save(context.Background(), "xiaohongshu", map[string]any{"article": "# 标题"}, &id)
	require.NoError(t, err)

	saved := logs.FilterMessage("conversation saved").All()
	require.Len(t, saved, 1)
	fields := saved[0].ContextMap()
	assert.Equal(t, path, fields["path"])
	assert.Equal(t, "xiaohongshu", fields["pipeline"])
}
