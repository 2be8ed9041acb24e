package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"content_agents/persist"
)

type fakeWeChat struct {
	mu          sync.Mutex
	tokenCalls  int
	uploads     []string
	coverFiles  []string
	draft       addDraftPayload
	draftStatus int
}

func (f *fakeWeChat) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /cgi-bin/token", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.tokenCalls++
		f.mu.Unlock()
		assert.Equal(t, "wx-app", r.URL.Query().Get("appid"))
		io.WriteString(w, `{"access_token":"TOKEN","expires_in":7200}`)
	})
	mux.HandleFunc("POST /cgi-bin/media/uploadimg", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "TOKEN", r.URL.Query().Get("access_token"))
		_, header, err := r.FormFile("media")
		require.NoError(t, err)
		f.mu.Lock()
		f.uploads = append(f.uploads, header.Filename)
		f.mu.Unlock()
		io.WriteString(w, `{"url":"https://mmbiz.example/`+header.Filename+`"}`)
	})
	mux.HandleFunc("POST /cgi-bin/material/add_material", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "image", r.URL.Query().Get("type"))
		_, header, err := r.FormFile("media")
		require.NoError(t, err)
		f.mu.Lock()
		f.coverFiles = append(f.coverFiles, header.Filename)
		f.mu.Unlock()
		io.WriteString(w, `{"media_id":"THUMB"}`)
	})
	mux.HandleFunc("POST /cgi-bin/draft/add", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&f.draft))
		if f.draftStatus != 0 {
			io.WriteString(w, `{"errcode":45009,"errmsg":"reach max api daily quota limit"}`)
			return
		}
		io.WriteString(w, `{"media_id":"DRAFT-1"}`)
	})
	return mux
}

func newTestPublisher(t *testing.T, fake *fakeWeChat) *Publisher {
	t.Helper()
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)
	p, err := New(Config{AppID: "wx-app", AppSecret: "secret", Author: "编辑部", BaseURL: srv.URL + "/"}, srv.Client(), nil)
	require.NoError(t, err)
	return p
}

func writeImages(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range []string{"cover.png", "inline.png"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("png"), 0o644))
	}
	return dir
}

func TestNew_RequiresCredentials(t *testing.T) {
	_, err := New(Config{AppID: "x"}, nil, nil)
	assert.Error(t, err)
}

func TestPublishDraft(t *testing.T) {
	fake := &fakeWeChat{}
	p := newTestPublisher(t, fake)
	dir := writeImages(t)

	mediaID, err := p.PublishDraft(context.Background(), Draft{
		Title:     "测试标题",
		Markdown:  "# 测试标题\n\n第一段内容。\n\n![配图](inline.png)\n\n1. 要点一\n2. 要点二\n",
		BaseDir:   dir,
		CoverPath: filepath.Join(dir, "cover.png"),
	})
	require.NoError(t, err)
	assert.Equal(t, "DRAFT-1", mediaID)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, []string{"inline.png"}, fake.uploads)
	assert.Equal(t, []string{"cover.png"}, fake.coverFiles)
	require.Len(t, fake.draft.Articles, 1)
	art := fake.draft.Articles[0]
	assert.Equal(t, "测试标题", art.Title)
	assert.Equal(t, "编辑部", art.Author)
	assert.Equal(t, "THUMB", art.ThumbMediaID)
	assert.Contains(t, art.Content, `src="https://mmbiz.example/inline.png"`)
	assert.Contains(t, art.Content, "<p>1. 要点一</p>")
	assert.NotContains(t, art.Content, "<h1>")
	assert.NotEmpty(t, art.Digest)
}

func TestPublishDraft_TokenIsCached(t *testing.T) {
	fake := &fakeWeChat{}
	p := newTestPublisher(t, fake)
	dir := writeImages(t)
	d := Draft{Title: "t", Markdown: "正文", CoverPath: filepath.Join(dir, "cover.png")}

	for i := 0; i < 2; i++ {
		_, err := p.PublishDraft(context.Background(), d)
		require.NoError(t, err)
	}
	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, 1, fake.tokenCalls)
}

func TestPublishDraft_APIError(t *testing.T) {
	fake := &fakeWeChat{draftStatus: 1}
	p := newTestPublisher(t, fake)
	dir := writeImages(t)

	_, err := p.PublishDraft(context.Background(), Draft{Title: "t", Markdown: "正文", CoverPath: filepath.Join(dir, "cover.png")})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 45009, apiErr.ErrCode)
	assert.Equal(t, "add draft", apiErr.Op)
}

func TestPublishDraft_MissingFields(t *testing.T) {
	p := newTestPublisher(t, &fakeWeChat{})
	_, err := p.PublishDraft(context.Background(), Draft{Title: "t", Markdown: "正文"})
	assert.ErrorIs(t, err, ErrMissingField)
}

func TestDraftFromRecord(t *testing.T) {
	rec := persist.Record{State: json.RawMessage(`{
		"article": "# 正文标题\n\n这是摘要段。",
		"titles": ["1. “第一个标题”", "第二个标题"],
		"images": ["outputs/comics/images/a.png"]
	}`)}
	d := DraftFromRecord(rec, "outputs")
	assert.Equal(t, "第一个标题", d.Title)
	assert.Equal(t, "这是摘要段。", d.Digest)
	assert.Equal(t, "outputs/comics/images/a.png", d.CoverPath)
	assert.Equal(t, "outputs", d.BaseDir)

	d = DraftFromRecord(persist.Record{State: json.RawMessage(`{"article":"# 只有正文标题\n\n内容"}`)}, "")
	assert.Equal(t, "只有正文标题", d.Title)
	assert.Empty(t, d.CoverPath)
}
