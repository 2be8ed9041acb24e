package generator

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

type sampleItem struct {
	ID   int    `json:"id" jsonschema_description:"顺序编号"`
	Text string `json:"text" jsonschema_description:"内容"`
}

type sample struct {
	Topic string       `json:"topic" jsonschema_description:"主题"`
	Items []sampleItem `json:"items"`
	Score *float64     `json:"score,omitempty"`
}

func (s sample) Validate() error {
	if len(s.Items) == 0 {
		return errors.New("items must not be empty")
	}
	return nil
}

var sampleSchema = SchemaFor[sample]("sample", "测试用结构")

type countingRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (c *countingRecorder) ObserveLLMCall(_ string, _ bool, outcome string, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes = append(c.outcomes, outcome)
}

func newGenerator(t *testing.T, fn LLMFunc, opts Options) *Generator {
	t.Helper()
	g, err := New(fn, opts)
	require.NoError(t, err)
	return g
}

func TestNewRequiresClient(t *testing.T) {
	_, err := New(nil, Options{})
	assert.Error(t, err)
}

func TestGenerate_PlainText(t *testing.T) {
	g := newGenerator(t, func(_ context.Context, p Prompt) (string, error) {
		assert.Equal(t, "写一篇文章", p.User)
		return "  正文内容\n", nil
	}, Options{})

	out, err := g.Generate(context.Background(), Prompt{User: "写一篇文章"})
	require.NoError(t, err)
	assert.Equal(t, PlainText{Content: "正文内容"}, out)
}

func TestStructured_DecodesFencedJSON(t *testing.T) {
	rec := &countingRecorder{}
	g := newGenerator(t, func(_ context.Context, p Prompt) (string, error) {
		assert.Contains(t, p.User, "JSON Schema")
		assert.Same(t, sampleSchema, p.Schema)
		return "```json\n{\"topic\":\"露营\",\"items\":[{\"id\":1,\"text\":\"准备帐篷\"}]}\n```", nil
	}, Options{Recorder: rec})

	v, err := Structured[sample](context.Background(), g, Prompt{User: "提取"}, sampleSchema)
	require.NoError(t, err)
	assert.Equal(t, "露营", v.Topic)
	require.Len(t, v.Items, 1)
	assert.Equal(t, "准备帐篷", v.Items[0].Text)
	assert.Nil(t, v.Score)
	assert.Equal(t, []string{"ok"}, rec.outcomes)
}

func TestStructured_MissingRequiredField(t *testing.T) {
	rec := &countingRecorder{}
	g := newGenerator(t, func(context.Context, Prompt) (string, error) {
		return `{"items":[]}`, nil
	}, Options{Recorder: rec})

	_, err := Structured[sample](context.Background(), g, Prompt{User: "提取"}, sampleSchema)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchemaValidation)
	assert.NotErrorIs(t, err, ErrTransient)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "sample", verr.Schema)
	assert.Contains(t, verr.Error(), "topic")
	assert.Equal(t, []string{"invalid"}, rec.outcomes)
}

func TestStructured_WrongType(t *testing.T) {
	g := newGenerator(t, func(context.Context, Prompt) (string, error) {
		return `{"topic":"x","items":[{"id":"one","text":"a"}]}`, nil
	}, Options{})

	_, err := Structured[sample](context.Background(), g, Prompt{}, sampleSchema)
	assert.ErrorIs(t, err, ErrSchemaValidation)
}

func TestStructured_ValidatorRuns(t *testing.T) {
	g := newGenerator(t, func(context.Context, Prompt) (string, error) {
		return `{"topic":"x","items":[]}`, nil
	}, Options{})

	_, err := Structured[sample](context.Background(), g, Prompt{}, sampleSchema)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchemaValidation)
	assert.Contains(t, err.Error(), "items must not be empty")
}

func TestGenerate_CallFailureIsTransient(t *testing.T) {
	g := newGenerator(t, func(context.Context, Prompt) (string, error) {
		return "", errors.New("429 too many requests")
	}, Options{Provider: "deepseek"})

	_, err := g.Text(context.Background(), Prompt{User: "hi"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransient)

	var callErr *CallError
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, "deepseek", callErr.Provider)
}

func TestGenerate_EmptyContentIsTransient(t *testing.T) {
	g := newGenerator(t, func(context.Context, Prompt) (string, error) {
		return "   ", nil
	}, Options{})

	_, err := g.Text(context.Background(), Prompt{User: "hi"})
	assert.ErrorIs(t, err, ErrTransient)
}

func TestGenerate_TimeoutBoundsTheCall(t *testing.T) {
	g := newGenerator(t, func(ctx context.Context, _ Prompt) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}, Options{Timeout: 20 * time.Millisecond})

	_, err := g.Text(context.Background(), Prompt{User: "slow"})
	assert.ErrorIs(t, err, ErrTransient)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMockLLM_StructuredExampleValidates(t *testing.T) {
	g, err := New(MockLLM{}, Options{Provider: "mock"})
	require.NoError(t, err)

	v, err := Structured[sample](context.Background(), g, Prompt{User: "提取"}, sampleSchema)
	require.NoError(t, err)
	assert.NotEmpty(t, v.Topic)
	assert.Len(t, v.Items, 1)

	text, err := g.Text(context.Background(), Prompt{User: "主题：周末露营\n其他"})
	require.NoError(t, err)
	assert.Equal(t, "自动生成示例标题", ExtractTitle(text))
	assert.Contains(t, text, "主题：周末露营")
}

func TestSchemaFor(t *testing.T) {
	doc := gjson.ParseBytes(sampleSchema.JSON())
	assert.Equal(t, "object", doc.Get("type").String())
	assert.Equal(t, "string", doc.Get("properties.topic.type").String())
	assert.Equal(t, "主题", doc.Get("properties.topic.description").String())
	assert.Equal(t, "integer", doc.Get("properties.items.items.properties.id.type").String())

	var required []string
	for _, r := range doc.Get("required").Array() {
		required = append(required, r.String())
	}
	assert.ElementsMatch(t, []string{"topic", "items"}, required)
	assert.False(t, doc.Get("$schema").Exists())
}

type roundTrip func(*http.Request) *http.Response

func (rt roundTrip) RoundTrip(req *http.Request) (*http.Response, error) {
	return rt(req), nil
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

const chatCompletion = `{
	"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"deepseek-chat",
	"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"回答"}}]
}`

func TestOpenAILLM_RequestShape(t *testing.T) {
	tests := []struct {
		name       string
		provider   string
		wantFormat string
	}{
		{"openai uses json_schema", "openai", "json_schema"},
		{"deepseek uses json_object", "deepseek", "json_object"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body []byte
			httpClient := &http.Client{Transport: roundTrip(func(req *http.Request) *http.Response {
				assert.True(t, strings.HasSuffix(req.URL.Path, "/chat/completions"), req.URL.Path)
				assert.Equal(t, "Bearer sk-test", req.Header.Get("Authorization"))
				body, _ = io.ReadAll(req.Body)
				return jsonResponse(http.StatusOK, chatCompletion)
			})}
			llm, err := NewOpenAILLMFromConfig(&LLMSettings{
				Provider: tt.provider,
				Model:    "deepseek-chat",
				APIKey:   "sk-test",
				BaseURL:  "https://api.test/v1/",
			}, option.WithHTTPClient(httpClient))
			require.NoError(t, err)

			out, err := llm.Complete(context.Background(), Prompt{
				System:      "系统",
				User:        "用户",
				Temperature: Temperature(0.3),
				Schema:      sampleSchema,
			})
			require.NoError(t, err)
			assert.Equal(t, "回答", out)

			req := gjson.ParseBytes(body)
			assert.Equal(t, "deepseek-chat", req.Get("model").String())
			assert.InDelta(t, 0.3, req.Get("temperature").Float(), 1e-9)
			assert.Equal(t, "system", req.Get("messages.0.role").String())
			assert.Equal(t, "用户", req.Get("messages.1.content").String())
			assert.Equal(t, tt.wantFormat, req.Get("response_format.type").String())
		})
	}
}

func TestOpenAILLM_ErrorStatus(t *testing.T) {
	httpClient := &http.Client{Transport: roundTrip(func(*http.Request) *http.Response {
		return jsonResponse(http.StatusTooManyRequests, `{"error":{"message":"rate limited","type":"rate_limit"}}`)
	})}
	llm, err := NewOpenAILLMFromConfig(&LLMSettings{
		Provider: "deepseek",
		Model:    "deepseek-chat",
		APIKey:   "sk-test",
		BaseURL:  "https://api.test/v1/",
	}, option.WithHTTPClient(httpClient))
	require.NoError(t, err)

	_, err = llm.Complete(context.Background(), Prompt{User: "hi"})
	assert.ErrorIs(t, err, ErrTransient)
}

func TestNewOpenAILLMFromConfig_Validation(t *testing.T) {
	_, err := NewOpenAILLMFromConfig(nil)
	assert.Error(t, err)
	_, err = NewOpenAILLMFromConfig(&LLMSettings{Model: "m"})
	assert.Error(t, err)
	_, err = NewOpenAILLMFromConfig(&LLMSettings{APIKey: "k"})
	assert.Error(t, err)
}
