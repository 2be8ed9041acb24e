package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Recorder 记录每次模型调用的结果与耗时。
type Recorder interface {
	ObserveLLMCall(provider string, structured bool, outcome string, elapsed time.Duration)
}

// Options 配置 Generator。
type Options struct {
	Provider string
	// Timeout 是单次外部调用的唯一上限，0 表示不限制。
	Timeout  time.Duration
	Recorder Recorder
	Logger   *zap.Logger
}

// Generator 负责调用 LLM 并把结果区分为自由文本或结构化值。
// 不做重试：一次失败就交给调用方（阶段）决定降级还是终止。
type Generator struct {
	llm    LLMClient
	opts   Options
	logger *zap.Logger
}

func New(llm LLMClient, opts Options) (*Generator, error) {
	if llm == nil {
		return nil, errors.New("llm client is required")
	}
	if opts.Provider == "" {
		opts.Provider = "llm"
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{llm: llm, opts: opts, logger: logger}, nil
}

// Provider returns the configured provider name.
func (g *Generator) Provider() string { return g.opts.Provider }

// Generate 在 prompt.Schema 为空时返回 PlainText，否则返回校验通过的 StructuredValue。
func (g *Generator) Generate(ctx context.Context, prompt Prompt) (Output, error) {
	if g.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()
	}
	structured := prompt.Schema != nil
	started := time.Now()

	raw, err := g.llm.Complete(ctx, prompt.withSchemaInstruction())
	if err == nil && strings.TrimSpace(raw) == "" {
		err = errors.New("model returned empty content")
	}
	if err != nil {
		g.observe(structured, "error", started, err)
		var callErr *CallError
		if !errors.As(err, &callErr) {
			err = &CallError{Provider: g.opts.Provider, Err: err}
		}
		return nil, err
	}

	if !structured {
		g.observe(false, "ok", started, nil)
		return PlainText{Content: strings.TrimSpace(raw)}, nil
	}
	body, value, err := prompt.Schema.Check(raw)
	if err != nil {
		g.observe(true, "invalid", started, err)
		return nil, &ValidationError{Schema: prompt.Schema.Name, Raw: raw, Err: err}
	}
	g.observe(true, "ok", started, nil)
	return StructuredValue{Schema: prompt.Schema, Value: value, Raw: body}, nil
}

// Text 执行一次自由文本生成。
func (g *Generator) Text(ctx context.Context, prompt Prompt) (string, error) {
	prompt.Schema = nil
	out, err := g.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	text, ok := out.(PlainText)
	if !ok {
		return "", fmt.Errorf("generator: unexpected output %T", out)
	}
	return text.Content, nil
}

// Structured 执行一次结构化生成并解码为 T；T 实现 Validator 时额外校验业务规则。
func Structured[T any](ctx context.Context, g *Generator, prompt Prompt, schema *Schema) (T, error) {
	var v T
	prompt.Schema = schema
	out, err := g.Generate(ctx, prompt)
	if err != nil {
		return v, err
	}
	sv, ok := out.(StructuredValue)
	if !ok {
		return v, fmt.Errorf("generator: unexpected output %T", out)
	}
	if err := sv.Decode(&v); err != nil {
		return v, &ValidationError{Schema: schema.Name, Raw: string(sv.Raw), Err: err}
	}
	if val, ok := any(&v).(Validator); ok {
		if err := val.Validate(); err != nil {
			return v, &ValidationError{Schema: schema.Name, Raw: string(sv.Raw), Err: err}
		}
	}
	return v, nil
}

func (g *Generator) observe(structured bool, outcome string, started time.Time, err error) {
	elapsed := time.Since(started)
	if g.opts.Recorder != nil {
		g.opts.Recorder.ObserveLLMCall(g.opts.Provider, structured, outcome, elapsed)
	}
	fields := []zap.Field{
		zap.String("provider", g.opts.Provider),
		zap.Bool("structured", structured),
		zap.String("outcome", outcome),
		zap.Duration("elapsed", elapsed),
	}
	if err != nil {
		g.logger.Warn("llm call failed", append(fields, zap.Error(err))...)
		return
	}
	g.logger.Debug("llm call", fields...)
}
