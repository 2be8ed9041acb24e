package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"content_agents/agents"
	"content_agents/agents/comic"
	"content_agents/agents/content"
	"content_agents/agents/excel"
	"content_agents/agents/xiaohongshu"
	"content_agents/checkpoint"
	"content_agents/config"
	"content_agents/generator"
	"content_agents/imagegen"
	"content_agents/metrics"
	"content_agents/objstore"
	"content_agents/persist"
	"content_agents/pipeline"
	"content_agents/publisher"
	"content_agents/server"
)

// app 持有一次进程生命周期内共享的组件。
type app struct {
	cfg       config.Config
	logger    *zap.Logger
	metrics   *metrics.Metrics
	registry  *agents.Registry
	store     checkpoint.Store
	families  map[string]*persist.Sink
	index     *persist.Index
	publisher *publisher.Publisher
	closers   []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// loadApp 读取 --config 并装配全部组件。
func loadApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return buildApp(ctx, cfg, logger)
}

func buildApp(ctx context.Context, cfg config.Config, log *zap.Logger) (a *app, err error) {
	if log == nil {
		log = zap.NewNop()
	}
	a = &app{
		cfg:     cfg,
		logger:  log,
		metrics: metrics.New("content_agents"),
	}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if cfg.IndexPath != "" {
		a.index, err = persist.OpenIndex(ctx, cfg.IndexPath)
		if err != nil {
			return nil, fmt.Errorf("open index: %w", err)
		}
		a.closers = append(a.closers, a.index.Close)
	}
	a.families = make(map[string]*persist.Sink, 3)
	for _, family := range []string{server.FamilyConversations, server.FamilyComics, server.FamilyExcel} {
		sink := persist.NewSink(cfg.OutputPath(family))
		sink.Logger = log
		sink.Recorder = a.metrics
		sink.Index = a.index
		a.families[family] = sink
	}

	if cfg.Redis.URL != "" {
		rs, err := checkpoint.NewRedisStoreFromURL(cfg.Redis.URL, cfg.Redis.TTL.Std())
		if err != nil {
			return nil, err
		}
		a.store = rs
		a.closers = append(a.closers, rs.Close)
	} else {
		a.store = checkpoint.NewMemoryStore()
	}

	if cfg.WeChat.Enabled() {
		a.publisher, err = publisher.New(cfg.WeChat, nil, log)
		if err != nil {
			return nil, err
		}
	}

	llm, err := buildLLM(ctx, cfg.LLM)
	if err != nil {
		return nil, err
	}
	gen, err := generator.New(llm, generator.Options{
		Provider: cfg.LLM.Provider,
		Timeout:  cfg.LLM.Timeout.Std(),
		Recorder: a.metrics,
		Logger:   log,
	})
	if err != nil {
		return nil, err
	}
	images, err := imagegen.New(ctx, imagegen.Settings{
		Provider: cfg.Image.Provider,
		Model:    cfg.Image.Model,
		APIKey:   cfg.Image.APIKey,
		BaseURL:  cfg.Image.BaseURL,
		Timeout:  cfg.Image.Timeout.Std(),
	})
	if err != nil {
		return nil, err
	}

	var archive comic.Archiver
	if cfg.MinIO.Enabled() {
		oc, err := objstore.NewClient(cfg.MinIO)
		if err != nil {
			return nil, err
		}
		archive = oc
	}

	observer := pipeline.Observers{pipeline.LogObserver(log), a.metrics}
	a.registry = agents.NewRegistry(a.store, a.metrics, log)

	contentP, err := content.New(content.Options{
		Generator: gen,
		Sink:      a.families[server.FamilyConversations],
		DataDir:   cfg.DataDir,
		Observer:  observer,
		Logger:    log,
	})
	if err != nil {
		return nil, err
	}
	agents.Register(a.registry, contentP)

	comicP, err := comic.New(comic.Options{
		Generator: gen,
		Images:    images,
		Artifacts: imagegen.NewStore(cfg.OutputPath(server.FamilyComics)),
		Archive:   archive,
		Sink:      a.families[server.FamilyComics],
		Mode:      cfg.Image.Mode,
		MaxPanels: cfg.Image.MaxPanels,
		Style:     cfg.Image.Style,
		Observer:  observer,
		Logger:    log,
	})
	if err != nil {
		return nil, err
	}
	agents.Register(a.registry, comicP)

	xhsP, err := xiaohongshu.New(xiaohongshu.Options{
		Generator: gen,
		Sink:      a.families[server.FamilyConversations],
		Observer:  observer,
		Logger:    log,
	})
	if err != nil {
		return nil, err
	}
	agents.Register(a.registry, xhsP)

	excelP, err := excel.New(excel.Options{
		Generator: gen,
		Sink:      a.families[server.FamilyExcel],
		DataDir:   cfg.DataDir,
		Observer:  observer,
		Logger:    log,
	})
	if err != nil {
		return nil, err
	}
	agents.Register(a.registry, excelP)

	return a, nil
}

func buildLLM(ctx context.Context, c config.LLMConfig) (generator.LLMClient, error) {
	settings := &generator.LLMSettings{
		Provider:       c.Provider,
		Model:          c.Model,
		APIKey:         c.APIKey,
		BaseURL:        c.BaseURL,
		StructuredMode: c.StructuredMode,
	}
	switch c.Provider {
	case "openai":
		return generator.NewOpenAILLMFromConfig(settings)
	case "deepseek":
		// DeepSeek 提供 OpenAI 兼容接口，需填写 base_url。
		if c.BaseURL == "" {
			return nil, fmt.Errorf("llm provider deepseek requires base_url (OpenAI-compatible endpoint)")
		}
		return generator.NewOpenAILLMFromConfig(settings)
	case "gemini":
		return generator.NewGenAILLM(ctx, settings, nil)
	case "mock":
		return generator.MockLLM{}, nil
	default:
		return nil, fmt.Errorf("llm provider %s not supported", c.Provider)
	}
}

// newServer 把 app 里的组件交给 HTTP 层。
func (a *app) newServer() (*server.Server, error) {
	opts := server.Options{
		Registry:   a.registry,
		Families:   a.families,
		DataDir:    a.cfg.DataDir,
		StaticDir:  a.cfg.Server.StaticDir,
		Metrics:    a.metrics,
		Logger:     a.logger,
		RunTimeout: a.cfg.Server.RunTimeout.Std(),
	}
	if a.publisher != nil {
		opts.Publisher = a.publisher
	}
	return server.New(opts)
}
