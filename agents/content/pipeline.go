package content

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"content_agents/generator"
	"content_agents/persist"
	"content_agents/pipeline"
	"content_agents/render"
	"content_agents/sources"
)

// Name 是流水线名，也是 HTTP 与 CLI 使用的 agent 名。
const Name = "content"

var analysisSchema = generator.SchemaFor[ViewpointAnalysis]("viewpoint_analysis", "字幕的信息单元拆解结果")

// Options 是构造 content 流水线所需的依赖。
type Options struct {
	Generator *generator.Generator
	Sink      *persist.Sink
	// DataDir 是 subtitle_source 的查找目录
	DataDir  string
	Observer pipeline.Observer
	Logger   *zap.Logger
}

type stages struct {
	gen     *generator.Generator
	dataDir string
	logger  *zap.Logger
}

// New 装配 load_subtitle → analyze_subtitle → generate_article → generate_title → save_state。
func New(o Options) (*pipeline.Pipeline[State], error) {
	if o.Generator == nil || o.Sink == nil {
		return nil, errors.New("content: generator and sink are required")
	}
	logger := o.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	st := &stages{gen: o.Generator, dataDir: o.DataDir, logger: logger.Named(Name)}

	return pipeline.Definition[State]{
		Name:  Name,
		Seeds: []string{"subtitle_source", "subtitle_text"},
		Stages: []pipeline.Stage[State]{
			{
				ID:     "load_subtitle",
				Reads:  []string{"subtitle_source", "subtitle_text"},
				Writes: []string{"subtitle_text"},
				Run:    st.loadSubtitle,
			},
			{
				ID:     "analyze_subtitle",
				Reads:  []string{"subtitle_text"},
				Writes: []string{"core_topic", "viewpoints", "narrative_ratio", "logic_ratio", "messages"},
				Policy: pipeline.Escalate,
				Run:    st.analyzeSubtitle,
			},
			{
				ID:     "generate_article",
				Reads:  []string{"core_topic", "viewpoints"},
				Writes: []string{"article", "article_html", "messages"},
				Run:    st.generateArticle,
			},
			{
				ID:     "generate_title",
				Reads:  []string{"article"},
				Writes: []string{"titles", "messages"},
				Run:    st.generateTitle,
			},
			persist.SaveStage(o.Sink, persist.SaveOptions[State]{
				Pipeline: Name,
				Reads:    []string{"subtitle_text"},
				Anchor:   func(s State) string { return s.SubtitleText },
				Done: func(s State, path string) State {
					s.SavedFilePath = path
					return s
				},
			}),
		},
		Warn: func(s State, w string) State {
			s.Warn(w)
			return s
		},
		Observer: o.Observer,
	}.Build()
}

// loadSubtitle 在种子没有给出字幕文本时，从数据目录读取 SRT 文件。
func (st *stages) loadSubtitle(_ context.Context, s State) pipeline.Result[State] {
	if strings.TrimSpace(s.SubtitleText) != "" {
		return pipeline.Ok(s)
	}
	if s.SubtitleSource == "" {
		return pipeline.SoftFail(s, errors.New("没有提供字幕文件或字幕文本"))
	}
	path := filepath.Join(st.dataDir, filepath.Base(s.SubtitleSource))
	text, err := sources.ReadSRT(path)
	if err != nil {
		return pipeline.SoftFail(s, err)
	}
	st.logger.Debug("subtitle loaded", zap.String("path", path), zap.Int("chars", len([]rune(text))))
	s.SubtitleText = text
	return pipeline.Ok(s)
}

// analyzeSubtitle 是唯一会终止运行的生成阶段：下游全部依赖它的输出。
// 字幕为空时照常调用模型；调用失败或结构化结果不合法都终止运行。
func (st *stages) analyzeSubtitle(ctx context.Context, s State) pipeline.Result[State] {
	analysis, err := generator.Structured[ViewpointAnalysis](ctx, st.gen, generator.Prompt{
		System:      analyzeSystem,
		User:        analyzePrompt(s.SubtitleText),
		Temperature: generator.Temperature(0),
	}, analysisSchema)
	if err != nil {
		return pipeline.HardFail[State](fmt.Errorf("观点分析出错: %w", err))
	}
	s.CoreTopic = analysis.CoreTopic
	s.Viewpoints = analysis.InfoUnits
	s.NarrativeRatio = analysis.NarrativeRatio
	s.LogicRatio = analysis.LogicRatio
	s.Say(fmt.Sprintf("核心主题：%s，共 %d 个信息单元", analysis.CoreTopic, len(analysis.InfoUnits)))
	return pipeline.Ok(s)
}

func (st *stages) generateArticle(ctx context.Context, s State) pipeline.Result[State] {
	article, err := st.gen.Text(ctx, generator.Prompt{
		System:      articleSystem,
		User:        articlePrompt(s),
		Temperature: generator.Temperature(0.3),
	})
	if err != nil {
		return pipeline.SoftFail(s, fmt.Errorf("文章生成出错: %w", err))
	}
	s.Article = article
	s.Say(article)

	html, err := render.HTML(article)
	if err != nil {
		return pipeline.SoftFail(s, err)
	}
	s.ArticleHTML = html
	return pipeline.Ok(s)
}

// generateTitle 按行拆分模型输出，去掉空行与序号。
func (st *stages) generateTitle(ctx context.Context, s State) pipeline.Result[State] {
	if strings.TrimSpace(s.Article) == "" {
		return pipeline.SoftFail(s, errors.New("没有文章内容，跳过标题生成"))
	}
	text, err := st.gen.Text(ctx, generator.Prompt{
		System:      titleSystem,
		User:        titlePrompt(s.Article),
		Temperature: generator.Temperature(0.5),
	})
	if err != nil {
		return pipeline.SoftFail(s, fmt.Errorf("标题生成出错: %w", err))
	}
	var titles []string
	for _, line := range generator.NonBlankLines(text) {
		if t := generator.CleanListItem(line); t != "" {
			titles = append(titles, t)
		}
	}
	if len(titles) == 0 {
		return pipeline.SoftFail(s, errors.New("模型没有返回标题"))
	}
	s.Titles = titles
	s.Say(strings.Join(titles, "\n"))
	return pipeline.Ok(s)
}
