package xiaohongshu

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"content_agents/generator"
	"content_agents/persist"
	"content_agents/pipeline"
)

const Name = "xiaohongshu"

const (
	stageTopic   pipeline.StageID = "generate_topic"
	stageArticle pipeline.StageID = "generate_article"
)

var topicSchema = generator.SchemaFor[TopicList]("topic_list", "小红书候选选题")

type Options struct {
	Generator *generator.Generator
	Sink      *persist.Sink
	Observer  pipeline.Observer
	Logger    *zap.Logger
}

type stages struct {
	gen    *generator.Generator
	logger *zap.Logger
}

// New 装配 [generate_topic →] generate_article → save_state。
// 已有 selected_topic 时直接从写文章开始；否则生成选题后暂停，等待挑选。
func New(o Options) (*pipeline.Pipeline[State], error) {
	if o.Generator == nil || o.Sink == nil {
		return nil, errors.New("xiaohongshu: generator and sink are required")
	}
	logger := o.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	st := &stages{gen: o.Generator, logger: logger.Named(Name)}

	return pipeline.Definition[State]{
		Name:  Name,
		Seeds: []string{"selected_topic", "topics"},
		Entry: &pipeline.Entry[State]{
			Candidates: []pipeline.StageID{stageTopic, stageArticle},
			Route: func(s State) pipeline.StageID {
				if strings.TrimSpace(s.SelectedTopic) != "" {
					return stageArticle
				}
				return stageTopic
			},
		},
		Stages: []pipeline.Stage[State]{
			{
				ID:     stageTopic,
				Writes: []string{"topics", "messages"},
				Run:    st.generateTopic,
			},
			{
				ID:     stageArticle,
				Reads:  []string{"selected_topic", "topics"},
				Writes: []string{"selected_topic", "article", "titles", "messages"},
				Run:    st.generateArticle,
			},
			persist.SaveStage(o.Sink, persist.SaveOptions[State]{
				Pipeline: Name,
				Reads:    []string{"selected_topic"},
				Anchor:   func(s State) string { return s.SelectedTopic },
				Done: func(s State, path string) State {
					s.SavedFilePath = path
					return s
				},
			}),
		},
		InterruptAfter: stageTopic,
		Warn: func(s State, w string) State {
			s.Warn(w)
			return s
		},
		Observer: o.Observer,
	}.Build()
}

func (st *stages) generateTopic(ctx context.Context, s State) pipeline.Result[State] {
	list, err := generator.Structured[TopicList](ctx, st.gen, generator.Prompt{
		System:      topicSystem,
		User:        topicPrompt,
		Temperature: generator.Temperature(0.85),
	}, topicSchema)
	if err != nil {
		return pipeline.SoftFail(s, fmt.Errorf("选题生成失败: %w", err))
	}
	var topics []string
	for _, t := range list.Topics {
		if t = generator.CleanListItem(t); t != "" {
			topics = append(topics, t)
		}
	}
	s.Topics = topics
	s.Say(strings.Join(topics, "\n"))
	return pipeline.Ok(s)
}

// generateArticle 没有人工挑选时退回第一个候选选题。
func (st *stages) generateArticle(ctx context.Context, s State) pipeline.Result[State] {
	topic := strings.TrimSpace(s.SelectedTopic)
	if topic == "" && len(s.Topics) > 0 {
		topic = s.Topics[0]
		st.logger.Info("no topic selected, using the first candidate", zap.String("topic", topic))
	}
	if topic == "" {
		return pipeline.SoftFail(s, errors.New("没有可用的选题"))
	}
	s.SelectedTopic = topic

	article, err := st.gen.Text(ctx, generator.Prompt{
		System:      articleSystem,
		User:        articlePrompt(topic),
		Temperature: generator.Temperature(0.85),
	})
	if err != nil {
		return pipeline.SoftFail(s, fmt.Errorf("文章生成失败: %w", err))
	}
	s.Article = article
	if title := generator.ExtractTitle(article); title != "" {
		s.Titles = []string{title}
	}
	s.Say(article)
	return pipeline.Ok(s)
}
