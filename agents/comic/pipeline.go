package comic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"content_agents/generator"
	"content_agents/imagegen"
	"content_agents/persist"
	"content_agents/pipeline"
)

const Name = "comic"

// 出图模式
const (
	// ModePage 把全部分镜画成一整页（默认）。
	ModePage = "page"
	// ModePanel 每格分镜单独出一张图，最多 MaxPanels 张。
	ModePanel = "panel"

	DefaultMaxPanels = 10
)

var storyboardSchema = generator.SchemaFor[Storyboard]("storyboard", "漫画分镜列表")

// Archiver 把本地图片镜像到对象存储，*objstore.Client 满足该接口。
type Archiver interface {
	EnsureBucket(ctx context.Context) error
	UploadFile(ctx context.Context, key, path string) error
}

type Options struct {
	Generator *generator.Generator
	Images    imagegen.Client
	// Artifacts 保存原始响应与图片，一般指向 outputs/comics
	Artifacts *imagegen.Store
	// Archive 可选
	Archive   Archiver
	Sink      *persist.Sink
	Mode      string
	MaxPanels int
	Style     string
	Observer  pipeline.Observer
	Logger    *zap.Logger
}

type stages struct {
	Options
	logger *zap.Logger
}

// New 装配 generate_outline → generate_storyboard → generate_images → archive_images → save_state。
func New(o Options) (*pipeline.Pipeline[State], error) {
	if o.Generator == nil || o.Images == nil || o.Artifacts == nil || o.Sink == nil {
		return nil, errors.New("comic: generator, image client, artifact store and sink are required")
	}
	switch o.Mode {
	case "":
		o.Mode = ModePage
	case ModePage, ModePanel:
	default:
		return nil, fmt.Errorf("comic: unknown image mode %q", o.Mode)
	}
	if o.MaxPanels <= 0 {
		o.MaxPanels = DefaultMaxPanels
	}
	if o.Style == "" {
		o.Style = DefaultStyle
	}
	logger := o.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	st := &stages{Options: o, logger: logger.Named(Name)}

	return pipeline.Definition[State]{
		Name:  Name,
		Seeds: []string{"description", "comic_info"},
		Stages: []pipeline.Stage[State]{
			{
				ID:     "generate_outline",
				Reads:  []string{"description"},
				Writes: []string{"outline", "messages"},
				Run:    st.generateOutline,
			},
			{
				ID:     "generate_storyboard",
				Reads:  []string{"outline"},
				Writes: []string{"storyboard", "messages"},
				Run:    st.generateStoryboard,
			},
			{
				ID:     "generate_images",
				Reads:  []string{"storyboard", "comic_info"},
				Writes: []string{"images", "messages"},
				Run:    st.generateImages,
			},
			{
				ID:     "archive_images",
				Reads:  []string{"images"},
				Writes: []string{"image_objects"},
				Run:    st.archiveImages,
			},
			persist.SaveStage(o.Sink, persist.SaveOptions[State]{
				Pipeline: Name,
				Reads:    []string{"description"},
				Anchor:   func(s State) string { return s.Description },
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

func (st *stages) generateOutline(ctx context.Context, s State) pipeline.Result[State] {
	outline, err := st.Generator.Text(ctx, generator.Prompt{
		System:      outlineSystem,
		User:        outlinePrompt(s.Description),
		Temperature: generator.Temperature(0.7),
	})
	if err != nil {
		return pipeline.SoftFail(s, fmt.Errorf("预分镜处理失败: %w", err))
	}
	s.Outline = outline
	s.Say(outline)
	return pipeline.Ok(s)
}

func (st *stages) generateStoryboard(ctx context.Context, s State) pipeline.Result[State] {
	board, err := generator.Structured[Storyboard](ctx, st.Generator, generator.Prompt{
		System:      storyboardSystem,
		User:        storyboardPrompt(s.Outline),
		Temperature: generator.Temperature(0),
	}, storyboardSchema)
	if err != nil {
		return pipeline.SoftFail(s, fmt.Errorf("分镜处理失败: %w", err))
	}
	s.Storyboard = board.Panels
	s.Say(fmt.Sprintf("分镜完成，共 %d 格", len(board.Panels)))
	return pipeline.Ok(s)
}

// generateImages 出图失败时只保留已经成功落盘的图片。
func (st *stages) generateImages(ctx context.Context, s State) pipeline.Result[State] {
	if len(s.Storyboard) == 0 {
		st.logger.Info("no storyboard, skip drawing")
		return pipeline.Ok(s)
	}

	var (
		paths []string
		errs  []error
	)
	if st.Mode == ModePanel {
		info := s.info()
		panels := s.Storyboard
		if len(panels) > st.MaxPanels {
			st.logger.Warn("storyboard truncated", zap.Int("panels", len(panels)), zap.Int("max", st.MaxPanels))
			panels = panels[:st.MaxPanels]
		}
		for i, p := range panels {
			saved, err := st.draw(ctx, panelPrompt(info, p), fmt.Sprintf("panel%02d", i))
			if err != nil {
				errs = append(errs, fmt.Errorf("第 %d 格: %w", i+1, err))
				continue
			}
			paths = append(paths, saved...)
		}
	} else {
		style := st.Style
		if info := s.info(); info.Style != "" {
			style = info.Style
		}
		board, err := json.MarshalIndent(s.Storyboard, "", "  ")
		if err != nil {
			return pipeline.SoftFail(s, err)
		}
		saved, err := st.draw(ctx, pagePrompt(string(board), style), "page")
		if err != nil {
			errs = append(errs, err)
		}
		paths = saved
	}

	if len(paths) > 0 {
		s.Images = append(s.Images[:len(s.Images):len(s.Images)], paths...)
		s.Say(strings.Join(paths, "\n"))
	}
	if len(errs) > 0 {
		return pipeline.SoftFail(s, fmt.Errorf("绘图出错: %w", errors.Join(errs...)))
	}
	return pipeline.Ok(s)
}

// draw 生成并落盘一张（或多张）图片。写盘在检查 ErrNoImage 之前，方便排查空响应。
func (st *stages) draw(ctx context.Context, prompt, tag string) ([]string, error) {
	resp, err := st.Images.Generate(ctx, prompt)
	if err != nil && len(resp.Raw) == 0 {
		return nil, err
	}
	saved, serr := st.Artifacts.Save(resp, tag)
	if serr != nil {
		return saved.ImagePaths, errors.Join(err, serr)
	}
	if err != nil {
		return saved.ImagePaths, err
	}
	st.logger.Info("image saved", zap.String("tag", tag), zap.Strings("paths", saved.ImagePaths), zap.String("response", saved.ResponsePath))
	return saved.ImagePaths, nil
}

// archiveImages 未配置对象存储时什么也不做。
func (st *stages) archiveImages(ctx context.Context, s State) pipeline.Result[State] {
	if st.Archive == nil || len(s.Images) == 0 {
		return pipeline.Ok(s)
	}
	if err := st.Archive.EnsureBucket(ctx); err != nil {
		return pipeline.SoftFail(s, fmt.Errorf("归档图片失败: %w", err))
	}
	var errs []error
	keys := s.ImageObjects[:len(s.ImageObjects):len(s.ImageObjects)]
	for _, path := range s.Images {
		key := "comics/" + filepath.Base(path)
		if err := st.Archive.UploadFile(ctx, key, path); err != nil {
			errs = append(errs, err)
			continue
		}
		keys = append(keys, key)
	}
	s.ImageObjects = keys
	if len(errs) > 0 {
		return pipeline.SoftFail(s, fmt.Errorf("归档图片失败: %w", errors.Join(errs...)))
	}
	return pipeline.Ok(s)
}
