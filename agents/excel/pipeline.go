package excel

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
	"content_agents/sources"
)

const Name = "excel"

var analysisSchema = generator.SchemaFor[Analysis]("excel_analysis", "Excel 数据分析结果")

type Options struct {
	Generator *generator.Generator
	// Sink 一般指向 outputs/excel
	Sink     *persist.Sink
	DataDir  string
	Observer pipeline.Observer
	Logger   *zap.Logger
}

type stages struct {
	gen     *generator.Generator
	dataDir string
	logger  *zap.Logger
}

// New 装配 parse_excel → ai_analyze → save_state。
func New(o Options) (*pipeline.Pipeline[State], error) {
	if o.Generator == nil || o.Sink == nil {
		return nil, errors.New("excel: generator and sink are required")
	}
	logger := o.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	st := &stages{gen: o.Generator, dataDir: o.DataDir, logger: logger.Named(Name)}

	return pipeline.Definition[State]{
		Name:  Name,
		Seeds: []string{"excel_path", "sheet"},
		Stages: []pipeline.Stage[State]{
			{
				ID:     "parse_excel",
				Reads:  []string{"excel_path", "sheet"},
				Writes: []string{"excel_path", "sheet", "table_text", "row_count", "column_count"},
				Run:    st.parseExcel,
			},
			{
				ID:     "ai_analyze",
				Reads:  []string{"table_text", "row_count", "column_count"},
				Writes: []string{"analysis", "messages"},
				Run:    st.analyze,
			},
			persist.SaveStage(o.Sink, persist.SaveOptions[State]{
				Pipeline: Name,
				Reads:    []string{"excel_path"},
				Anchor:   func(s State) string { return s.ExcelPath },
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

// parseExcel 只在数据目录内查找文件。
func (st *stages) parseExcel(_ context.Context, s State) pipeline.Result[State] {
	name := filepath.Base(strings.TrimSpace(s.ExcelPath))
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = DefaultWorkbook
	}
	s.ExcelPath = name

	table, err := sources.ReadTable(filepath.Join(st.dataDir, name), s.Sheet)
	if err != nil {
		return pipeline.SoftFail(s, fmt.Errorf("解析 Excel 失败: %w", err))
	}
	s.Sheet = table.Sheet
	s.TableText = table.Markdown()
	s.RowCount = table.RowCount()
	s.ColumnCount = table.ColumnCount()
	st.logger.Debug("workbook parsed", zap.String("file", name), zap.String("sheet", table.Sheet),
		zap.Int("rows", s.RowCount), zap.Int("columns", s.ColumnCount))
	return pipeline.Ok(s)
}

func (st *stages) analyze(ctx context.Context, s State) pipeline.Result[State] {
	if strings.TrimSpace(s.TableText) == "" {
		return pipeline.SoftFail(s, errors.New("表格内容为空，跳过分析"))
	}
	analysis, err := generator.Structured[Analysis](ctx, st.gen, generator.Prompt{
		System:      analyzeSystem,
		User:        analyzePrompt(s.TableText),
		Temperature: generator.Temperature(0),
	}, analysisSchema)
	if err != nil {
		return pipeline.SoftFail(s, fmt.Errorf("数据分析失败: %w", err))
	}
	// 规模以实际解析结果为准
	analysis.Overview.RowCount = s.RowCount
	analysis.Overview.ColumnCount = s.ColumnCount
	s.Analysis = &analysis
	s.Say(summary(analysis))
	return pipeline.Ok(s)
}

func summary(a Analysis) string {
	var sb strings.Builder
	sb.WriteString(a.Overview.Title)
	for _, m := range a.MetricAnalyses {
		fmt.Fprintf(&sb, "\n- %s：%s", m.MetricName, m.Insight)
	}
	if a.Conclusion != "" {
		sb.WriteString("\n")
		sb.WriteString(a.Conclusion)
	}
	return sb.String()
}
