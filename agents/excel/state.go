// Package excel 把 Excel 工作表转成 Markdown 表格，再让模型输出结构化的数据分析。
package excel

import (
	"errors"

	"content_agents/agents"
)

// DefaultWorkbook 是没有指定 excel_path 时读取的文件。
const DefaultWorkbook = "demo.xlsx"

type Overview struct {
	Title       string `json:"title" jsonschema_description:"Overall title or topic of the Excel data"`
	Description string `json:"description" jsonschema_description:"High-level summary of what this Excel dataset represents"`
	TimeRange   string `json:"time_range,omitempty" jsonschema_description:"Time range covered by the data, if applicable"`
	RowCount    int    `json:"row_count" jsonschema_description:"Total number of rows in the Excel table"`
	ColumnCount int    `json:"column_count" jsonschema_description:"Total number of columns in the Excel table"`
}

type KeyMetric struct {
	Name   string `json:"name" jsonschema_description:"Name of the key metric (e.g. 总销售额, 转化率)"`
	Column string `json:"column" jsonschema_description:"Column name in Excel that this metric is derived from"`
	Value  string `json:"value,omitempty" jsonschema_description:"Aggregated or representative value of the metric"`
	Unit   string `json:"unit,omitempty" jsonschema_description:"Unit of the metric (e.g. %, 元, 次)"`
	Trend  string `json:"trend,omitempty" jsonschema_description:"Trend of the metric (up, down, stable, fluctuating)"`
}

type MetricAnalysis struct {
	MetricName        string `json:"metric_name" jsonschema_description:"Name of the metric being analyzed"`
	Insight           string `json:"insight" jsonschema_description:"Key insight discovered from the metric"`
	PossibleReason    string `json:"possible_reason,omitempty" jsonschema_description:"Possible reasons behind the observed trend or value"`
	RiskOrOpportunity string `json:"risk_or_opportunity,omitempty" jsonschema_description:"Potential risk or opportunity indicated by this metric"`
}

// Analysis 是 ai_analyze 阶段要求模型返回的结构。
type Analysis struct {
	Overview       Overview         `json:"overview" jsonschema_description:"High-level overview of the Excel dataset"`
	KeyMetrics     []KeyMetric      `json:"key_metrics" jsonschema_description:"List of key metrics extracted from the Excel data"`
	MetricAnalyses []MetricAnalysis `json:"metric_analyses" jsonschema_description:"Detailed analysis for each key metric"`
	Conclusion     string           `json:"conclusion,omitempty" jsonschema_description:"Overall conclusion or summary of findings"`
	Suggestions    []string         `json:"suggestions,omitempty" jsonschema_description:"Actionable suggestions based on the analysis"`
}

func (a Analysis) Validate() error {
	if len(a.KeyMetrics) == 0 {
		return errors.New("analysis has no key metrics")
	}
	return nil
}

// State 是 excel 流水线的状态。
type State struct {
	ExcelPath   string    `json:"excel_path,omitempty"`
	Sheet       string    `json:"sheet,omitempty"`
	TableText   string    `json:"table_text,omitempty"`
	RowCount    int       `json:"row_count,omitempty"`
	ColumnCount int       `json:"column_count,omitempty"`
	Analysis    *Analysis `json:"analysis,omitempty"`
	agents.Trail
}
