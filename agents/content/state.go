// Package content 把视频字幕整理成一篇文章和一组候选标题。
package content

import (
	"errors"
	"fmt"

	"content_agents/agents"
)

// Viewpoint 是从字幕中抽取出的一个信息单元。
type Viewpoint struct {
	ID              int    `json:"id" jsonschema_description:"信息单元的顺序编号，按字幕出现顺序递增"`
	Content         string `json:"content" jsonschema_description:"该信息单元的核心内容，接近原字幕但做最小书面化处理"`
	InfoType        string `json:"info_type" jsonschema_description:"该信息在内容结构中的角色，如 情节事件、人物行为、冲突转折、背景交代、观点结论、观点解释、举例说明、推测假设"`
	StructureType   string `json:"structure_type" jsonschema_description:"理解该信息是否依赖时间顺序，如 叙事型、逻辑型"`
	RelationToPrev  string `json:"relation_to_prev" jsonschema_description:"与前一个信息单元的主要关系，如 时间推进、因果、递进、对比、并列、无明确关系"`
	ExpressionStyle string `json:"expression_style" jsonschema_description:"字幕中该内容的表达方式，如 陈述、强调、反问、对比、否定、中性"`
	SourceRole      string `json:"source_role" jsonschema_description:"该信息的发出者角色，如 解说者、引用他人、不明确"`
	Confidence      string `json:"confidence" jsonschema_description:"字幕中是否对该信息表达了确定性，如 明确、不明确"`
}

// ViewpointAnalysis 是观点分析阶段要求模型返回的结构。
type ViewpointAnalysis struct {
	CoreTopic      string      `json:"core_topic" jsonschema_description:"视频的核心主题，一句话概括，不解释"`
	InfoUnits      []Viewpoint `json:"info_units" jsonschema_description:"按字幕顺序排列的信息单元列表"`
	NarrativeRatio *float64    `json:"narrative_ratio,omitempty" jsonschema_description:"叙事型信息单元占比，0 到 1，用于判断是否为影视解说"`
	LogicRatio     *float64    `json:"logic_ratio,omitempty" jsonschema_description:"逻辑型信息单元占比，0 到 1，用于判断是否为知识分享"`
}

// Validate checks the rules the JSON Schema does not carry.
func (a ViewpointAnalysis) Validate() error {
	if len(a.InfoUnits) == 0 {
		return errors.New("info_units must not be empty")
	}
	for name, r := range map[string]*float64{"narrative_ratio": a.NarrativeRatio, "logic_ratio": a.LogicRatio} {
		if r != nil && (*r < 0 || *r > 1) {
			return fmt.Errorf("%s must be within [0, 1], got %v", name, *r)
		}
	}
	return nil
}

// State 是 content 流水线的状态。
type State struct {
	// SubtitleSource 是数据目录下的字幕文件名
	SubtitleSource string      `json:"subtitle_source,omitempty"`
	SubtitleText   string      `json:"subtitle_text,omitempty"`
	CoreTopic      string      `json:"core_topic,omitempty"`
	Viewpoints     []Viewpoint `json:"viewpoints,omitempty"`
	NarrativeRatio *float64    `json:"narrative_ratio,omitempty"`
	LogicRatio     *float64    `json:"logic_ratio,omitempty"`
	Article        string      `json:"article,omitempty"`
	ArticleHTML    string      `json:"article_html,omitempty"`
	Titles         []string    `json:"titles,omitempty"`
	agents.Trail
}
