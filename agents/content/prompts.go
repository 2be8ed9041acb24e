package content

import (
	"fmt"
	"strings"
)

const analyzeSystem = "你是一名严谨的内容结构分析师，擅长把口语化的视频字幕拆解为有序的信息单元。"

const articleSystem = "你是一名资深公众号作者，擅长把零散的观点组织成结构清晰、可读性强的文章。"

const titleSystem = "你是一名新媒体标题编辑，擅长写出准确又有吸引力的文章标题。"

func analyzePrompt(transcript string) string {
	return fmt.Sprintf(`请阅读下面的视频字幕，按出现顺序把内容拆解为信息单元。

要求：
1. 每个信息单元只表达一个完整的意思，内容接近原字幕，只做最小的书面化处理
2. 标注每个单元的信息角色、结构类型、与前一单元的关系、表达方式、发出者角色和确定性
3. 用一句话概括视频的核心主题
4. 统计叙事型与逻辑型信息单元各自的占比（0 到 1）
5. 不要补充字幕之外的信息

【字幕】
%s
`, transcript)
}

func articlePrompt(s State) string {
	var b strings.Builder
	for _, v := range s.Viewpoints {
		fmt.Fprintf(&b, "%d. [%s/%s/%s] %s\n", v.ID, v.InfoType, v.StructureType, v.RelationToPrev, v.Content)
	}
	viewpoints := b.String()
	style := "知识分享"
	if s.NarrativeRatio != nil && s.LogicRatio != nil && *s.NarrativeRatio > *s.LogicRatio {
		style = "影视解说"
	}
	return fmt.Sprintf(`请根据下面按顺序整理的观点写一篇公众号文章。

要求：
1. 使用 Markdown，第一行是一级标题
2. 保持观点的原有顺序与逻辑关系，不编造观点之外的事实
3. 文章风格偏向%s，段落清晰，适当使用小标题
4. 字数 1200 到 2000 字

【核心主题】
%s

【观点】
%s
`, style, s.CoreTopic, viewpoints)
}

func titlePrompt(article string) string {
	return fmt.Sprintf(`请为下面的文章拟 5 个候选标题。

要求：
1. 每行一个标题，不要输出其他内容
2. 标题不超过 30 个字，准确概括文章内容

【文章】
%s
`, article)
}
