// Package comic 把一段故事描述变成分镜脚本，再交给图像模型画成漫画。
package comic

import (
	"errors"

	"content_agents/agents"
)

// DefaultStyle 是没有指定画风时整页漫画使用的风格。
const DefaultStyle = "Q版可爱，全彩高亮"

// Character 主角设定
type Character struct {
	Name        string `json:"name,omitempty"`
	Appearance  string `json:"appearance,omitempty"`
	Personality string `json:"personality,omitempty"`
}

// Info 是调用方给出的漫画设定，全部可选。
type Info struct {
	Type            string    `json:"type,omitempty"`
	Style           string    `json:"style,omitempty"`
	ColorScheme     string    `json:"color_scheme,omitempty"`
	BackgroundStyle string    `json:"background_style,omitempty"`
	Character       Character `json:"character"`
}

// Panel 是一格分镜。
type Panel struct {
	Description string `json:"description" jsonschema_description:"A brief summary of what this panel represents in the story. Used as a high-level explanation, not for drawing details."`
	Scene       string `json:"scene" jsonschema_description:"The environment or setting where this panel takes place. Describe only the necessary background elements."`
	Action      string `json:"action" jsonschema_description:"The single main action performed by the character in this panel. Focus on one clear, observable action."`
	Expression  string `json:"expression" jsonschema_description:"The primary facial expression or emotional state of the character in this panel. Use one dominant emotion only."`
	Details     string `json:"details" jsonschema_description:"Additional visual details such as props, posture, or small environmental elements. Do not repeat action or scene."`
	Text        string `json:"text" jsonschema_description:"Short narration or dialogue shown in this panel. Keep it concise. Leave empty if no text is needed."`
}

// Storyboard 是分镜阶段要求模型返回的结构。
type Storyboard struct {
	Panels []Panel `json:"panels" jsonschema_description:"An ordered list of storyboard panels. Each panel is one distinct moment; together they cover the whole story without adding or omitting events."`
}

func (s Storyboard) Validate() error {
	if len(s.Panels) == 0 {
		return errors.New("storyboard returned no panels")
	}
	return nil
}

// State 是 comic 流水线的状态。
type State struct {
	Description string  `json:"description,omitempty"`
	ComicInfo   *Info   `json:"comic_info,omitempty"`
	Outline     string  `json:"outline,omitempty"`
	Storyboard  []Panel `json:"storyboard,omitempty"`
	// Images 只追加：本地图片路径
	Images []string `json:"images,omitempty"`
	// ImageObjects 是归档到对象存储后的 key
	ImageObjects []string `json:"image_objects,omitempty"`
	agents.Trail
}

func (s State) info() Info {
	if s.ComicInfo == nil {
		return Info{}
	}
	return *s.ComicInfo
}
