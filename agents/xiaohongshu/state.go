// Package xiaohongshu 先生成一组小红书选题，等待挑选后再写成笔记正文。
package xiaohongshu

import (
	"errors"
	"strings"

	"content_agents/agents"
)

// TopicList 是选题阶段要求模型返回的结构。
type TopicList struct {
	Topics []string `json:"topics" jsonschema_description:"候选选题列表，每条是一个可以直接作为小红书笔记主题的短句"`
}

func (t TopicList) Validate() error {
	for _, topic := range t.Topics {
		if strings.TrimSpace(topic) != "" {
			return nil
		}
	}
	return errors.New("topic list is empty")
}

// State 是 xiaohongshu 流水线的状态。SelectedTopic 可以在种子里给出，
// 也可以在暂停后由调用方补上。
type State struct {
	Topics        []string `json:"topics,omitempty"`
	SelectedTopic string   `json:"selected_topic,omitempty"`
	Article       string   `json:"article,omitempty"`
	Titles        []string `json:"titles,omitempty"`
	agents.Trail
}
