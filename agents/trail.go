// Package agents 注册各条内容流水线，并负责启动、暂停与恢复一次运行。
package agents

import (
	"slices"

	"github.com/google/uuid"
)

// Message 是追加到状态里的一条消息记录（通常是模型输出）。
type Message struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Content string `json:"content"`
}

// NewMessage returns an "ai" message with a fresh id.
func NewMessage(content string) Message {
	return Message{ID: uuid.NewString(), Type: "ai", Content: content}
}

// Trail 是每条流水线状态共有的字段，嵌入到各自的 State 末尾。
// Messages 与 Warnings 只追加，不覆盖。
type Trail struct {
	Messages      []Message `json:"messages,omitempty"`
	Warnings      []string  `json:"warnings,omitempty"`
	SavedFilePath string    `json:"saved_file_path,omitempty"`
}

// Say appends a model message.
func (t *Trail) Say(content string) {
	t.Messages = append(slices.Clip(t.Messages), NewMessage(content))
}

// Warn appends a warning.
func (t *Trail) Warn(warning string) {
	t.Warnings = append(slices.Clip(t.Warnings), warning)
}
