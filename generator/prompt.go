package generator

// Prompt 表示发送给 LLM 的消息集合。
type Prompt struct {
	System  string
	User    string
	History []Message
	// Temperature 为 nil 时使用模型默认值。
	Temperature *float64
	// Schema 非空时要求模型输出符合该 schema 的 JSON。
	Schema *Schema
}

// Message 用于少量历史（可选）。
type Message struct {
	Role    string
	Content string
}

// Temperature returns a pointer for Prompt.Temperature.
func Temperature(v float64) *float64 {
	return &v
}

// withSchemaInstruction 把 schema 说明拼到用户消息末尾。
// json_object 模式要求提示词中出现 JSON 字样。
func (p Prompt) withSchemaInstruction() Prompt {
	if p.Schema == nil {
		return p
	}
	p.User = p.User + "\n\n" + p.Schema.Instruction()
	return p
}
