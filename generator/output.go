package generator

import "encoding/json"

// Output 是一次生成的结果，只有两种：PlainText 或 StructuredValue。
type Output interface {
	isOutput()
}

// PlainText 是自由文本生成的结果。
type PlainText struct {
	Content string
}

// StructuredValue 是已按 Schema 校验过的 JSON 结果。
type StructuredValue struct {
	Schema *Schema
	Value  map[string]any
	Raw    json.RawMessage
}

func (PlainText) isOutput()       {}
func (StructuredValue) isOutput() {}

// Decode unmarshals the validated JSON into v.
func (s StructuredValue) Decode(v any) error {
	return json.Unmarshal(s.Raw, v)
}
