package generator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Schema 描述结构化生成时模型输出必须满足的形状。
type Schema struct {
	Name        string
	Description string

	root *jsonschema.Schema
	raw  json.RawMessage
	doc  map[string]any
}

// Validator is implemented by structured results that carry rules the JSON Schema cannot express.
type Validator interface {
	Validate() error
}

var reflector = &jsonschema.Reflector{
	DoNotReference: true,
	ExpandedStruct: true,
}

// SchemaFor 通过反射 T 的 json / jsonschema 标签生成 Schema。
func SchemaFor[T any](name, description string) *Schema {
	root := reflector.Reflect(new(T))
	root.Version = ""
	root.ID = ""
	if root.Description == "" {
		root.Description = description
	}
	raw, err := json.Marshal(root)
	if err != nil {
		panic(fmt.Sprintf("generator: marshal schema %s: %v", name, err))
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		panic(fmt.Sprintf("generator: decode schema %s: %v", name, err))
	}
	return &Schema{Name: name, Description: description, root: root, raw: raw, doc: doc}
}

// JSON returns the compact JSON Schema document.
func (s *Schema) JSON() json.RawMessage { return s.raw }

// Map returns the schema as a generic map, the shape SDK request params expect.
func (s *Schema) Map() map[string]any { return s.doc }

// Instruction 是附加在用户消息之后的输出格式要求。
func (s *Schema) Instruction() string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, s.raw, "", "  "); err != nil {
		buf.Reset()
		buf.Write(s.raw)
	}
	return "请只输出一个 JSON 对象，不要输出 Markdown 代码块或任何解释。JSON 必须符合以下 JSON Schema：\n" + buf.String()
}

// Check 解析模型输出并按 schema 校验类型与必填字段，返回去掉代码块包裹后的 JSON。
func (s *Schema) Check(text string) (json.RawMessage, map[string]any, error) {
	body := StripCodeFence(text)
	if body == "" {
		return nil, nil, fmt.Errorf("empty output")
	}
	var value any
	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&value); err != nil {
		return nil, nil, fmt.Errorf("output is not valid JSON: %w", err)
	}
	if err := checkNode(s.root, value, "$"); err != nil {
		return nil, nil, err
	}
	obj, _ := value.(map[string]any)
	return json.RawMessage(body), obj, nil
}

func checkNode(sc *jsonschema.Schema, value any, path string) error {
	if sc == nil {
		return nil
	}
	switch sc.Type {
	case "object":
		obj, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("%s: expected object, got %s", path, kindOf(value))
		}
		for _, name := range sc.Required {
			if v, ok := obj[name]; !ok || v == nil {
				return fmt.Errorf("%s.%s: required field missing", path, name)
			}
		}
		if sc.Properties == nil {
			return nil
		}
		for pair := sc.Properties.Oldest(); pair != nil; pair = pair.Next() {
			v, ok := obj[pair.Key]
			if !ok || v == nil {
				continue
			}
			if err := checkNode(pair.Value, v, path+"."+pair.Key); err != nil {
				return err
			}
		}
	case "array":
		items, ok := value.([]any)
		if !ok {
			return fmt.Errorf("%s: expected array, got %s", path, kindOf(value))
		}
		for i, item := range items {
			if err := checkNode(sc.Items, item, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
	case "string":
		if _, ok := value.(string); !ok {
			return fmt.Errorf("%s: expected string, got %s", path, kindOf(value))
		}
	case "integer", "number":
		if _, ok := value.(json.Number); !ok {
			return fmt.Errorf("%s: expected %s, got %s", path, sc.Type, kindOf(value))
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("%s: expected boolean, got %s", path, kindOf(value))
		}
	}
	return nil
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case json.Number:
		return "number"
	case bool:
		return "boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// Example 生成一个满足 schema 的示例 JSON，字段顺序与结构体声明一致。MockLLM 使用它离线返回结构化结果。
func (s *Schema) Example() string {
	raw, err := json.Marshal(exampleNode(s.root, s.Name))
	if err != nil {
		return "{}"
	}
	return string(raw)
}

func exampleNode(sc *jsonschema.Schema, name string) any {
	if sc == nil {
		return nil
	}
	switch sc.Type {
	case "object":
		obj := orderedmap.New[string, any]()
		if sc.Properties != nil {
			for pair := sc.Properties.Oldest(); pair != nil; pair = pair.Next() {
				obj.Set(pair.Key, exampleNode(pair.Value, pair.Key))
			}
		}
		return obj
	case "array":
		return []any{exampleNode(sc.Items, name)}
	case "integer":
		return 1
	case "number":
		return 0.5
	case "boolean":
		return true
	default:
		if len(sc.Enum) > 0 {
			return sc.Enum[0]
		}
		return "示例" + name
	}
}
