package persist

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Dumper 由能给出结构化转储的类型实现；JSON 编码失败时用它兜底。
type Dumper interface {
	Dump() map[string]any
}

// Fields 是按声明顺序排列、逐字段编码后的状态。
type Fields = orderedmap.OrderedMap[string, json.RawMessage]

// SerializeState 逐字段编码 state：先尝试 JSON，失败时尝试 Dump()，再失败时退化为 fmt.Sprint。
// state 可以是结构体、结构体指针或 map[string]any。永远不会因为某个字段无法编码而失败。
func SerializeState(state any) *Fields {
	out := orderedmap.New[string, json.RawMessage]()
	v := reflect.ValueOf(state)
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return out
		}
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.Struct:
		serializeStruct(out, v)
	case reflect.Map:
		keys := make([]string, 0, v.Len())
		values := make(map[string]reflect.Value, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			k := fmt.Sprint(iter.Key().Interface())
			keys = append(keys, k)
			values[k] = iter.Value()
		}
		sort.Strings(keys)
		for _, k := range keys {
			out.Set(k, serializeValue(values[k]))
		}
	case reflect.Invalid:
	default:
		out.Set("value", serializeValue(v))
	}
	return out
}

func serializeStruct(out *Fields, v reflect.Value) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		fv := v.Field(i)
		name, omitEmpty, skip := jsonName(f)
		if skip {
			continue
		}
		if f.Anonymous && f.Tag.Get("json") == "" {
			inner := fv
			if inner.Kind() == reflect.Pointer {
				if inner.IsNil() {
					continue
				}
				inner = inner.Elem()
			}
			if inner.Kind() == reflect.Struct {
				serializeStruct(out, inner)
				continue
			}
		}
		if !f.IsExported() {
			continue
		}
		if omitEmpty && fv.IsZero() {
			continue
		}
		out.Set(name, serializeValue(fv))
	}
}

func jsonName(f reflect.StructField) (name string, omitEmpty, skip bool) {
	tag := f.Tag.Get("json")
	if tag == "-" {
		return "", false, true
	}
	name, opts, _ := strings.Cut(tag, ",")
	if name == "" {
		name = f.Name
	}
	return name, strings.Contains(","+opts+",", ",omitempty,"), false
}

func serializeValue(v reflect.Value) json.RawMessage {
	if !v.IsValid() || !v.CanInterface() {
		return json.RawMessage("null")
	}
	iface := v.Interface()
	if raw, err := encode(iface); err == nil {
		return raw
	}
	if d, ok := iface.(Dumper); ok {
		if raw, err := encodeDump(d); err == nil {
			return raw
		}
	}
	raw, _ := encode(fmt.Sprint(iface))
	return raw
}

func encodeDump(d Dumper) (raw json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dump panicked: %v", r)
		}
	}()
	return encode(d.Dump())
}

// encode 关闭 HTML 转义，中文等非 ASCII 字符原样保留。
func encode(v any) (json.RawMessage, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return json.RawMessage(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// MarshalFields 按字段顺序拼出 state 对象。
func MarshalFields(f *Fields) json.RawMessage {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	for pair := f.Oldest(); pair != nil; pair = pair.Next() {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		key, _ := encode(pair.Key)
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(pair.Value)
	}
	buf.WriteByte('}')
	return buf.Bytes()
}
