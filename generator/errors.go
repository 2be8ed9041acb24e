package generator

import (
	"errors"
	"fmt"
)

var (
	// ErrTransient 网络、超时、限流或空响应等一次性失败。
	ErrTransient = errors.New("generator: transient failure")
	// ErrSchemaValidation 模型输出不符合声明的 schema。
	ErrSchemaValidation = errors.New("generator: output does not match schema")
)

// CallError wraps a failed model call.
type CallError struct {
	Provider string
	Err      error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s call failed: %v", e.Provider, e.Err)
}

func (e *CallError) Unwrap() []error {
	return []error{ErrTransient, e.Err}
}

// ValidationError reports structured output that did not fit its schema.
type ValidationError struct {
	Schema string
	Raw    string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("schema %s: %v", e.Schema, e.Err)
}

func (e *ValidationError) Unwrap() []error {
	return []error{ErrSchemaValidation, e.Err}
}
