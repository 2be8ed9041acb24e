package imagegen

import (
	"context"
	"encoding/base64"
	"fmt"
)

// 1x1 透明 PNG。
var placeholderPNG, _ = base64.StdEncoding.DecodeString(
	"iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII=")

// Mock 返回占位图片，便于离线调试。
type Mock struct{}

func (Mock) Generate(_ context.Context, prompt string) (Response, error) {
	raw := fmt.Sprintf(`{"candidates":[{"content":{"parts":[{"text":"mock image for %d-byte prompt"}]}}]}`, len(prompt))
	return Response{
		Images: []Image{{MIMEType: "image/png", Data: placeholderPNG}},
		Text:   "mock image",
		Raw:    []byte(raw),
	}, nil
}
