// Package imagegen 调用图像生成模型（Gemini 图像模型，直连或经由代理），并把响应与图片落盘。
package imagegen

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
)

// Client generates images from a text prompt.
type Client interface {
	Generate(ctx context.Context, prompt string) (Response, error)
}

// Image 是响应中的一张内联图片。
type Image struct {
	MIMEType string
	Data     []byte
}

// Ext returns the file extension for the image's mime type ("png", "jpeg", ...).
func (i Image) Ext() string {
	mime := i.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	if idx := strings.LastIndexByte(mime, '/'); idx >= 0 {
		return mime[idx+1:]
	}
	return mime
}

// Response 是一次生成调用的结果：图片、附带文本以及原始响应（用于落盘排查）。
type Response struct {
	Images []Image
	Text   string
	Raw    []byte
}

// Settings 图像生成客户端配置。
type Settings struct {
	Provider   string
	Model      string
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

const (
	DefaultModel    = "gemini-3-pro-image-preview"
	DefaultProxyURL = "https://yunwu.ai"
)

// ErrNoImage is returned when a response carries no inline image data.
var ErrNoImage = errors.New("imagegen: response contains no image")

func (s Settings) model() string {
	if s.Model == "" {
		return DefaultModel
	}
	return s.Model
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
