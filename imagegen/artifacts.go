package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// New 按 provider 构造客户端：gemini | proxy | mock。
func New(ctx context.Context, s Settings) (Client, error) {
	switch s.Provider {
	case "gemini":
		return NewGenAIClient(ctx, s)
	case "proxy", "yunwu", "":
		return NewProxyClient(s)
	case "mock":
		return Mock{}, nil
	default:
		return nil, fmt.Errorf("unsupported image provider %q", s.Provider)
	}
}

// Store 把原始响应写入 <Root>/responses，把图片写入 <Root>/images。
type Store struct {
	Root string
	now  func() time.Time
}

func NewStore(root string) *Store {
	return &Store{Root: root, now: time.Now}
}

// Saved 是一次落盘的结果路径。
type Saved struct {
	ResponsePath string
	ImagePaths   []string
}

// Save 写入响应与其中全部图片。tag 用于区分同一秒内的多次调用（如 page、panel03）。
// 响应体总会先落盘，即使随后写图片失败。
func (s *Store) Save(resp Response, tag string) (Saved, error) {
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	ts := now().Format("20060102150405")
	respDir := filepath.Join(s.Root, "responses")
	imgDir := filepath.Join(s.Root, "images")
	for _, dir := range []string{respDir, imgDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Saved{}, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	var out Saved
	if len(resp.Raw) > 0 {
		out.ResponsePath = filepath.Join(respDir, fmt.Sprintf("%s_%s_response.json", ts, tag))
		if err := os.WriteFile(out.ResponsePath, indentJSON(resp.Raw), 0o644); err != nil {
			return out, fmt.Errorf("write response dump: %w", err)
		}
	}
	for i, img := range resp.Images {
		path := filepath.Join(imgDir, fmt.Sprintf("%s_%s_%d.%s", ts, tag, i, img.Ext()))
		if err := os.WriteFile(path, img.Data, 0o644); err != nil {
			return out, fmt.Errorf("write image: %w", err)
		}
		out.ImagePaths = append(out.ImagePaths, path)
	}
	return out, nil
}

func indentJSON(raw []byte) []byte {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return raw
	}
	return buf.Bytes()
}
