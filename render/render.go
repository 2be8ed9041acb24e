// Package render 把模型生成的 Markdown 转为 HTML，并提供微信公众号排版所需的规整处理。
package render

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var (
	md = goldmark.New(goldmark.WithExtensions(extension.Table, extension.Strikethrough))

	olRe    = regexp.MustCompile(`(?s)<ol[^>]*>(.*?)</ol>`)
	ulRe    = regexp.MustCompile(`(?s)<ul[^>]*>(.*?)</ul>`)
	liRe    = regexp.MustCompile(`(?s)<li[^>]*>(.*?)</li>`)
	hRe     = regexp.MustCompile(`(?s)<h([1-6])[^>]*>(.*?)</h[1-6]>`)
	imgRe   = regexp.MustCompile(`!\[[^\]]*\]\(([^)]+)\)`)
	pWrapRe = regexp.MustCompile(`(?s)^<p>(.*)</p>$`)
)

var headingSizes = map[string]string{
	"1": "24px",
	"2": "22px",
	"3": "20px",
	"4": "18px",
	"5": "16px",
	"6": "15px",
}

// HTML converts markdown to HTML (tables and strikethrough enabled).
func HTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}

// ForWeChat 先转 HTML，再把标题与列表改写成公众号不会弱化的段落。
func ForWeChat(markdown string) (string, error) {
	html, err := HTML(markdown)
	if err != nil {
		return "", err
	}
	return NormalizeForWeChat(html), nil
}

// NormalizeForWeChat 处理已经渲染好的 HTML。
func NormalizeForWeChat(html string) string {
	html = convertHeadings(html)
	html = flattenLists(html)
	return html
}

// WeChat 会弱化部分列表和标题标签，导致有序列表合并、标题样式丢失。
func flattenLists(html string) string {
	html = olRe.ReplaceAllStringFunc(html, func(block string) string {
		items := liRe.FindAllStringSubmatch(block, -1)
		if len(items) == 0 {
			return block
		}
		var b strings.Builder
		for i, item := range items {
			fmt.Fprintf(&b, "<p>%d. %s</p>", i+1, itemText(item[1]))
		}
		return b.String()
	})

	return ulRe.ReplaceAllStringFunc(html, func(block string) string {
		items := liRe.FindAllStringSubmatch(block, -1)
		if len(items) == 0 {
			return block
		}
		var b strings.Builder
		for _, item := range items {
			b.WriteString("<p>• ")
			b.WriteString(itemText(item[1]))
			b.WriteString("</p>")
		}
		return b.String()
	})
}

// 松散列表的 li 内部自带 <p>，去掉一层避免段落嵌套。
func itemText(s string) string {
	s = strings.TrimSpace(s)
	if m := pWrapRe.FindStringSubmatch(s); m != nil && !strings.Contains(m[1], "<p>") {
		return strings.TrimSpace(m[1])
	}
	return s
}

func convertHeadings(html string) string {
	return hRe.ReplaceAllStringFunc(html, func(block string) string {
		parts := hRe.FindStringSubmatch(block)
		if len(parts) != 3 {
			return block
		}
		size := headingSizes[parts[1]]
		if size == "" {
			size = "18px"
		}
		text := strings.TrimSpace(parts[2])
		return fmt.Sprintf(`<p style="font-size:%s;font-weight:700;margin:1em 0 0.6em;">%s</p>`, size, text)
	})
}

// UploadFunc 上传一张本地图片并返回可公开访问的 URL。
type UploadFunc func(ctx context.Context, path string) (string, error)

// ReplaceImages 把 Markdown 中引用的本地图片逐个上传并替换为返回的 URL。
// http(s) 与 data: 引用保持不变；相对路径先按工作目录查找，找不到再相对 baseDir。
func ReplaceImages(ctx context.Context, markdown, baseDir string, upload UploadFunc) (string, error) {
	matches := imgRe.FindAllStringSubmatchIndex(markdown, -1)
	if len(matches) == 0 {
		return markdown, nil
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		start, end := m[2], m[3]
		b.WriteString(markdown[last:start])
		last = end

		ref := strings.TrimSpace(markdown[start:end])
		if IsRemote(ref) {
			b.WriteString(ref)
			continue
		}
		local := ref
		if !filepath.IsAbs(local) {
			if _, err := os.Stat(local); err != nil {
				local = filepath.Join(baseDir, ref)
			}
		}
		url, err := upload(ctx, local)
		if err != nil {
			return "", fmt.Errorf("upload image %s: %w", ref, err)
		}
		b.WriteString(url)
	}
	b.WriteString(markdown[last:])
	return b.String(), nil
}

// IsRemote reports whether an image reference needs no upload.
func IsRemote(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") || strings.HasPrefix(ref, "data:")
}
