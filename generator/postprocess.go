package generator

import (
	"regexp"
	"strings"
)

var (
	titleRe = regexp.MustCompile(`(?m)^#\s+(.+)$`)
	fenceRe = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*\n(.*?)\n?```$")
	// 行首的序号或列表符号：1. 1、 1) - * •
	bulletRe = regexp.MustCompile(`^(\d+[.、)）]|[-*•])\s*`)
)

// ExtractTitle 返回 Markdown 中第一个一级标题。
func ExtractTitle(md string) string {
	m := titleRe.FindStringSubmatch(md)
	if len(m) >= 2 {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// ExtractDigest 摘要取首段（去掉标题行）。
func ExtractDigest(md string) string {
	for _, line := range strings.Split(md, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return line
	}
	return ""
}

// DefaultDigest 压缩空白后按字符（非字节）截断。
func DefaultDigest(md string, limit int) string {
	joined := strings.Join(strings.Fields(md), " ")
	runes := []rune(joined)
	if len(runes) <= limit {
		return joined
	}
	return string(runes[:limit])
}

// StripCodeFence 去掉模型常见的 ```json ... ``` 包裹。
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if m := fenceRe.FindStringSubmatch(s); len(m) == 2 {
		return strings.TrimSpace(m[1])
	}
	return s
}

// NonBlankLines 按行拆分并丢弃空行，保留原有顺序。
func NonBlankLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// CleanListItem 去掉行首的序号、列表符号与成对引号。
func CleanListItem(line string) string {
	line = strings.TrimSpace(bulletRe.ReplaceAllString(strings.TrimSpace(line), ""))
	for _, pair := range [][2]string{{"\"", "\""}, {"“", "”"}, {"《", "》"}} {
		if strings.HasPrefix(line, pair[0]) && strings.HasSuffix(line, pair[1]) && len(line) > len(pair[0])+len(pair[1]) {
			line = strings.TrimSuffix(strings.TrimPrefix(line, pair[0]), pair[1])
		}
	}
	return strings.TrimSpace(line)
}
