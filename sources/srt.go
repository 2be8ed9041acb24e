// Package sources 把上传的输入文件（字幕、表格）解码成流水线可用的文本。
package sources

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/asticode/go-astisub"
)

// ReadSRT 读取 SRT 字幕文件，按出现顺序返回纯文本（每条字幕一行）。
func ReadSRT(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open subtitle: %w", err)
	}
	defer f.Close()
	return ParseSRT(f)
}

// ParseSRT decodes SRT content from r into plain text.
func ParseSRT(r io.Reader) (string, error) {
	subs, err := astisub.ReadFromSRT(r)
	if err != nil {
		return "", fmt.Errorf("parse srt: %w", err)
	}
	var lines []string
	for _, item := range subs.Items {
		var parts []string
		for _, line := range item.Lines {
			if text := strings.TrimSpace(line.String()); text != "" {
				parts = append(parts, text)
			}
		}
		if len(parts) > 0 {
			lines = append(lines, strings.Join(parts, " "))
		}
	}
	return strings.Join(lines, "\n"), nil
}

// File 是数据目录中的一个输入文件。
type File struct {
	Filename string `json:"filename"`
	Path     string `json:"path"`
}

// List 列出 dir 下指定扩展名的文件，按文件名倒序；目录不存在时返回空列表。
func List(dir, ext string) ([]File, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return []File{}, nil
	}
	if err != nil {
		return nil, err
	}
	files := []File{}
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ext) {
			continue
		}
		files = append(files, File{Filename: e.Name(), Path: filepath.Join(dir, e.Name())})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Filename > files[j].Filename })
	return files, nil
}
