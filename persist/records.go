package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// ErrNotFound is returned for record ids that do not exist in the sink directory.
var ErrNotFound = errors.New("persist: record not found")

// Summary 是列表接口返回的一条记录概要。
type Summary struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// List 列出目录下全部可解析的 JSON 记录，按文件名倒序；目录不存在时返回空列表。
func (s *Sink) List() ([]Summary, error) {
	entries, err := os.ReadDir(s.Dir)
	if os.IsNotExist(err) {
		return []Summary{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read output dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() > entries[j].Name() })

	out := []Summary{}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		path := filepath.Join(s.Dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil || !json.Valid(data) {
			s.logger().Warn("skip unreadable record", zap.String("path", path), zap.Error(err))
			continue
		}
		out = append(out, Summary{
			ID:       strings.TrimSuffix(e.Name(), ".json"),
			Filename: e.Name(),
			Size:     int64(len(data)),
		})
	}
	return out, nil
}

// Latest 返回最近修改的 limit 个记录路径（仅匹配本 sink 的前缀）。
func (s *Sink) Latest(limit int) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.Dir, s.prefix()+"*.json"))
	if err != nil {
		return nil, err
	}
	type item struct {
		path  string
		mtime int64
	}
	items := make([]item, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		items = append(items, item{path: m, mtime: info.ModTime().UnixNano()})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].mtime > items[j].mtime })
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	paths := make([]string, len(items))
	for i, it := range items {
		paths[i] = it.path
	}
	return paths, nil
}

// Load 读取一条记录。
func Load(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("read record: %w", err)
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("decode record %s: %w", filepath.Base(path), err)
	}
	return r, nil
}

// Path 把记录 id（不含 .json 的文件名）映射为目录内的路径，拒绝任何带目录成分的 id。
func (s *Sink) Path(id string) (string, error) {
	if id == "" || id != filepath.Base(id) || strings.Contains(id, "..") || strings.ContainsAny(id, `/\`) {
		return "", ErrNotFound
	}
	return filepath.Join(s.Dir, id+".json"), nil
}

// Get 按 id 读取记录。
func (s *Sink) Get(id string) (Record, error) {
	path, err := s.Path(id)
	if err != nil {
		return Record{}, err
	}
	return Load(path)
}

// Delete 删除记录文件，并尽力移除其索引。
func (s *Sink) Delete(ctx context.Context, id string) error {
	path, err := s.Path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("delete record: %w", err)
	}
	if s.Index != nil {
		if err := s.Index.Remove(ctx, id); err != nil {
			s.logger().Warn("remove index entry failed", zap.String("id", id), zap.Error(err))
		}
	}
	return nil
}
