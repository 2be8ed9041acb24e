package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"content_agents/agents"
	"content_agents/checkpoint"
	"content_agents/persist"
	"content_agents/pipeline"
	"content_agents/publisher"
	"content_agents/sources"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": "content agents server is running"})
}

func (s *Server) handleSrtList(w http.ResponseWriter, _ *http.Request) {
	files, err := sources.List(s.dataDir, ".srt")
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeData(w, files)
}

// handleUpload 只接受指定扩展名的非空文件，按原文件名（去掉目录）写入数据目录，同名覆盖。
func (s *Server) handleUpload(ext string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "No file provided")
			return
		}
		defer file.Close()

		name := filepath.Base(strings.ReplaceAll(header.Filename, `\`, "/"))
		if name == "." || name == "/" || !strings.EqualFold(filepath.Ext(name), ext) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Only %s files are allowed", ext))
			return
		}
		if header.Size == 0 {
			writeError(w, http.StatusBadRequest, "Empty file")
			return
		}
		if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		path := filepath.Join(s.dataDir, name)
		out, err := os.Create(path)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if _, err := io.Copy(out, file); err != nil {
			out.Close()
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if err := out.Close(); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.logger.Info("file uploaded", zap.String("path", path), zap.Int64("size", header.Size))
		writeData(w, sources.File{Filename: name, Path: path})
	}
}

// family 解析 ?family=，缺省为 conversations。
func (s *Server) family(w http.ResponseWriter, r *http.Request) (*persist.Sink, bool) {
	name := r.URL.Query().Get("family")
	if name == "" {
		name = FamilyConversations
	}
	sink, ok := s.families[name]
	if !ok || sink == nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown family %q", name))
		return nil, false
	}
	return sink, true
}

func (s *Server) handleConversationList(w http.ResponseWriter, r *http.Request) {
	sink, ok := s.family(w, r)
	if !ok {
		return
	}
	list, err := sink.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeData(w, list)
}

func (s *Server) handleConversationGet(w http.ResponseWriter, r *http.Request) {
	sink, ok := s.family(w, r)
	if !ok {
		return
	}
	rec, err := sink.Get(r.PathValue("id"))
	if errors.Is(err, persist.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Conversation not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeData(w, rec)
}

func (s *Server) handleConversationDelete(w http.ResponseWriter, r *http.Request) {
	sink, ok := s.family(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	err := sink.Delete(r.Context(), id)
	if errors.Is(err, persist.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Conversation not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: fmt.Sprintf("Conversation %s deleted", id)})
}

// publishReq 可选，用于覆盖从记录中推断出的草稿字段。
type publishReq struct {
	Title  string `json:"title"`
	Author string `json:"author"`
	Digest string `json:"digest"`
	Cover  string `json:"cover"`
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	if s.publisher == nil {
		writeError(w, http.StatusServiceUnavailable, "wechat publisher is not configured")
		return
	}
	sink, ok := s.family(w, r)
	if !ok {
		return
	}
	var req publishReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := sink.Get(r.PathValue("id"))
	if errors.Is(err, persist.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Conversation not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	draft := publisher.DraftFromRecord(rec, sink.Dir)
	if req.Title != "" {
		draft.Title = req.Title
	}
	if req.Author != "" {
		draft.Author = req.Author
	}
	if req.Digest != "" {
		draft.Digest = req.Digest
	}
	if req.Cover != "" {
		draft.CoverPath = req.Cover
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.runTimeout)
	defer cancel()
	mediaID, err := s.publisher.PublishDraft(ctx, draft)
	switch {
	case errors.Is(err, publisher.ErrMissingField):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		s.logger.Warn("publish failed", zap.String("id", r.PathValue("id")), zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeData(w, map[string]string{"media_id": mediaID})
	}
}

func readBody(w http.ResponseWriter, r *http.Request, limit int64) (json.RawMessage, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return body, true
}

func (s *Server) handleRunStart(w http.ResponseWriter, r *http.Request) {
	agent := r.PathValue("agent")
	if !s.registry.Has(agent) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown agent %q", agent))
		return
	}
	seed, ok := readBody(w, r, s.maxUpload)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.runTimeout)
	defer cancel()
	res, err := s.registry.Start(ctx, agent, seed)
	s.writeRun(w, res, err)
}

func (s *Server) handleRunResume(w http.ResponseWriter, r *http.Request) {
	patch, ok := readBody(w, r, s.maxUpload)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.runTimeout)
	defer cancel()
	res, err := s.registry.Resume(ctx, r.PathValue("id"), patch)
	s.writeRun(w, res, err)
}

func (s *Server) handleRunGet(w http.ResponseWriter, r *http.Request) {
	run, err := s.registry.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, checkpoint.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Run not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeData(w, run)
}

// failedRun 是中止运行的响应体：不带任何中间状态。
type failedRun struct {
	RunID  string `json:"run_id"`
	Agent  string `json:"agent"`
	Status string `json:"status"`
	Next   string `json:"next,omitempty"`
}

// writeRun 把运行错误映射为状态码。中止的运行返回 502，只带运行 id 与中止的阶段。
func (s *Server) writeRun(w http.ResponseWriter, res agents.RunResult, err error) {
	switch {
	case err == nil:
		writeData(w, res)
	case errors.Is(err, agents.ErrUnknownAgent), errors.Is(err, checkpoint.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, agents.ErrBadInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, pipeline.ErrHardFail):
		data := failedRun{RunID: res.RunID, Agent: res.Agent, Status: agents.StatusFailed, Next: res.Next}
		writeJSON(w, http.StatusBadGateway, envelope{Success: false, Data: data, Error: err.Error()})
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
