package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"content_agents/agents"
	"content_agents/metrics"
	"content_agents/persist"
	"content_agents/publisher"
)

const (
	// FamilyConversations 等是会话记录的输出族，对应 outputs 下的子目录。
	FamilyConversations = "conversations"
	FamilyComics        = "comics"
	FamilyExcel         = "excel"

	defaultMaxUpload  = 32 << 20
	defaultRunTimeout = 10 * time.Minute
)

// DraftPublisher 把文章发布为公众号草稿，*publisher.Publisher 满足该接口。
type DraftPublisher interface {
	PublishDraft(ctx context.Context, d publisher.Draft) (string, error)
}

type Options struct {
	Registry *agents.Registry
	// Families 按输出族名索引的持久化目录，至少包含 conversations。
	Families map[string]*persist.Sink
	// DataDir 存放上传的 .srt / .xlsx 文件
	DataDir string
	// StaticDir 是前端构建产物目录，挂载在 /app/ 下。
	StaticDir string
	// Publisher 可选；为 nil 时发布接口返回 503。
	Publisher  DraftPublisher
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
	RunTimeout time.Duration
	MaxUpload  int64
}

type Server struct {
	registry   *agents.Registry
	families   map[string]*persist.Sink
	dataDir    string
	staticDir  string
	publisher  DraftPublisher
	metrics    *metrics.Metrics
	logger     *zap.Logger
	runTimeout time.Duration
	maxUpload  int64
}

func New(o Options) (*Server, error) {
	if o.Registry == nil {
		return nil, errors.New("agent registry required")
	}
	if o.Families[FamilyConversations] == nil {
		return nil, errors.New("conversations sink required")
	}
	if o.DataDir == "" {
		return nil, errors.New("data dir required")
	}
	logger := o.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		registry:   o.Registry,
		families:   o.Families,
		dataDir:    o.DataDir,
		staticDir:  o.StaticDir,
		publisher:  o.Publisher,
		metrics:    o.Metrics,
		logger:     logger.Named("server"),
		runTimeout: o.RunTimeout,
		maxUpload:  o.MaxUpload,
	}
	if s.runTimeout <= 0 {
		s.runTimeout = defaultRunTimeout
	}
	if s.maxUpload <= 0 {
		s.maxUpload = defaultMaxUpload
	}
	return s, nil
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/getSrtList", s.handleSrtList)
	mux.HandleFunc("POST /api/uploadSrt", s.handleUpload(".srt"))
	mux.HandleFunc("POST /api/uploadExcel", s.handleUpload(".xlsx"))

	mux.HandleFunc("GET /api/conversations", s.handleConversationList)
	mux.HandleFunc("GET /api/conversations/{id}", s.handleConversationGet)
	mux.HandleFunc("DELETE /api/conversations/{id}", s.handleConversationDelete)
	mux.HandleFunc("POST /api/conversations/{id}/publish", s.handlePublish)

	mux.HandleFunc("POST /api/agents/{agent}/runs", s.handleRunStart)
	mux.HandleFunc("GET /api/runs/{id}", s.handleRunGet)
	mux.HandleFunc("POST /api/runs/{id}/resume", s.handleRunResume)

	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	mux.Handle("/app/", http.StripPrefix("/app", s.staticHandler()))
	mux.Handle("GET /{$}", http.RedirectHandler("/app/", http.StatusFound))

	var h http.Handler = mux
	if s.metrics != nil {
		h = s.metrics.Middleware(h)
	}
	return s.logMiddleware(h)
}

// staticHandler 服务前端构建产物；未知路径回退到 index.html。目录未构建时返回 503。
func (s *Server) staticHandler() http.Handler {
	index := filepath.Join(s.staticDir, "index.html")
	files := http.FileServer(http.Dir(s.staticDir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.staticDir == "" {
			http.Error(w, "frontend not built", http.StatusServiceUnavailable)
			return
		}
		if _, err := os.Stat(index); err != nil {
			http.Error(w, "frontend not built", http.StatusServiceUnavailable)
			return
		}
		upath := filepath.FromSlash(strings.TrimPrefix(r.URL.Path, "/"))
		if upath != "" {
			if info, err := os.Stat(filepath.Join(s.staticDir, filepath.Clean("/"+upath))); err == nil && !info.IsDir() {
				files.ServeHTTP(w, r)
				return
			}
		}
		http.ServeFile(w, r, index)
	})
}

// --- Helpers ---

// envelope 是 /api 下除 health 以外所有接口的统一响应体。
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Success: false, Error: msg})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		}
		if rec.status >= http.StatusInternalServerError {
			s.logger.Warn("request", fields...)
			return
		}
		s.logger.Info("request", fields...)
	})
}
