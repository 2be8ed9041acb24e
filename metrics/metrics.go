// Package metrics Prometheus 指标导出
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"content_agents/pipeline"
)

// Metrics 包含全部指标；它同时实现 pipeline.Observer 与 generator.Recorder。
type Metrics struct {
	registry *prometheus.Registry

	// 阶段指标
	StageRunsTotal *prometheus.CounterVec
	StageDuration  *prometheus.HistogramVec

	// 模型调用指标
	LLMCallsTotal   *prometheus.CounterVec
	LLMCallDuration *prometheus.HistogramVec

	// 运行指标
	RunsTotal     *prometheus.CounterVec
	RunsSuspended prometheus.Gauge
	RecordsSaved  *prometheus.CounterVec

	// HTTP 请求指标
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
}

// New 创建指标实例并注册到独立的 registry（附带 Go 运行时与进程指标）。
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		StageRunsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stage_runs_total",
				Help:      "Pipeline stage executions by outcome",
			},
			[]string{"pipeline", "stage", "outcome"},
		),
		StageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Pipeline stage duration in seconds",
				Buckets:   []float64{0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"pipeline", "stage"},
		),
		LLMCallsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_calls_total",
				Help:      "Model calls by provider, mode and outcome",
			},
			[]string{"provider", "mode", "outcome"},
		),
		LLMCallDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "llm_call_duration_seconds",
				Help:      "Model call duration in seconds",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
			},
			[]string{"provider", "mode"},
		),
		RunsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Agent runs by final status",
			},
			[]string{"agent", "status"},
		),
		RunsSuspended: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "runs_suspended",
				Help:      "Runs currently paused at an interruption point",
			},
		),
		RecordsSaved: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_saved_total",
				Help:      "Conversation records written per pipeline",
			},
			[]string{"pipeline"},
		),
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 120},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),
	}
}

// Registry exposes the underlying registry (tests, extra collectors).
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler 返回 Prometheus HTTP Handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) StageStarted(context.Context, string, pipeline.StageID) {}

func (m *Metrics) StageFinished(_ context.Context, name string, stage pipeline.StageID, outcome pipeline.Outcome, elapsed time.Duration, _ error) {
	m.StageRunsTotal.WithLabelValues(name, string(stage), outcome.String()).Inc()
	m.StageDuration.WithLabelValues(name, string(stage)).Observe(elapsed.Seconds())
}

// ObserveLLMCall 记录一次模型调用。
func (m *Metrics) ObserveLLMCall(provider string, structured bool, outcome string, elapsed time.Duration) {
	mode := "text"
	if structured {
		mode = "structured"
	}
	m.LLMCallsTotal.WithLabelValues(provider, mode, outcome).Inc()
	m.LLMCallDuration.WithLabelValues(provider, mode).Observe(elapsed.Seconds())
}

// RecordRun 记录一次运行的结果：completed / interrupted / failed / resumed。
func (m *Metrics) RecordRun(agent, status string) {
	m.RunsTotal.WithLabelValues(agent, status).Inc()
	switch status {
	case "interrupted":
		m.RunsSuspended.Inc()
	case "resumed":
		m.RunsSuspended.Dec()
	}
}

// RecordSaved 记录一次会话落盘。
func (m *Metrics) RecordSaved(pipelineName string) {
	m.RecordsSaved.WithLabelValues(pipelineName).Inc()
}

// Middleware 创建 HTTP 指标中间件；path 标签取路由模式，避免 id 造成高基数。
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// responseWriter 包装 http.ResponseWriter 以捕获状态码
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
