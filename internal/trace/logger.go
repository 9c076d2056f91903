package trace

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/carebridge/carebridge/internal/config"
)

const (
	SpanTypeLLM       = "llm"
	SpanTypeRetriever = "retriever"
	SpanTypeTool      = "tool"
	SpanTypeWorkflow  = "workflow"
)

type Span struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Name       string            `json:"name"`
	Input      string            `json:"input"`
	Output     string            `json:"output"`
	Model      string            `json:"model,omitempty"`
	Documents  []string          `json:"documents,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	DurationNs int64             `json:"duration_ns"`
	CreatedAt  int64             `json:"created_at"`
}

type Trace struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Input     string `json:"input"`
	Output    string `json:"output"`
	Spans     []Span `json:"spans"`
	StartedAt int64  `json:"started_at"`
	EndedAt   int64  `json:"ended_at"`

	logger *Logger
	mu     sync.Mutex
	done   bool
}

// Logger buffers observability traces and ships them to the ingest
// endpoint in batches. A zero-config logger is a no-op, so callers
// never have to check whether tracing is enabled.
type Logger struct {
	client    *resty.Client
	project   string
	logStream string

	mu     sync.Mutex
	buffer []*Trace
}

func NewLogger(cfg config.TraceConfig) *Logger {
	if cfg.Endpoint == "" {
		return &Logger{}
	}
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(cfg.Endpoint).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("X-API-Key", cfg.APIKey)
	}
	return &Logger{
		client:    client,
		project:   cfg.Project,
		logStream: cfg.LogStream,
	}
}

func (l *Logger) enabled() bool {
	return l != nil && l.client != nil
}

func (l *Logger) StartTrace(name, input string) *Trace {
	trace := &Trace{
		ID:        uuid.NewString(),
		Name:      name,
		Input:     input,
		StartedAt: time.Now().UnixNano(),
		logger:    l,
	}
	return trace
}

func (t *Trace) addSpan(span Span) {
	if t == nil {
		return
	}
	span.ID = uuid.NewString()
	span.CreatedAt = time.Now().UnixNano()
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return
	}
	t.Spans = append(t.Spans, span)
}

func (t *Trace) AddLLMSpan(name, input, output, model string, duration time.Duration) {
	t.addSpan(Span{
		Type:       SpanTypeLLM,
		Name:       name,
		Input:      input,
		Output:     output,
		Model:      model,
		DurationNs: duration.Nanoseconds(),
	})
}

func (t *Trace) AddRetrieverSpan(name, query string, documents []string, duration time.Duration) {
	t.addSpan(Span{
		Type:       SpanTypeRetriever,
		Name:       name,
		Input:      query,
		Documents:  documents,
		DurationNs: duration.Nanoseconds(),
	})
}

func (t *Trace) AddToolSpan(name, input, output string, duration time.Duration) {
	t.addSpan(Span{
		Type:       SpanTypeTool,
		Name:       name,
		Input:      input,
		Output:     output,
		DurationNs: duration.Nanoseconds(),
	})
}

func (t *Trace) AddWorkflowSpan(name, input, output string, metadata map[string]string, duration time.Duration) {
	t.addSpan(Span{
		Type:       SpanTypeWorkflow,
		Name:       name,
		Input:      input,
		Output:     output,
		Metadata:   metadata,
		DurationNs: duration.Nanoseconds(),
	})
}

// Conclude closes the trace and hands it to the logger's buffer. A
// concluded trace accepts no further spans.
func (t *Trace) Conclude(output string) {
	if t == nil || t.logger == nil {
		return
	}
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return
	}
	t.done = true
	t.Output = output
	t.EndedAt = time.Now().UnixNano()
	t.mu.Unlock()

	t.logger.mu.Lock()
	t.logger.buffer = append(t.logger.buffer, t)
	t.logger.mu.Unlock()
}

type ingestRequest struct {
	Project   string   `json:"project"`
	LogStream string   `json:"log_stream"`
	Traces    []*Trace `json:"traces"`
}

// Flush ships buffered traces. Failures are logged and the batch is
// dropped; observability never blocks or retries into the request path.
func (l *Logger) Flush(ctx context.Context) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	traces := l.buffer
	l.buffer = nil
	l.mu.Unlock()
	if len(traces) == 0 || !l.enabled() {
		return nil
	}
	resp, err := l.client.R().
		SetContext(ctx).
		SetBody(ingestRequest{Project: l.project, LogStream: l.logStream, Traces: traces}).
		Post("/traces")
	if err == nil && resp.IsError() {
		err = fmt.Errorf("trace ingest failed: %s", resp.Status())
	}
	if err != nil {
		logutil.GetLogger(ctx).Warn("flush traces failed", zap.Int("count", len(traces)), zap.Error(err))
		return err
	}
	logutil.GetLogger(ctx).Debug("flushed traces", zap.Int("count", len(traces)))
	return nil
}

// Pending reports how many concluded traces wait for the next flush.
func (l *Logger) Pending() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buffer)
}
