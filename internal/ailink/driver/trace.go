package driver

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// TraceEntry represents a single request/response trace entry.
type TraceEntry struct {
	Timestamp   time.Time       `json:"timestamp"`
	Driver      string          `json:"driver"`
	Endpoint    string          `json:"endpoint"`
	Method      string          `json:"method"`
	Model       string          `json:"model,omitempty"`
	RequestBody json.RawMessage `json:"request_body,omitempty"`
	StatusCode  int             `json:"status_code,omitempty"`
	Response    json.RawMessage `json:"response,omitempty"`
	Error       string          `json:"error,omitempty"`
	DurationMs  int64           `json:"duration_ms"`
}

// TraceOptions controls rotation of the trace file.
type TraceOptions struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Tracer records request/response traces in NDJSON format.
type Tracer struct {
	out io.WriteCloser
	mu  sync.Mutex
}

var (
	globalTracer *Tracer
	tracerMu     sync.Mutex
)

// NewTracer writes traces to out.
func NewTracer(out io.WriteCloser) *Tracer {
	return &Tracer{out: out}
}

// EnableTracing starts tracing to a rotating file at path.
// Returns a cleanup function that should be called to close the file.
func EnableTracing(path string, opts TraceOptions) (func(), error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("trace path is required")
	}
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 50
	}

	writer := &lumberjack.Logger{
		Filename:   filepath.Clean(path),
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	}
	SetTracer(NewTracer(writer))
	return DisableTracing, nil
}

// SetTracer installs t as the process tracer, closing any previous one.
func SetTracer(t *Tracer) {
	tracerMu.Lock()
	defer tracerMu.Unlock()
	if globalTracer != nil {
		_ = globalTracer.Close()
	}
	globalTracer = t
}

// DisableTracing stops tracing and closes the trace file.
func DisableTracing() {
	SetTracer(nil)
}

// IsTracingEnabled returns true if tracing is active.
func IsTracingEnabled() bool {
	tracerMu.Lock()
	defer tracerMu.Unlock()
	return globalTracer != nil
}

// Trace records a trace entry if tracing is enabled.
func Trace(entry TraceEntry) {
	tracerMu.Lock()
	t := globalTracer
	tracerMu.Unlock()

	if t == nil {
		return
	}
	t.Write(entry)
}

// Write records a trace entry.
func (t *Tracer) Write(entry TraceEntry) {
	if t == nil || t.out == nil {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	t.mu.Lock()
	defer t.mu.Unlock()
	_, _ = t.out.Write(data)
}

// Close closes the trace output.
func (t *Tracer) Close() error {
	if t == nil || t.out == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.out.Close()
}
