package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/allaspectsdev/chatproxy/internal/config"
	"github.com/allaspectsdev/chatproxy/internal/metrics"
)

// lockedBuffer lets the test read log output that background goroutines are
// still writing.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"trace":   zerolog.TraceLevel,
		"DEBUG":   zerolog.DebugLevel,
		" info ":  zerolog.InfoLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"fatal":   zerolog.FatalLevel,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "json")
	logger.Info().Str("k", "v").Msg("hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected a JSON log line, got %q: %v", buf.String(), err)
	}
	if line["service"] != "chatproxy" || line["message"] != "hello" || line["k"] != "v" {
		t.Errorf("unexpected log line %v", line)
	}
}

func TestNewLogger_Console(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "console")
	logger.Info().Msg("hello")
	if json.Valid(buf.Bytes()) {
		t.Errorf("console format should not emit JSON: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "hello") {
		t.Errorf("missing message in %q", buf.String())
	}
}

func TestNewStack_ServesLivenessAndLogsMissingCredentials(t *testing.T) {
	for _, name := range []string{"CHATPROXY_KEY_OPENAI", "CHATPROXY_KEY_SHOPIFY"} {
		t.Setenv(name, "")
	}

	var buf lockedBuffer
	logger := zerolog.New(&buf)
	collector := metrics.NewCollector(prometheus.NewRegistry())

	stack := NewStack(config.DefaultConfig(), logger, collector)

	rr := httptest.NewRecorder()
	stack.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("GET status = %d, want 200", rr.Code)
	}
	if rr.Header().Get("X-Request-Id") == "" {
		t.Error("expected X-Request-Id on the response")
	}
	if !strings.Contains(buf.String(), "completion API key is not configured") {
		t.Errorf("expected a startup warning about the completion key, got %q", buf.String())
	}
}

func TestInitTracing_DisabledIsNoop(t *testing.T) {
	shutdown := InitTracing(context.Background(), config.TracingConfig{Enabled: false}, zerolog.Nop())
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestInitTracing_BadExporterFallsBack(t *testing.T) {
	cfg := config.TracingConfig{Enabled: true, Exporter: "zipkin", ServiceName: "chatproxy", SampleRate: 1}
	shutdown := InitTracing(context.Background(), cfg, zerolog.Nop())
	if shutdown == nil {
		t.Fatal("shutdown must never be nil")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestNewStack_ReportsEncodingWithoutBlocking(t *testing.T) {
	for _, name := range []string{"CHATPROXY_KEY_OPENAI", "CHATPROXY_KEY_SHOPIFY"} {
		t.Setenv(name, "")
	}
	cfg := config.DefaultConfig()
	cfg.Completion.MaxContextTokens = 0

	var buf lockedBuffer
	NewStack(cfg, zerolog.New(&buf), nil)

	deadline := time.Now().Add(5 * time.Second)
	for !strings.Contains(buf.String(), "token encoding ready") {
		if time.Now().After(deadline) {
			t.Fatalf("no encoding status logged, got %q", buf.String())
		}
		time.Sleep(10 * time.Millisecond)
	}
}
