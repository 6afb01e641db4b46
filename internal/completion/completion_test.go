package completion

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	openai "github.com/sashabaranov/go-openai"

	"github.com/allaspectsdev/chatproxy/internal/config"
	"github.com/allaspectsdev/chatproxy/internal/metrics"
	"github.com/allaspectsdev/chatproxy/internal/observe"
	"github.com/allaspectsdev/chatproxy/internal/upstream"
)

const okResponse = `{
	"id": "chatcmpl-1",
	"object": "chat.completion",
	"model": "gpt-4o-mini-2024-07-18",
	"choices": [{"index": 0, "message": {"role": "assistant", "content": "  Water it weekly.  "}, "finish_reason": "stop"}],
	"usage": {"prompt_tokens": 120, "completion_tokens": 8, "total_tokens": 128}
}`

func newTestCompletion(t *testing.T, handler http.HandlerFunc) (*Client, *observe.Recorder) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.DefaultConfig().Completion
	cfg.APIBase = srv.URL + "/v1"
	cfg.APIKey = "sk-test"

	rec := observe.NewRecorder()
	col := metrics.NewCollector(prometheus.NewRegistry())
	return NewClient(upstream.NewClient(rec, col), cfg, rec, col), rec
}

func TestReply_Success(t *testing.T) {
	var got openai.ChatCompletionRequest
	var gotAuth, gotPath string
	c, rec := newTestCompletion(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(okResponse))
	})

	reply, ok := c.Reply(context.Background(), "You are Planty.", "How often do I water?", "fallback")
	if !ok {
		t.Fatal("expected ok=true")
	}
	if reply != "Water it weekly." {
		t.Errorf("reply = %q", reply)
	}
	if gotPath != "/v1/chat/completions" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if got.Model != "gpt-4o-mini" {
		t.Errorf("model = %q", got.Model)
	}
	if len(got.Messages) != 2 ||
		got.Messages[0].Role != openai.ChatMessageRoleSystem || got.Messages[0].Content != "You are Planty." ||
		got.Messages[1].Role != openai.ChatMessageRoleUser || got.Messages[1].Content != "How often do I water?" {
		t.Errorf("messages = %+v", got.Messages)
	}

	usage := rec.Find("completion.usage")
	if len(usage) != 1 {
		t.Fatalf("expected 1 completion.usage event, got %d", len(usage))
	}
	if usage[0].Fields["prompt_tokens"] != 120 {
		t.Errorf("prompt_tokens = %v", usage[0].Fields["prompt_tokens"])
	}
	if cost, _ := usage[0].Fields["cost_usd"].(float64); cost <= 0 {
		t.Errorf("expected a positive cost estimate, got %v", usage[0].Fields["cost_usd"])
	}
}

func TestReply_FallbackOnFailure(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
		}},
		{"rate limited", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":{"message":"rate limit"}}`, http.StatusTooManyRequests)
		}},
		{"no choices", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"choices":[]}`))
		}},
		{"blank content", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"   "}}]}`))
		}},
		{"not json", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`upstream connect error`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := newTestCompletion(t, tt.handler)
			reply, ok := c.Reply(context.Background(), "sys", "hi", "Sorry, I don’t know.")
			if ok {
				t.Fatal("expected ok=false")
			}
			if reply != "Sorry, I don’t know." {
				t.Errorf("reply = %q, want fallback", reply)
			}
			failed := rec.Find("upstream.failed")
			if len(failed) != 1 || failed[0].Fields["op"] != Op {
				t.Errorf("expected one upstream.failed event for %q, got %+v", Op, failed)
			}
		})
	}
}

func TestParseReply_Errors(t *testing.T) {
	if _, _, err := ParseReply([]byte(`{`)); !errors.Is(err, upstream.ErrMalformed) {
		t.Errorf("truncated body: got %v, want ErrMalformed", err)
	}
	if _, _, err := ParseReply([]byte(`{"choices":[]}`)); !errors.Is(err, upstream.ErrEmpty) {
		t.Errorf("no choices: got %v, want ErrEmpty", err)
	}
}

func TestConfigured(t *testing.T) {
	cfg := config.DefaultConfig().Completion
	if NewClient(nil, cfg, nil, nil).Configured() {
		t.Error("expected unconfigured client without an API key")
	}
	cfg.APIKey = "sk-x"
	if !NewClient(nil, cfg, nil, nil).Configured() {
		t.Error("expected configured client")
	}
}
