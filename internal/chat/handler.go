// Package chat implements the storefront chat endpoint: it answers CORS
// preflights and liveness checks, and turns a customer message into a model
// reply grounded in live store data.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/allaspectsdev/chatproxy/internal/completion"
	"github.com/allaspectsdev/chatproxy/internal/config"
	"github.com/allaspectsdev/chatproxy/internal/metrics"
	"github.com/allaspectsdev/chatproxy/internal/observe"
	"github.com/allaspectsdev/chatproxy/internal/security"
	"github.com/allaspectsdev/chatproxy/internal/shopify"
	"github.com/allaspectsdev/chatproxy/internal/tokenizer"
	"github.com/allaspectsdev/chatproxy/internal/tracing"
	"github.com/allaspectsdev/chatproxy/internal/upstream"
)

// Client-visible error texts.
const (
	errMessageRequired  = "Message is required"
	errMethodNotAllowed = "Method not allowed"
	errMissingAPIKey    = "OpenAI API key missing!"
)

// Fallback reasons used as metric labels.
const (
	reasonCompletion = "completion"
	reasonPanic      = "panic"
)

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler serves every method on the chat route. It holds no per-request
// state and is safe for concurrent use.
type Handler struct {
	cors       config.CORSConfig
	assistant  config.AssistantConfig
	model      string
	budget     int
	maxBody    int64
	screen     bool
	shop       *shopify.Client
	completion *completion.Client
	tokenizer  *tokenizer.Tokenizer
	observer   observe.Observer
	metrics    *metrics.Collector
}

// NewHandler builds a Handler from cfg. Outbound calls go through up;
// observer and collector may be nil.
func NewHandler(cfg *config.Config, up *upstream.Client, observer observe.Observer, collector *metrics.Collector) *Handler {
	if observer == nil {
		observer = observe.Nop()
	}
	tok := tokenizer.New()
	if cfg.Completion.MaxContextTokens > 0 {
		tok.Warm(cfg.Completion.Model)
	}
	return &Handler{
		cors:       cfg.CORS,
		assistant:  cfg.Assistant,
		model:      cfg.Completion.Model,
		budget:     cfg.Completion.MaxContextTokens,
		maxBody:    cfg.Server.MaxBodySize,
		screen:     cfg.Assistant.ScreenMessages,
		shop:       shopify.NewClient(up, cfg.Shopify),
		completion: completion.NewClient(up, cfg.Completion, observer, collector),
		tokenizer:  tok,
		observer:   observer,
		metrics:    collector,
	}
}

// Preload waits for the token encoding used for block trimming, or for ctx to
// end. Until it is loaded, blocks are trimmed by an approximate character
// count. It is a no-op when trimming is disabled.
func (h *Handler) Preload(ctx context.Context) error {
	if h.budget <= 0 {
		return nil
	}
	return h.tokenizer.Preload(ctx, h.model)
}

// ServeHTTP sets the CORS headers and dispatches on the request method.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.setCORS(w)

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		writeJSON(w, http.StatusOK, statusResponse{Status: h.assistant.StatusMessage})
	case http.MethodPost:
		h.handleChat(w, r)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: errMethodNotAllowed})
	}
}

func (h *Handler) setCORS(w http.ResponseWriter) {
	hdr := w.Header()
	hdr.Set("Access-Control-Allow-Origin", h.cors.AllowedOrigin)
	hdr.Set("Access-Control-Allow-Methods", strings.Join(h.cors.AllowedMethods, ","))
	hdr.Set("Access-Control-Allow-Headers", strings.Join(h.cors.AllowedHeaders, ","))
}

func (h *Handler) handleChat(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	w := &tracing.StatusWriter{ResponseWriter: rw}

	defer func() {
		if rec := recover(); rec != nil {
			h.observer.Log(ctx, zerolog.ErrorLevel, "chat.panic", observe.Fields{
				"panic":            fmt.Sprint(rec),
				"stack":            string(debug.Stack()),
				"response_started": w.Written(),
			})
			// A second JSON object would corrupt a response already under way.
			if w.Written() {
				return
			}
			h.metrics.RecordFallbackReply(reasonPanic)
			writeJSON(w, http.StatusOK, chatResponse{Reply: h.assistant.FallbackReply})
		}
	}()

	message := h.readMessage(ctx, rw, r)
	if message == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: errMessageRequired})
		return
	}
	if h.screen {
		h.screenMessage(ctx, message)
	}

	if !h.completion.Configured() {
		h.observer.Log(ctx, zerolog.ErrorLevel, "completion.unconfigured", observe.Fields{
			"hint": "set completion.api_key, completion.api_key_ref or OPENAI_API_KEY",
		})
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: errMissingAPIKey})
		return
	}

	products, policies, productsOK, policiesOK := h.enrich(ctx)
	system := BuildSystemPrompt(h.assistant.Persona, products, policies)

	reply, replyOK := h.completion.Reply(ctx, system, message, h.assistant.FallbackReply)
	if !replyOK {
		h.metrics.RecordFallbackReply(reasonCompletion)
	}

	tracing.SetChatAttributes(ctx, productsOK, policiesOK, replyOK)
	h.observer.Log(ctx, zerolog.InfoLevel, "chat.reply", observe.Fields{
		"products_ok": productsOK,
		"policies_ok": policiesOK,
		"reply_ok":    replyOK,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	writeJSON(w, http.StatusOK, chatResponse{Reply: reply})
}

// screenMessage records suspicious content in message. It never alters or
// rejects the message.
func (h *Handler) screenMessage(ctx context.Context, message string) {
	findings := security.Scan(message)
	if len(findings) == 0 {
		return
	}
	patterns := make([]string, 0, len(findings))
	for _, f := range findings {
		patterns = append(patterns, f.Pattern)
		h.metrics.RecordFlaggedMessage(f.Category)
	}
	h.observer.Log(ctx, zerolog.WarnLevel, "message.flagged", observe.Fields{
		"patterns":   patterns,
		"categories": security.Categories(findings),
	})
}

// readMessage returns the trimmed message field, or "" when the body is
// missing, oversized or not a JSON object with a string message.
func (h *Handler) readMessage(ctx context.Context, w http.ResponseWriter, r *http.Request) string {
	if r.Body == nil {
		return ""
	}
	body := r.Body
	if h.maxBody > 0 {
		body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}

	var req chatRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		h.observer.Log(ctx, zerolog.DebugLevel, "chat.bad_body", observe.Fields{"error": err})
		return ""
	}
	return strings.TrimSpace(req.Message)
}

// enrich fetches the product and policy blocks concurrently. Each block falls
// back to its placeholder independently of the other.
func (h *Handler) enrich(ctx context.Context) (products, policies string, productsOK, policiesOK bool) {
	products, policies = h.assistant.ProductsUnavailable, h.assistant.PoliciesUnavailable

	if !h.shop.Configured() {
		h.observer.Log(ctx, zerolog.WarnLevel, "shopify.unconfigured", observe.Fields{
			"hint": "set shopify.store_domain and shopify.admin_token",
		})
		h.metrics.RecordFetch(shopify.OpProducts, metrics.OutcomeSkipped, 0)
		h.metrics.RecordFetch(shopify.OpPolicies, metrics.OutcomeSkipped, 0)
		return products, policies, false, false
	}

	var wg sync.WaitGroup
	wg.Go(func() {
		products, productsOK = h.shop.ProductBlock(ctx, h.assistant.ProductsUnavailable)
	})
	wg.Go(func() {
		policies, policiesOK = h.shop.PolicyBlock(ctx, h.assistant.PoliciesUnavailable)
	})
	wg.Wait()

	if productsOK {
		products = h.trim(ctx, "products", products)
	}
	if policiesOK {
		policies = h.trim(ctx, "policies", policies)
	}
	return products, policies, productsOK, policiesOK
}

func (h *Handler) trim(ctx context.Context, block, text string) string {
	out, cut := h.tokenizer.Truncate(h.model, text, h.budget)
	if cut {
		h.observer.Log(ctx, zerolog.DebugLevel, "prompt.truncated", observe.Fields{
			"block":  block,
			"budget": h.budget,
		})
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
