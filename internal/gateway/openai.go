// Package gateway exposes the OpenAI-compatible HTTP surface of
// spec.md §6: POST /v1/chat/completions with SSE streaming, selecting
// among configured providers via a request header. Grounded on the
// teacher's internal/gateway http_server.go (net/http.ServeMux, an
// explicit net.Listen before serving, ReadHeaderTimeout on the server,
// promhttp's metrics handler) — the webhook/channel/web-UI routes that
// file also mounted are out of scope here (spec's Non-goals exclude
// the channel surface); only the completions endpoint, /healthz, and
// /metrics survive into this adapted server.
package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/forgehq/forge/internal/agent"
	"github.com/forgehq/forge/internal/observability"
	"github.com/forgehq/forge/pkg/models"
)

// ProviderHeader selects which configured provider handles a request,
// per spec §6's `x-<brand>-provider` convention.
const ProviderHeader = "X-Forge-Provider"

// DefaultAddr is where the daemon listens absent an explicit bind flag.
const DefaultAddr = "localhost:11435"

// Server is the OpenAI-compatible chat-completions HTTP daemon.
type Server struct {
	providers map[string]agent.LLMProvider
	loops     map[string]*agent.AgenticLoop
	defaultID string
	logger    *observability.Logger

	httpServer *http.Server
}

// Config wires a Server to its providers and per-provider agent loops.
type Config struct {
	// Providers maps a provider id (as selected by ProviderHeader) to
	// an LLM provider.
	Providers map[string]agent.LLMProvider
	// Loops maps the same provider ids to the agent loop that should
	// drive a request against that provider.
	Loops map[string]*agent.AgenticLoop
	// Default is the provider id used when ProviderHeader is absent.
	Default string
	Logger  *observability.Logger
}

// NewServer constructs a Server from cfg.
func NewServer(cfg Config) *Server {
	return &Server{
		providers: cfg.Providers,
		loops:     cfg.Loops,
		defaultID: cfg.Default,
		logger:    cfg.Logger,
	}
}

// chatCompletionRequest mirrors the subset of the OpenAI chat
// completions request body spec §6 requires.
type chatCompletionRequest struct {
	Model     string                  `json:"model"`
	Messages  []chatCompletionMessage `json:"messages"`
	Stream    bool                    `json:"stream"`
	Tools     []json.RawMessage       `json:"tools,omitempty"`
	LocalOnly bool                    `json:"local_only,omitempty"`
}

type chatCompletionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatCompletionChunk mirrors the streamed OpenAI chat-completion delta
// shape well enough for clients written against the real API to parse.
type chatCompletionChunk struct {
	ID      string                 `json:"id"`
	Object  string                 `json:"object"`
	Created int64                  `json:"created"`
	Model   string                 `json:"model"`
	Choices []chatCompletionChoice `json:"choices"`
}

type chatCompletionChoice struct {
	Index        int                      `json:"index"`
	Delta        chatCompletionDeltaField `json:"delta"`
	FinishReason *string                  `json:"finish_reason"`
}

type chatCompletionDeltaField struct {
	Content string `json:"content,omitempty"`
}

// Mux builds the HTTP handler: /v1/chat/completions, /healthz, /metrics.
func (s *Server) Mux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/v1/chat/completions", s.handleChatCompletions)
	return mux
}

// ListenAndServe starts the HTTP daemon on addr, blocking until ctx is
// cancelled or the server errors. Matches the teacher's explicit
// net.Listen-before-Serve shape so bind failures surface immediately.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("gateway: listen: %w", err)
	}

	s.httpServer = &http.Server{
		Handler:           s.Mux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.httpServer.Serve(listener) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) providerID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(ProviderHeader)); id != "" {
		return id
	}
	return s.defaultID
}

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req chatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if len(req.Messages) == 0 {
		http.Error(w, "messages is required", http.StatusBadRequest)
		return
	}

	providerID := s.providerID(r)
	loop, ok := s.loops[providerID]
	if !ok {
		http.Error(w, fmt.Sprintf("unknown provider %q", providerID), http.StatusBadRequest)
		return
	}

	last := req.Messages[len(req.Messages)-1]
	session := &models.Session{ID: fmt.Sprintf("gateway-%d", time.Now().UnixNano())}
	msg := &models.Message{
		SessionID: session.ID,
		Role:      models.RoleUser,
		Direction: models.DirectionInbound,
		Content:   last.Content,
	}

	chunks, err := loop.Run(r.Context(), session, msg)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if !req.Stream {
		s.writeNonStreaming(w, req.Model, chunks)
		return
	}
	s.writeSSE(w, req.Model, chunks)
}

func (s *Server) writeNonStreaming(w http.ResponseWriter, model string, chunks <-chan *agent.ResponseChunk) {
	var text strings.Builder
	for chunk := range chunks {
		if chunk.Error != nil {
			http.Error(w, chunk.Error.Error(), http.StatusInternalServerError)
			return
		}
		text.WriteString(chunk.Text)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"id":      fmt.Sprintf("chatcmpl-%d", time.Now().UnixNano()),
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   model,
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": text.String()},
			"finish_reason": "stop",
		}},
	})
}

// writeSSE streams one `data: {...}\n\n` frame per chunk, followed by a
// terminating `data: [DONE]\n\n`, per spec §6.
func (s *Server) writeSSE(w http.ResponseWriter, model string, chunks <-chan *agent.ResponseChunk) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	writer := bufio.NewWriter(w)
	id := fmt.Sprintf("chatcmpl-%d", time.Now().UnixNano())
	created := time.Now().Unix()

	for chunk := range chunks {
		if chunk.Error != nil {
			writeSSEFrame(writer, chatCompletionChunk{
				ID: id, Object: "chat.completion.chunk", Created: created, Model: model,
				Choices: []chatCompletionChoice{{Delta: chatCompletionDeltaField{Content: fmt.Sprintf("error: %v", chunk.Error)}}},
			})
			break
		}
		if chunk.Text == "" {
			continue
		}
		writeSSEFrame(writer, chatCompletionChunk{
			ID: id, Object: "chat.completion.chunk", Created: created, Model: model,
			Choices: []chatCompletionChoice{{Delta: chatCompletionDeltaField{Content: chunk.Text}}},
		})
		if ok {
			writer.Flush()
			flusher.Flush()
		}
	}

	writer.WriteString("data: [DONE]\n\n")
	writer.Flush()
	if ok {
		flusher.Flush()
	}
}

func writeSSEFrame(w *bufio.Writer, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	w.WriteString("data: ")
	w.Write(data)
	w.WriteString("\n\n")
}
