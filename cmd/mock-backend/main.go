// Command mock-backend runs a Chat Completions stub with configurable
// latency and failure injection for exercising fallback chains locally.
//
// Configuration:
//
//	MOCK_PORT         - Listen port (default: 9090)
//	MOCK_LATENCY      - Fixed response delay, e.g. "250ms" (default: 0)
//	MOCK_FAILURE_RATE - Fraction of requests answered 503, 0..1 (default: 0)
//	MOCK_MODEL        - Model name echoed in responses (default: "mock-model")
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"
)

func main() {
	port := envOrDefault("MOCK_PORT", "9090")
	model := envOrDefault("MOCK_MODEL", "mock-model")

	var latency time.Duration
	if v := os.Getenv("MOCK_LATENCY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			slog.Error("invalid MOCK_LATENCY", "value", v, "error", err)
			os.Exit(1)
		}
		latency = d
	}

	var failureRate float64
	if v := os.Getenv("MOCK_FAILURE_RATE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 1 {
			slog.Error("invalid MOCK_FAILURE_RATE", "value", v)
			os.Exit(1)
		}
		failureRate = f
	}

	h := &handler{model: model, latency: latency, failureRate: failureRate}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", h.chatCompletions)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})

	srv := &http.Server{Addr: ":" + port, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("mock backend starting",
			"port", port, "latency", latency, "failure_rate", failureRate)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("mock backend failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("mock backend shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

type handler struct {
	model       string
	latency     time.Duration
	failureRate float64
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Index        int     `json:"index"`
	Message      chatMsg `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type chatMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (h *handler) chatCompletions(w http.ResponseWriter, r *http.Request) {
	if h.failureRate > 0 && rand.Float64() < h.failureRate {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"message": "injected failure",
				"type":    "server_error",
			},
		})
		return
	}

	if h.latency > 0 {
		select {
		case <-time.After(h.latency):
		case <-r.Context().Done():
			return
		}
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	prompt := ""
	if len(req.Messages) > 0 {
		prompt = req.Messages[len(req.Messages)-1].Content
	}
	model := req.Model
	if model == "" {
		model = h.model
	}

	reply := fmt.Sprintf("mock answer to: %s", prompt)
	resp := chatResponse{
		ID:     fmt.Sprintf("chatcmpl-mock-%d", time.Now().UnixNano()),
		Object: "chat.completion",
		Model:  model,
		Choices: []chatChoice{
			{Message: chatMsg{Role: "assistant", Content: reply}, FinishReason: "stop"},
		},
		Usage: chatUsage{
			PromptTokens:     len(strings.Fields(prompt)),
			CompletionTokens: len(strings.Fields(reply)),
			TotalTokens:      len(strings.Fields(prompt)) + len(strings.Fields(reply)),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
