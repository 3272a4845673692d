package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"
)

type inferenceRequest struct {
	Inputs string `json:"inputs"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
}

// capturedRequest is one prompt as reported by /requests. CallIndex counts
// from 1 per model.
type capturedRequest struct {
	Model     string `json:"model"`
	Prompt    string `json:"prompt"`
	CallIndex int    `json:"call_index"`
	Timestamp int64  `json:"timestamp"`
}

type options struct {
	// failFirst answers the first N calls per model with 503.
	failFirst int
	// rejectKeys are bearer keys answered with 401.
	rejectKeys map[string]bool
}

type server struct {
	fixtures map[string][]string
	opts     options
	logger   *slog.Logger

	mu       sync.Mutex
	total    int64
	requests map[string][]capturedRequest
}

func newServer(fixtures map[string][]string, opts options, logger *slog.Logger) *server {
	return &server{
		fixtures: fixtures,
		opts:     opts,
		logger:   logger,
		requests: make(map[string][]capturedRequest),
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("POST /models/{model...}", s.handleInference)
	mux.HandleFunc("POST /v1/chat/completions", s.handleChat)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /requests", s.handleRequests)
	return mux
}

func parseKeys(s string) map[string]bool {
	keys := make(map[string]bool)
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys[k] = true
		}
	}
	return keys
}

// handleInference answers POST /models/{model} with [{"generated_text"}].
func (s *server) handleInference(w http.ResponseWriter, r *http.Request) {
	var req inferenceRequest
	if !decode(w, r, &req) {
		return
	}
	if reply, ok := s.reply(w, r, r.PathValue("model"), req.Inputs); ok {
		writeJSON(w, []map[string]string{{"generated_text": reply}})
	}
}

func (s *server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decode(w, r, &req) {
		return
	}
	prompts := make([]string, 0, len(req.Messages))
	for _, m := range req.Messages {
		prompts = append(prompts, m.Content)
	}

	reply, ok := s.reply(w, r, req.Model, strings.Join(prompts, "\n"))
	if !ok {
		return
	}
	now := time.Now()
	writeJSON(w, chatResponse{
		ID:      "mock-" + strconv.FormatInt(now.UnixNano(), 36),
		Object:  "chat.completion",
		Created: now.Unix(),
		Model:   req.Model,
		Choices: []chatChoice{{Message: chatMessage{Role: "assistant", Content: reply}, FinishReason: "stop"}},
	})
}

// reply picks the next fixture for model, or writes the scripted error
// response and returns false.
func (s *server) reply(w http.ResponseWriter, r *http.Request, model, prompt string) (string, bool) {
	key := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if s.opts.rejectKeys[key] {
		s.countMiss()
		s.logger.Info("Rejected key", "model", model)
		http.Error(w, `{"error":"invalid credentials"}`, http.StatusUnauthorized)
		return "", false
	}

	name, seq, ok := s.lookup(model)
	if !ok {
		s.countMiss()
		s.logger.Warn("No fixture for model", "model", model)
		http.Error(w, fmt.Sprintf("no fixture for model %q", model), http.StatusNotFound)
		return "", false
	}

	n := s.record(name, prompt)
	if n <= s.opts.failFirst {
		s.logger.Info("Scripted failure", "model", name, "call_index", n)
		http.Error(w, `{"error":"model is loading"}`, http.StatusServiceUnavailable)
		return "", false
	}

	i := min(n-s.opts.failFirst, len(seq)) - 1
	s.logger.Info("Serving fixture", "model", name, "call_index", n, "bytes", len(seq[i]))
	return seq[i], true
}

func (s *server) countMiss() {
	s.mu.Lock()
	s.total++
	s.mu.Unlock()
}

// record captures a call and returns its 1-based index for model.
func (s *server) record(model, prompt string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	n := len(s.requests[model]) + 1
	s.requests[model] = append(s.requests[model], capturedRequest{
		Model:     model,
		Prompt:    prompt,
		CallIndex: n,
		Timestamp: time.Now().UnixMilli(),
	})
	return n
}

// lookup tries the model id as given, its last path segment (org/model ids),
// and both without a "mock-" prefix.
func (s *server) lookup(model string) (string, []string, bool) {
	base := path.Base(model)
	for _, c := range []string{model, base, strings.TrimPrefix(model, "mock-"), strings.TrimPrefix(base, "mock-")} {
		if seq, ok := s.fixtures[c]; ok && len(seq) > 0 {
			return c, seq, true
		}
	}
	return "", nil, false
}

func (s *server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	byModel := make(map[string]int, len(s.requests))
	for model, reqs := range s.requests {
		byModel[model] = len(reqs)
	}
	total := s.total
	s.mu.Unlock()

	writeJSON(w, map[string]any{"total_calls": total, "calls_by_model": byModel})
}

// handleRequests lists captured prompts, filtered by ?model= and ?call=.
func (s *server) handleRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	call, callErr := strconv.Atoi(q.Get("call"))

	out := make(map[string][]capturedRequest)
	s.mu.Lock()
	for model, reqs := range s.requests {
		if m := q.Get("model"); m != "" && m != model {
			continue
		}
		for _, req := range reqs {
			if callErr == nil && req.CallIndex != call {
				continue
			}
			out[model] = append(out[model], req)
		}
	}
	s.mu.Unlock()

	writeJSON(w, map[string]any{"requests_by_model": out})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
