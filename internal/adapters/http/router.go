package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/vmaslov/safety-docs-qa/internal/core/domain"
	"github.com/vmaslov/safety-docs-qa/internal/core/ports"
	"github.com/vmaslov/safety-docs-qa/internal/observability/metrics"
)

const serviceName = "api"

type RouterConfig struct {
	RateLimitRPS   float64
	RateLimitBurst int
	MaxInFlight    int
}

type Router struct {
	askUC   ports.QuestionAnswerer
	metrics *metrics.ServerMetrics
	cfg     RouterConfig
}

func NewRouter(askUC ports.QuestionAnswerer, m *metrics.ServerMetrics, cfg RouterConfig) *Router {
	return &Router{
		askUC:   askUC,
		metrics: m,
		cfg:     cfg,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/ask", rt.ask)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = backpressureMiddleware(handler, rt.cfg.MaxInFlight, 100*time.Millisecond)
	handler = rateLimitMiddleware(handler, rt.cfg.RateLimitRPS, rt.cfg.RateLimitBurst)
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) ask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Q    string `json:"q"`
		K    int    `json:"k"`
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Q) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "q is required"})
		return
	}

	// Mode is rejected before any retrieval work happens.
	mode, err := domain.ParseMode(req.Mode)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "mode must be 'baseline' or 'reranked'"})
		return
	}

	start := time.Now()
	resp, err := rt.askUC.Ask(r.Context(), req.Q, req.K, mode)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}

	rt.recordAsk(string(mode), resp, time.Since(start))
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) recordAsk(mode string, resp *domain.AnswerResponse, duration time.Duration) {
	if rt.metrics == nil {
		return
	}

	var reason string
	if resp.AbstainReason != nil {
		reason = "below_threshold"
		if len(resp.Contexts) == 0 {
			reason = "no_candidates"
		}
	}

	var topScore float64
	if len(resp.Contexts) > 0 {
		topScore = resp.Contexts[0].Score
	}
	rt.metrics.RecordAsk(serviceName, mode, len(resp.Contexts), topScore, reason, duration)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
