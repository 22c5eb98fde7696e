package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/gyaneshwarpardhi/tokenstream/internal/config"
	"github.com/gyaneshwarpardhi/tokenstream/internal/engine"
	"github.com/gyaneshwarpardhi/tokenstream/internal/metrics"
)

const maxBatchSize = 100

// Queue reports how full the event dispatcher is.
type Queue interface {
	QueueUtilization() float64
}

// Options configure the HTTP surface. Only Engine is required.
type Options struct {
	Engine  *engine.Engine
	Loader  *config.Loader
	Queue   Queue
	Limiter *rate.Limiter
	// Dev enables the ledger, vault and oracle controls under /v1/dev.
	Dev *Dev
}

// Handler holds all HTTP handler dependencies.
type Handler struct {
	eng    *engine.Engine
	loader *config.Loader
	queue  Queue
	dev    *Dev
	mux    *http.ServeMux
}

// New creates an HTTP handler and registers all routes.
func New(opts Options) http.Handler {
	h := &Handler{eng: opts.Engine, loader: opts.Loader, queue: opts.Queue, dev: opts.Dev, mux: http.NewServeMux()}

	h.mux.HandleFunc("POST /v1/streams", h.createStream)
	h.mux.HandleFunc("POST /v1/streams/milestones", h.createMilestoneStream)
	h.mux.HandleFunc("POST /v1/streams/usd", h.createUSDStream)
	h.mux.HandleFunc("POST /v1/streams/batch", h.createBatch)
	h.mux.HandleFunc("GET /v1/streams/{id}", h.getStream)
	h.mux.HandleFunc("GET /v1/streams/{id}/receipt", h.getReceipt)
	h.mux.HandleFunc("GET /v1/streams/{id}/receipt/metadata", h.getReceiptMetadata)
	h.mux.HandleFunc("GET /v1/streams/{id}/voting-power", h.getVotingPower)
	h.mux.HandleFunc("POST /v1/streams/{id}/withdraw", h.withdraw)
	h.mux.HandleFunc("POST /v1/streams/{id}/cancel", h.cancel)
	h.mux.HandleFunc("POST /v1/streams/{id}/pause", h.pause)
	h.mux.HandleFunc("POST /v1/streams/{id}/unpause", h.unpause)
	h.mux.HandleFunc("POST /v1/streams/{id}/top-up", h.topUp)
	h.mux.HandleFunc("POST /v1/streams/{id}/receiver", h.transferReceiver)
	h.mux.HandleFunc("POST /v1/streams/{id}/receipt/transfer", h.transferReceipt)
	h.mux.HandleFunc("POST /v1/streams/{id}/delegate", h.delegate)
	h.mux.HandleFunc("POST /v1/streams/{id}/arbiter", h.setArbiter)
	h.mux.HandleFunc("POST /v1/streams/{id}/freeze", h.freeze)
	h.mux.HandleFunc("POST /v1/streams/{id}/unfreeze", h.unfreeze)
	h.mux.HandleFunc("POST /v1/streams/{id}/resolve", h.resolveDispute)
	h.mux.HandleFunc("POST /v1/streams/{id}/clawback", h.clawback)

	h.mux.HandleFunc("POST /v1/proposals", h.createProposal)
	h.mux.HandleFunc("GET /v1/proposals/{id}", h.getProposal)
	h.mux.HandleFunc("POST /v1/proposals/{id}/approve", h.approveProposal)

	h.mux.HandleFunc("GET /v1/policy", h.getPolicy)
	h.mux.HandleFunc("POST /v1/config/reload", h.reloadConfig)
	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.HandleFunc("GET /readyz", h.readyz)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	if h.dev != nil {
		h.dev.register(h.mux)
	}

	return loggingMiddleware(rateLimitMiddleware(opts.Limiter, principalMiddleware(h.mux)))
}

// decode reads a JSON body into v, writing a 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return false
	}
	return true
}

// pathID parses the {id} path segment, writing a 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid id %q", r.PathValue("id")))
		return 0, false
	}
	return id, true
}

// GET /v1/policy: the policy currently enforced.
func (h *Handler) getPolicy(w http.ResponseWriter, r *http.Request) {
	p := h.eng.Policy()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"treasury":       p.Treasury,
		"fee_bps":        p.FeeBps,
		"halted":         p.Halted,
		"allowed_tokens": p.AllowedTokens,
		"restricted":     p.Restricted,
	})
}

// POST /v1/config/reload: re-read the config file and apply the policy.
func (h *Handler) reloadConfig(w http.ResponseWriter, r *http.Request) {
	if h.loader == nil {
		writeError(w, http.StatusNotFound, "config reload is not available")
		return
	}
	cfg, err := h.loader.Reload()
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reloaded": true,
		"version":  cfg.Version,
	})
}

// GET /healthz: always 200 (liveness probe).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz: 503 if event queue >80% full.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	var util float64
	if h.queue != nil {
		util = h.queue.QueueUtilization()
	}
	metrics.QueueUtilization.Set(util)
	if util > 0.8 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":            "overloaded",
			"queue_utilization": util,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":            "ready",
		"queue_utilization": util,
		"halted":            h.eng.Policy().Halted,
	})
}
