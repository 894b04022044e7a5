// Package http provides HTTP handlers for the relay service.
package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tanmay-xvx/controller-relay/internals/config"
	"github.com/tanmay-xvx/controller-relay/internals/logging"
	"github.com/tanmay-xvx/controller-relay/internals/models"
	"github.com/tanmay-xvx/controller-relay/relayService"
)

// Handler serves the event streams and the relay's operational endpoints.
type Handler struct {
	svc      relayService.RelayService
	cfg      *config.Config
	logger   *slog.Logger
	metrics  http.Handler
	upgrader websocket.Upgrader
}

// NewHandler creates a handler for svc. Prometheus metrics are served from
// gatherer; a nil gatherer serves the default registry.
func NewHandler(svc relayService.RelayService, cfg *config.Config, logger *slog.Logger, gatherer prometheus.Gatherer) *Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	return &Handler{
		svc:     svc,
		cfg:     cfg,
		logger:  logging.Component(logger, "relay-http"),
		metrics: promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// RegisterRoutes registers the relay routes with the chi router:
//   - GET /api/events     - Server-Sent Events stream
//   - GET /api/events/ws  - WebSocket stream
//   - GET /health         - liveness and connection state
//   - GET /stats          - relay counters as JSON
//   - GET /metrics        - Prometheus exposition
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/events", h.Events)
	r.Get("/api/events/ws", h.EventsWS)

	r.Get("/health", h.Health)
	r.Get("/stats", h.Stats)
	r.Method(http.MethodGet, "/metrics", h.metrics)
}

// RegisterRelayRoutes creates a handler for svc and registers its routes.
func RegisterRelayRoutes(r chi.Router, svc relayService.RelayService, cfg *config.Config, logger *slog.Logger, gatherer prometheus.Gatherer) {
	NewHandler(svc, cfg, logger, gatherer).RegisterRoutes(r)
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status        string `json:"status"`
	State         string `json:"state"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Subscribers   int    `json:"subscribers"`
	HistorySize   int    `json:"history_size"`
	Timestamp     string `json:"timestamp"`
}

// Health handles GET /health requests.
// Returns 503 Service Unavailable while the relay is shutting down.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	stats := h.svc.Stats()

	status, code := "ok", http.StatusOK
	if h.svc.State() == relayService.ShuttingDown {
		status, code = "shutting_down", http.StatusServiceUnavailable
	}

	writeJSON(w, code, HealthResponse{
		Status:        status,
		State:         stats.State,
		UptimeSeconds: stats.UptimeSeconds,
		Subscribers:   stats.Subscribers,
		HistorySize:   stats.HistorySize,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	})
}

// Stats handles GET /stats requests.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Stats())
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg, detail string) {
	writeJSON(w, code, models.ErrorResponse{
		Error:   msg,
		Message: detail,
		Code:    code,
	})
}
