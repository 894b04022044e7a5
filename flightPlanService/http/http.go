// Package http provides HTTP handlers for the flight plan proxy.
package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/tidwall/gjson"

	"github.com/tanmay-xvx/controller-relay/flightPlanService"
	"github.com/tanmay-xvx/controller-relay/internals/logging"
	"github.com/tanmay-xvx/controller-relay/internals/models"
)

const (
	errSearchFailed = "Failed to fetch flight plans"
	errNotFound     = "Flight plan not found"
	errFetchFailed  = "Failed to fetch flight plan"
)

// Handler relays flight plan requests to the upstream API.
type Handler struct {
	proxy  flightPlanService.FlightPlanProxy
	logger *slog.Logger
}

// NewHandler creates a new HTTP handler with the specified proxy.
func NewHandler(proxy flightPlanService.FlightPlanProxy, logger *slog.Logger) *Handler {
	return &Handler{
		proxy:  proxy,
		logger: logging.Component(logger, "flight-plans-http"),
	}
}

// RegisterFlightPlanRoutes registers the flight plan routes with the chi router:
//   - GET /api/flight_plans      - search, forwarding cid, callsign, limit and page
//   - GET /api/flight_plans/{id} - fetch one flight plan
func RegisterFlightPlanRoutes(r chi.Router, proxy flightPlanService.FlightPlanProxy, logger *slog.Logger) {
	h := NewHandler(proxy, logger)
	r.Route("/api/flight_plans", func(r chi.Router) {
		r.Get("/", h.Search)
		r.Get("/{id}", h.Get)
	})
}

// Search handles GET /api/flight_plans requests.
// Upstream errors are answered with the upstream status.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resp, err := h.proxy.Search(r.Context(), flightPlanService.SearchFilter{
		CID:      q.Get("cid"),
		Callsign: q.Get("callsign"),
		Limit:    q.Get("limit"),
		Page:     q.Get("page"),
	})
	h.relay(w, resp, err, errSearchFailed, errSearchFailed)
}

// Get handles GET /api/flight_plans/{id} requests.
// Returns the upstream status with "Flight plan not found" when the upstream fails.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	resp, err := h.proxy.Get(r.Context(), chi.URLParam(r, "id"))
	h.relay(w, resp, err, errNotFound, errFetchFailed)
}

// relay writes a 2xx answer verbatim with the upstream status; an empty body is
// passed through without a content type. A non-2xx answer mirrors the status
// with upstreamMsg; transport failures and non-JSON bodies are a 500 with failMsg.
func (h *Handler) relay(w http.ResponseWriter, resp *flightPlanService.Response, err error, upstreamMsg, failMsg string) {
	switch {
	case err != nil:
		h.logger.Error("flight plan request failed", logging.Error(err))
		writeError(w, http.StatusInternalServerError, failMsg)
	case !resp.OK():
		writeError(w, resp.StatusCode, upstreamMsg)
	case len(resp.Body) == 0:
		w.WriteHeader(resp.StatusCode)
	case !gjson.ValidBytes(resp.Body):
		h.logger.Error("flight plan response is not JSON", "status", resp.StatusCode)
		writeError(w, http.StatusInternalServerError, failMsg)
	default:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.StatusCode)
		w.Write(resp.Body)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(models.ErrorResponse{Error: msg})
}
