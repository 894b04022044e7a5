package flightPlanService

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/tanmay-xvx/controller-relay/internals/config"
	"github.com/tanmay-xvx/controller-relay/internals/logging"
)

// maxBodySize caps how much of an upstream answer is buffered.
const maxBodySize = 8 << 20

// Service implements FlightPlanProxy over HTTP.
type Service struct {
	client  *http.Client
	baseURL string
	logger  *slog.Logger
}

// NewFlightPlanService creates a proxy for cfg.FlightPlanAPIURL. A nil client
// gets one with cfg.UpstreamTimeout.
func NewFlightPlanService(cfg *config.Config, client *http.Client, logger *slog.Logger) *Service {
	if client == nil {
		client = &http.Client{Timeout: cfg.UpstreamTimeout}
	}

	return &Service{
		client:  client,
		baseURL: strings.TrimRight(cfg.FlightPlanAPIURL, "/"),
		logger:  logging.Component(logger, "flight-plans"),
	}
}

// Search forwards cid, callsign, limit and page when they are set.
func (s *Service) Search(ctx context.Context, filter SearchFilter) (*Response, error) {
	q := url.Values{}
	setIf(q, "cid", filter.CID)
	setIf(q, "callsign", filter.Callsign)
	setIf(q, "limit", filter.Limit)
	setIf(q, "page", filter.Page)

	target := s.baseURL
	if len(q) > 0 {
		target += "?" + q.Encode()
	}
	return s.get(ctx, target)
}

// Get fetches the flight plan with the given id.
func (s *Service) Get(ctx context.Context, id string) (*Response, error) {
	return s.get(ctx, s.baseURL+"/"+url.PathEscape(id))
}

func (s *Service) get(ctx context.Context, target string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("flight plan request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read flight plan response: %w", err)
	}

	s.logger.Debug("upstream answered", "url", target, "status", resp.StatusCode, "bytes", len(body))
	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}

func setIf(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}
