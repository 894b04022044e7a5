// Package flightPlanService proxies flight plan lookups to the flight plan manager API.
package flightPlanService

import (
	"context"
)

// SearchFilter holds the query parameters forwarded on a flight plan search.
// Empty fields are not forwarded.
type SearchFilter struct {
	CID      string
	Callsign string
	Limit    string
	Page     string
}

// Response is an upstream answer relayed as-is.
type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports whether the upstream answered with a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode <= 299
}

// FlightPlanProxy defines the interface for the flight plan passthrough.
type FlightPlanProxy interface {
	// Search forwards a filtered list request.
	Search(ctx context.Context, filter SearchFilter) (*Response, error)

	// Get fetches a single flight plan by id.
	Get(ctx context.Context, id string) (*Response, error)
}
