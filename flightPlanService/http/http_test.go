package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tanmay-xvx/controller-relay/flightPlanService"
	"github.com/tanmay-xvx/controller-relay/internals/models"
)

// mockProxy is a mock implementation for testing
type mockProxy struct {
	resp   *flightPlanService.Response
	err    error
	filter flightPlanService.SearchFilter
	id     string
}

func (m *mockProxy) Search(ctx context.Context, filter flightPlanService.SearchFilter) (*flightPlanService.Response, error) {
	m.filter = filter
	return m.resp, m.err
}

func (m *mockProxy) Get(ctx context.Context, id string) (*flightPlanService.Response, error) {
	m.id = id
	return m.resp, m.err
}

func serve(proxy *mockProxy, target string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	RegisterFlightPlanRoutes(r, proxy, nil)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestSearch(t *testing.T) {
	proxy := &mockProxy{resp: &flightPlanService.Response{StatusCode: http.StatusOK, Body: []byte(`{"items":[{"id":"1"}]}`)}}

	rec := serve(proxy, "/api/flight_plans?cid=42&callsign=DAL1&limit=10&page=3&sort=asc")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, `{"items":[{"id":"1"}]}`, rec.Body.String())
	assert.Equal(t, flightPlanService.SearchFilter{CID: "42", Callsign: "DAL1", Limit: "10", Page: "3"}, proxy.filter)
}

func TestSearch_Errors(t *testing.T) {
	tests := []struct {
		name  string
		proxy *mockProxy
		code  int
	}{
		{"upstream status mirrored", &mockProxy{resp: &flightPlanService.Response{StatusCode: http.StatusBadGateway}}, http.StatusBadGateway},
		{"transport failure", &mockProxy{err: errors.New("dial tcp: refused")}, http.StatusInternalServerError},
		{"body not JSON", &mockProxy{resp: &flightPlanService.Response{StatusCode: http.StatusOK, Body: []byte("<html>")}}, http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(tc.proxy, "/api/flight_plans")
			assert.Equal(t, tc.code, rec.Code)
			assert.Equal(t, "Failed to fetch flight plans", decodeError(t, rec))
		})
	}
}

func TestGet(t *testing.T) {
	proxy := &mockProxy{resp: &flightPlanService.Response{StatusCode: http.StatusOK, Body: []byte(`{"id":"fp-1"}`)}}

	rec := serve(proxy, "/api/flight_plans/fp-1")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":"fp-1"}`, rec.Body.String())
	assert.Equal(t, "fp-1", proxy.id)
}

func TestUpstreamSuccessStatusIsForwarded(t *testing.T) {
	tests := []struct {
		name   string
		target string
		resp   *flightPlanService.Response
		body   string
	}{
		{"search created", "/api/flight_plans", &flightPlanService.Response{StatusCode: http.StatusCreated, Body: []byte(`[]`)}, `[]`},
		{"get accepted", "/api/flight_plans/fp-1", &flightPlanService.Response{StatusCode: http.StatusAccepted, Body: []byte(`{"id":"fp-1"}`)}, `{"id":"fp-1"}`},
		{"search no content", "/api/flight_plans", &flightPlanService.Response{StatusCode: http.StatusNoContent}, ``},
		{"get no content", "/api/flight_plans/fp-1", &flightPlanService.Response{StatusCode: http.StatusNoContent}, ``},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(&mockProxy{resp: tc.resp}, tc.target)
			assert.Equal(t, tc.resp.StatusCode, rec.Code)
			assert.Equal(t, tc.body, rec.Body.String())
		})
	}
}

func TestGet_Errors(t *testing.T) {
	tests := []struct {
		name  string
		proxy *mockProxy
		code  int
		msg   string
	}{
		{"not found", &mockProxy{resp: &flightPlanService.Response{StatusCode: http.StatusNotFound}}, http.StatusNotFound, "Flight plan not found"},
		{"upstream error mirrored", &mockProxy{resp: &flightPlanService.Response{StatusCode: http.StatusServiceUnavailable}}, http.StatusServiceUnavailable, "Flight plan not found"},
		{"transport failure", &mockProxy{err: errors.New("timeout")}, http.StatusInternalServerError, "Failed to fetch flight plan"},
		{"body not JSON", &mockProxy{resp: &flightPlanService.Response{StatusCode: http.StatusOK, Body: []byte("oops")}}, http.StatusInternalServerError, "Failed to fetch flight plan"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(tc.proxy, "/api/flight_plans/fp-9")
			assert.Equal(t, tc.code, rec.Code)
			assert.Equal(t, tc.msg, decodeError(t, rec))
		})
	}
}
