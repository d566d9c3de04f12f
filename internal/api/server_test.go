package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"tvatt-backend/internal/components/telemetry"
	"tvatt-backend/internal/laundry"
	"tvatt-backend/internal/scrapers/webboka"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	result   laundry.ScrapeResult
	err      error
	username string
	password string
	calls    int
}

func (f *fakeFetcher) Fetch(ctx context.Context, username, password string) (laundry.ScrapeResult, error) {
	f.calls++
	f.username = username
	f.password = password
	return f.result, f.err
}

func sampleResult() laundry.ScrapeResult {
	return laundry.ScrapeResult{
		{
			Name: "Tvättstuga 1",
			Machines: []laundry.Machine{
				{Name: "Tvättmaskin 1", Status: "Avslutades 11:50", State: laundry.StateRecentlyUsed},
			},
		},
	}
}

func newTestServer(fetcher Fetcher, origins ...string) *Server {
	return NewServer(fetcher, Options{AllowedOrigins: origins, Tel: &telemetry.Recorder{}})
}

func post(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/tvatt", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestStatusOK(t *testing.T) {
	fetcher := &fakeFetcher{result: sampleResult()}
	s := newTestServer(fetcher)

	rec := post(t, s, `{"username": "  anna ", "password": " hunter2"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	require.Equal(t, "anna", fetcher.username)
	require.Equal(t, " hunter2", fetcher.password)

	var result laundry.ScrapeResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	if diff := cmp.Diff(sampleResult(), result); diff != "" {
		t.Fatalf("unexpected body (-want +got):\n%s", diff)
	}
}

func TestStatusEmptyResultIsArray(t *testing.T) {
	for _, result := range []laundry.ScrapeResult{nil, {}} {
		s := newTestServer(&fakeFetcher{result: result})
		rec := post(t, s, `{"username": "anna", "password": "hunter2"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "[]\n", rec.Body.String())
	}
}

func TestStatusErrors(t *testing.T) {
	testCases := []struct {
		name     string
		body     string
		err      error
		status   int
		message  string
		reaching bool
	}{
		{
			name:    "malformed json",
			body:    `{"username":`,
			status:  http.StatusBadRequest,
			message: "Invalid request body",
		},
		{
			name:    "missing password",
			body:    `{"username": "anna"}`,
			status:  http.StatusBadRequest,
			message: "Missing credentials",
		},
		{
			name:    "blank username",
			body:    `{"username": "   ", "password": "hunter2"}`,
			status:  http.StatusBadRequest,
			message: "Missing credentials",
		},
		{
			name:     "login failed",
			body:     `{"username": "anna", "password": "wrong"}`,
			err:      &webboka.AuthError{Kind: webboka.LoginFailed, Err: errors.New("credentials rejected")},
			status:   http.StatusUnauthorized,
			message:  "Login failed",
			reaching: true,
		},
		{
			name:     "wrapped login failure",
			body:     `{"username": "anna", "password": "wrong"}`,
			err:      fmt.Errorf("refresh session: %w", &webboka.AuthError{Kind: webboka.LoginFailed}),
			status:   http.StatusUnauthorized,
			message:  "Login failed",
			reaching: true,
		},
		{
			name:     "portal down",
			body:     `{"username": "anna", "password": "hunter2"}`,
			err:      &webboka.AuthError{Kind: webboka.BackendUnavailable, Err: errors.New("portal responded 503")},
			status:   http.StatusInternalServerError,
			message:  "booking portal unavailable: portal responded 503",
			reaching: true,
		},
		{
			name:     "scrape failure",
			body:     `{"username": "anna", "password": "hunter2"}`,
			err:      &webboka.ScrapeError{Err: errors.New("status page responded 302 Found")},
			status:   http.StatusInternalServerError,
			message:  "scrape failed: status page responded 302 Found",
			reaching: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fetcher := &fakeFetcher{err: tc.err}
			s := newTestServer(fetcher)

			rec := post(t, s, tc.body)
			require.Equal(t, tc.status, rec.Code)
			require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
			require.Equal(t, tc.message, decodeError(t, rec))
			if tc.reaching {
				require.Equal(t, 1, fetcher.calls)
			} else {
				require.Zero(t, fetcher.calls)
			}
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(&fakeFetcher{})

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		req := httptest.NewRequest(method, "/api/tvatt", nil)
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)

		require.Equal(t, http.StatusMethodNotAllowed, rec.Code, method)
		require.Equal(t, "Method Not Allowed", decodeError(t, rec))
		require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	}
}

func TestPreflight(t *testing.T) {
	s := newTestServer(&fakeFetcher{}, "https://tvatt.example.se")

	req := httptest.NewRequest(http.MethodOptions, "/api/tvatt", nil)
	req.Header.Set("Origin", "https://tvatt.example.se")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "https://tvatt.example.se", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, http.MethodPost, rec.Header().Get("Access-Control-Allow-Methods"))
	require.Contains(t, rec.Header().Values("Vary"), "Origin")
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestCorsOrigins(t *testing.T) {
	testCases := []struct {
		name     string
		allowed  []string
		origin   string
		expected string
	}{
		{name: "listed origin is echoed", allowed: []string{"https://a.example"}, origin: "https://a.example", expected: "https://a.example"},
		{name: "unlisted origin gets nothing", allowed: []string{"https://a.example"}, origin: "https://evil.example", expected: ""},
		{name: "empty list echoes any origin", origin: "https://b.example", expected: "https://b.example"},
		{name: "no origin header", allowed: []string{"https://a.example"}, expected: ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestServer(&fakeFetcher{result: sampleResult()}, tc.allowed...)

			req := httptest.NewRequest(http.MethodPost, "/api/tvatt", strings.NewReader(`{"username":"anna","password":"hunter2"}`))
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			rec := httptest.NewRecorder()
			s.ServeHTTP(rec, req)

			require.Equal(t, http.StatusOK, rec.Code)
			require.Equal(t, tc.expected, rec.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(&fakeFetcher{result: sampleResult()})
	post(t, s, `{"username":"anna","password":"hunter2"}`)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `tvatt_http_requests_total{method="POST",path="/api/tvatt",status="200"}`)
}
