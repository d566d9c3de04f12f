package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"tvatt-backend/internal/components/assert"
	"tvatt-backend/internal/components/telemetry"
	"tvatt-backend/internal/laundry"
	"tvatt-backend/internal/scrapers/webboka"
	"tvatt-backend/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	report_api_fetch  = "api.fetch"
	report_api_encode = "api.encode"
)

// maxBodyBytes bounds the credentials payload.
const maxBodyBytes = 64 << 10

// Fetcher is the part of service.StatusService the API needs.
type Fetcher interface {
	Fetch(ctx context.Context, username, password string) (laundry.ScrapeResult, error)
}

type Options struct {
	// AllowedOrigins lists the origins allowed to call the API from a browser. When empty every
	// origin that sends an Origin header is allowed.
	AllowedOrigins []string
	Tel            telemetry.API
}

type Server struct {
	router  *chi.Mux
	fetcher Fetcher
	origins map[string]struct{}
	tel     telemetry.API
}

func NewServer(fetcher Fetcher, opts Options) *Server {
	assert.NotNil(fetcher, "fetcher")
	if opts.Tel == nil {
		opts.Tel = telemetry.SlogAPI{}
	}

	origins := make(map[string]struct{}, len(opts.AllowedOrigins))
	for _, origin := range opts.AllowedOrigins {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			origins[origin] = struct{}{}
		}
	}

	s := &Server{
		router:  chi.NewRouter(),
		fetcher: fetcher,
		origins: origins,
		tel:     telemetry.NewScopedAPI("api", opts.Tel),
	}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(MetricsMiddleware)
	s.router.Use(middleware.SetHeader("Cache-Control", "no-store"))
	s.router.Use(cors.Handler(cors.Options{
		AllowOriginFunc:    s.allowOrigin,
		AllowedMethods:     []string{http.MethodPost, http.MethodOptions},
		AllowedHeaders:     []string{"Content-Type"},
		OptionsPassthrough: true,
	}))

	s.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})
	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not Found")
	})

	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/metrics", promhttp.Handler().ServeHTTP)

	s.router.Post("/api/tvatt", s.handleStatus)
	s.router.Options("/api/tvatt", s.handlePreflight)
}

func (s *Server) allowOrigin(_ *http.Request, origin string) bool {
	if len(s.origins) == 0 {
		return true
	}
	_, ok := s.origins[origin]
	return ok
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handlePreflight(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

type statusRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Missing credentials")
		return
	}

	result, err := s.fetcher.Fetch(r.Context(), username, req.Password)
	switch {
	case err == nil:
	case errors.Is(err, webboka.ErrLoginFailed):
		writeError(w, http.StatusUnauthorized, "Login failed")
		return
	case errors.Is(err, service.ErrMissingCredentials):
		writeError(w, http.StatusBadRequest, "Missing credentials")
		return
	default:
		s.tel.ReportBroken(report_api_fetch, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if result == nil {
		result = laundry.ScrapeResult{}
	}
	if err := writeJSON(w, http.StatusOK, result); err != nil {
		s.tel.ReportWarning(report_api_encode, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
