package service

import (
	"context"
	"errors"
	"fmt"
	"time"
	"tvatt-backend/internal/cache"
	"tvatt-backend/internal/components/assert"
	"tvatt-backend/internal/components/metrics"
	"tvatt-backend/internal/components/telemetry"
	"tvatt-backend/internal/laundry"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"
)

var tracer = otel.Tracer("tvatt.service")

const (
	report_status_fetch = "status.fetch"
	report_status_retry = "status.retry"
	report_status_cache = "status.cache-hit"
)

// DefaultFetchTimeout bounds the login and scrape work shared by concurrent callers.
const DefaultFetchTimeout = 45 * time.Second

// ErrMissingCredentials is returned when the username or password is empty.
var ErrMissingCredentials = errors.New("missing credentials")

// Scraper reads the machine status page with a session cookie.
//
// note: fault injection point
type Scraper interface {
	Scrape(ctx context.Context, cookie string) (laundry.ScrapeResult, error)
}

type Options struct {
	// FetchTimeout bounds one login+scrape round, defaults to DefaultFetchTimeout.
	FetchTimeout time.Duration
	Tel          telemetry.API
}

// StatusService answers "what is the state of every machine I can see" for a user, reusing
// cached sessions and results where possible.
type StatusService struct {
	sessions     *cache.SessionStore
	results      *cache.ResultCache
	scraper      Scraper
	fingerprints cache.Fingerprinter
	fetchTimeout time.Duration
	group        singleflight.Group
	tel          telemetry.API
}

func NewStatusService(
	sessions *cache.SessionStore,
	results *cache.ResultCache,
	scraper Scraper,
	fingerprints cache.Fingerprinter,
	opts Options,
) *StatusService {
	assert.NotNil(sessions, "session store")
	assert.NotNil(results, "result cache")
	assert.NotNil(scraper, "scraper")

	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.Tel == nil {
		opts.Tel = telemetry.SlogAPI{}
	}

	return &StatusService{
		sessions:     sessions,
		results:      results,
		scraper:      scraper,
		fingerprints: fingerprints,
		fetchTimeout: opts.FetchTimeout,
		tel:          telemetry.NewScopedAPI("service", opts.Tel),
	}
}

// Fetch returns the classified machine groups visible to username.
//
// A fresh cached result is returned without touching the portal. Otherwise a cached (or new)
// session is used to scrape, and if that scrape fails the session is dropped and the login and
// scrape are tried exactly once more. Login errors are returned immediately.
//
// Concurrent calls for the same credentials share one round trip to the portal. The shared work
// is detached from ctx so one caller going away does not fail the others, but every caller
// still stops waiting when its own ctx is done.
func (s *StatusService) Fetch(ctx context.Context, username, password string) (laundry.ScrapeResult, error) {
	if username == "" || password == "" {
		return nil, ErrMissingCredentials
	}

	ctx, span := tracer.Start(ctx, "service:Fetch")
	defer span.End()

	fingerprint := s.fingerprints.Of(username, password)
	if cached, ok := s.results.Get(username, fingerprint); ok {
		span.SetAttributes(attribute.Bool("cached", true))
		s.tel.ReportDebug(report_status_cache, username)
		return cached, nil
	}

	ch := s.group.DoChan(username+"\x00"+fingerprint, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fetchTimeout)
		defer cancel()
		return s.fetch(fetchCtx, username, password, fingerprint)
	})

	select {
	case <-ctx.Done():
		span.RecordError(ctx.Err())
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, "fetch failed")
			s.tel.ReportWarning(report_status_fetch, username, res.Err)
			return nil, res.Err
		}
		return res.Val.(laundry.ScrapeResult), nil
	}
}

func (s *StatusService) fetch(ctx context.Context, username, password, fingerprint string) (laundry.ScrapeResult, error) {
	cookie, err := s.sessions.GetOrRefresh(ctx, username, password)
	if err != nil {
		return nil, err
	}

	data, err := s.scraper.Scrape(ctx, cookie)
	if err != nil {
		// the portal drops sessions on its own schedule, a failed scrape most often means the
		// cached cookie is no longer accepted
		metrics.FetchRetries.Inc()
		s.tel.ReportWarning(report_status_retry, username, err)

		s.sessions.InvalidateCookie(username, cookie)
		cookie, err = s.sessions.GetOrRefresh(ctx, username, password)
		if err != nil {
			return nil, err
		}
		data, err = s.scraper.Scrape(ctx, cookie)
		if err != nil {
			return nil, fmt.Errorf("scrape after re-login: %w", err)
		}
	}

	if data == nil {
		data = laundry.ScrapeResult{}
	}
	s.results.Put(username, fingerprint, data)
	return data, nil
}
