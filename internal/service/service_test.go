package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
	"tvatt-backend/internal/cache"
	"tvatt-backend/internal/components/chrono"
	"tvatt-backend/internal/components/telemetry"
	"tvatt-backend/internal/laundry"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type fakeAuth struct {
	mutex sync.Mutex
	calls int
	errs  []error
}

func (f *fakeAuth) Login(ctx context.Context, username, password string) (string, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return "", err
		}
	}
	return "RCARDM5WebBoka=" + password, nil
}

func (f *fakeAuth) Calls() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.calls
}

type fakeScraper struct {
	mutex   sync.Mutex
	calls   int
	errs    []error
	release chan struct{}
	data    laundry.ScrapeResult
	// before runs once, ahead of the first scrape
	before func()
}

func (f *fakeScraper) Scrape(ctx context.Context, cookie string) (laundry.ScrapeResult, error) {
	if f.release != nil {
		<-f.release
	}

	f.mutex.Lock()
	before := f.before
	f.before = nil
	f.mutex.Unlock()
	if before != nil {
		before()
	}

	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.data, nil
}

func (f *fakeScraper) Calls() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.calls
}

var (
	errScrape = errors.New("scrape failed")
	errLogin  = errors.New("login failed")
)

func sampleResult() laundry.ScrapeResult {
	return laundry.ScrapeResult{
		{
			Name: "Tvättstuga 1",
			Machines: []laundry.Machine{
				{Name: "Tvättmaskin 1", Status: "Avslutades 11:50", State: laundry.StateRecentlyUsed},
				{Name: "Tvättmaskin 2 Ej ledig", Status: "", State: laundry.StateNotBookable},
			},
		},
	}
}

type harness struct {
	service  *StatusService
	auth     *fakeAuth
	scraper  *fakeScraper
	clock    *chrono.FixedImpl
	sessions *cache.SessionStore
	results  *cache.ResultCache
	tel      *telemetry.Recorder
}

func newHarness(t *testing.T, auth *fakeAuth, scraper *fakeScraper) harness {
	clock := chrono.NewFixedImpl(time.Date(2024, 10, 5, 12, 0, 0, 0, time.UTC))
	tel := &telemetry.Recorder{}

	fingerprints, err := cache.NewFingerprinter()
	require.NoError(t, err)
	sessions, err := cache.NewSessionStore(auth, fingerprints, cache.Options{Clock: clock, Tel: tel})
	require.NoError(t, err)
	results, err := cache.NewResultCache(cache.Options{Clock: clock, Tel: tel})
	require.NoError(t, err)

	if scraper.data == nil {
		scraper.data = sampleResult()
	}

	return harness{
		service:  NewStatusService(sessions, results, scraper, fingerprints, Options{Tel: tel}),
		auth:     auth,
		scraper:  scraper,
		clock:    clock,
		sessions: sessions,
		results:  results,
		tel:      tel,
	}
}

func TestFetch(t *testing.T) {
	h := newHarness(t, &fakeAuth{}, &fakeScraper{})

	result, err := h.service.Fetch(context.Background(), "anna", "hunter2")
	require.NoError(t, err)
	if diff := cmp.Diff(sampleResult(), result); diff != "" {
		t.Fatalf("unexpected result (-want +got):\n%s", diff)
	}
	require.Equal(t, 1, h.auth.Calls())
	require.Equal(t, 1, h.scraper.Calls())
	require.Equal(t, 1, h.results.Len())
}

func TestFetchUsesResultCache(t *testing.T) {
	h := newHarness(t, &fakeAuth{}, &fakeScraper{})

	_, err := h.service.Fetch(context.Background(), "anna", "hunter2")
	require.NoError(t, err)

	h.clock.Advance(5 * time.Second)
	result, err := h.service.Fetch(context.Background(), "anna", "hunter2")
	require.NoError(t, err)
	require.Equal(t, sampleResult(), result)
	require.Equal(t, 1, h.auth.Calls())
	require.Equal(t, 1, h.scraper.Calls())

	// past the result TTL the cached session is reused for a new scrape
	h.clock.Advance(10 * time.Second)
	_, err = h.service.Fetch(context.Background(), "anna", "hunter2")
	require.NoError(t, err)
	require.Equal(t, 1, h.auth.Calls())
	require.Equal(t, 2, h.scraper.Calls())
}

func TestFetchOtherPasswordMissesCache(t *testing.T) {
	h := newHarness(t, &fakeAuth{}, &fakeScraper{})

	_, err := h.service.Fetch(context.Background(), "anna", "hunter2")
	require.NoError(t, err)
	_, err = h.service.Fetch(context.Background(), "anna", "guess")
	require.NoError(t, err)

	require.Equal(t, 2, h.auth.Calls())
	require.Equal(t, 2, h.scraper.Calls())
}

func TestFetchMissingCredentials(t *testing.T) {
	h := newHarness(t, &fakeAuth{}, &fakeScraper{})

	_, err := h.service.Fetch(context.Background(), "", "hunter2")
	require.ErrorIs(t, err, ErrMissingCredentials)
	_, err = h.service.Fetch(context.Background(), "anna", "")
	require.ErrorIs(t, err, ErrMissingCredentials)
	require.Zero(t, h.auth.Calls())
}

func TestFetchRetry(t *testing.T) {
	testCases := []struct {
		name         string
		authErrs     []error
		scrapeErrs   []error
		expectErr    error
		authCalls    int
		scraperCalls int
	}{
		{
			name:         "login error propagates without scraping",
			authErrs:     []error{errLogin},
			expectErr:    errLogin,
			authCalls:    1,
			scraperCalls: 0,
		},
		{
			name:         "stale session recovers after one re-login",
			scrapeErrs:   []error{errScrape},
			authCalls:    2,
			scraperCalls: 2,
		},
		{
			name:         "second scrape failure is terminal",
			scrapeErrs:   []error{errScrape, errScrape},
			expectErr:    errScrape,
			authCalls:    2,
			scraperCalls: 2,
		},
		{
			name:         "re-login failure is terminal",
			authErrs:     []error{nil, errLogin},
			scrapeErrs:   []error{errScrape},
			expectErr:    errLogin,
			authCalls:    2,
			scraperCalls: 1,
		},
		{
			name:         "every call fails",
			scrapeErrs:   []error{errScrape, errScrape, errScrape, errScrape},
			expectErr:    errScrape,
			authCalls:    2,
			scraperCalls: 2,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, &fakeAuth{errs: tc.authErrs}, &fakeScraper{errs: tc.scrapeErrs})

			result, err := h.service.Fetch(context.Background(), "anna", "hunter2")
			if tc.expectErr != nil {
				require.ErrorIs(t, err, tc.expectErr)
				require.Nil(t, result)
				require.Zero(t, h.results.Len())
			} else {
				require.NoError(t, err)
				require.Equal(t, sampleResult(), result)
			}
			require.Equal(t, tc.authCalls, h.auth.Calls())
			require.Equal(t, tc.scraperCalls, h.scraper.Calls())
		})
	}
}

func TestFetchRetryUsesCachedSessionFirst(t *testing.T) {
	h := newHarness(t, &fakeAuth{}, &fakeScraper{})

	_, err := h.service.Fetch(context.Background(), "anna", "hunter2")
	require.NoError(t, err)
	require.Equal(t, 1, h.auth.Calls())

	// the cached session goes stale on the portal side
	h.clock.Advance(time.Minute)
	h.scraper.errs = []error{errScrape}

	_, err = h.service.Fetch(context.Background(), "anna", "hunter2")
	require.NoError(t, err)
	require.Equal(t, 2, h.auth.Calls())
	require.Equal(t, 3, h.scraper.Calls())
	require.NotEmpty(t, h.tel.Reports("warning"))
}

func TestFetchRetryKeepsSessionOfOtherPassword(t *testing.T) {
	auth := &fakeAuth{errs: []error{nil, nil, errLogin}}
	scraper := &fakeScraper{errs: []error{errScrape}}
	h := newHarness(t, auth, scraper)

	// a login with another password lands while the first scrape is failing
	scraper.before = func() {
		_, err := h.sessions.GetOrRefresh(context.Background(), "anna", "other")
		require.NoError(t, err)
	}

	_, err := h.service.Fetch(context.Background(), "anna", "hunter2")
	require.ErrorIs(t, err, errLogin)
	require.Equal(t, 3, h.auth.Calls())

	_, err = h.service.Fetch(context.Background(), "anna", "other")
	require.NoError(t, err)
	require.Equal(t, 3, h.auth.Calls())
	require.Equal(t, 2, h.scraper.Calls())
}

func TestFetchSingleFlight(t *testing.T) {
	scraper := &fakeScraper{release: make(chan struct{})}
	h := newHarness(t, &fakeAuth{}, scraper)

	const callers = 10
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.service.Fetch(context.Background(), "anna", "hunter2")
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(scraper.release)
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, 1, h.auth.Calls())
	require.Equal(t, 1, h.scraper.Calls())
}

func TestFetchCallerCancellation(t *testing.T) {
	scraper := &fakeScraper{release: make(chan struct{})}
	h := newHarness(t, &fakeAuth{}, scraper)

	cancelled, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := h.service.Fetch(cancelled, "anna", "hunter2")
		first <- err
	}()

	second := make(chan error, 1)
	go func() {
		_, err := h.service.Fetch(context.Background(), "anna", "hunter2")
		second <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	require.ErrorIs(t, <-first, context.Canceled)

	close(scraper.release)
	require.NoError(t, <-second)
	require.Equal(t, 1, h.results.Len())
}
