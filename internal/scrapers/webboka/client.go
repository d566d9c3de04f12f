// client.go sets up the HTTP client shared by every login and scrape against one booking portal.

package webboka

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"time"
	"tvatt-backend/internal/components/assert"
	"tvatt-backend/internal/components/chrono"
	"tvatt-backend/internal/components/telemetry"
	"tvatt-backend/internal/laundry"
	"tvatt-backend/lib/restyutil"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("tvatt.scrapers.webboka")

const (
	loginPath  = "/booking/Default.aspx"
	portalPath = "/booking/Portal.aspx"
	statusPath = "/booking/Machine/MachineGroupStat.aspx"

	userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

const (
	report_client_breaker = "client.breaker"
	report_client_login   = "client.login"
	report_client_scrape  = "client.scrape"
)

var errCircuitOpen = errors.New("circuit breaker open")

type ClientOptions struct {
	// BaseUrl is the portal origin, e.g. https://tvatt.example.se
	BaseUrl string
	// Timeout bounds every single request, defaults to 30 seconds.
	Timeout time.Duration
	// RequestsPerSecond limits outbound requests across all users, defaults to 10.
	RequestsPerSecond float64
	// BreakerFailures is the number of consecutive transport/5xx failures that opens the
	// circuit breaker, defaults to 5.
	BreakerFailures uint32
	// BreakerCooldown is how long the breaker stays open, defaults to 30 seconds.
	BreakerCooldown time.Duration
	// CloudflareBypass wraps the transport with browser-like TLS and headers.
	CloudflareBypass bool
	// Dump receives every request/response pair with credentials redacted, nil disables it.
	Dump restyutil.Output

	Classifier laundry.Classifier
	Clock      chrono.API
	Tel        telemetry.API
}

// Client talks to a RCARD M5 WebBoka booking portal. It keeps no session state of its own,
// every call carries the cookie it should use, so one Client serves every user.
type Client struct {
	baseUrl    *url.URL
	http       *resty.Client
	breaker    *gobreaker.CircuitBreaker
	classifier laundry.Classifier
	clock      chrono.API
	tel        telemetry.API
}

func NewClient(opts ClientOptions) (*Client, error) {
	assert.NotEmptyStr(opts.BaseUrl, "base url")
	assert.NotNil(opts.Clock, "clock")
	assert.NotNil(opts.Tel, "telemetry")

	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 10
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}
	if opts.BreakerCooldown <= 0 {
		opts.BreakerCooldown = 30 * time.Second
	}
	if opts.Classifier.IsZero() {
		opts.Classifier = laundry.DefaultClassifier()
	}

	tel := telemetry.NewScopedAPI("webboka", opts.Tel)

	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}
	if baseUrl.Scheme == "" || baseUrl.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", opts.BaseUrl)
	}

	httpClient := resty.New()
	httpClient.SetBaseURL(baseUrl.String())
	// cookies are per user and handled by hand, a shared jar would leak sessions between users
	httpClient.SetCookieJar(nil)
	httpClient.SetHeader("user-agent", userAgent)
	httpClient.SetRedirectPolicy(resty.RedirectPolicyFunc(func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}))
	httpClient.SetTimeout(opts.Timeout)
	if opts.CloudflareBypass {
		httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)
	}

	rateLimiter := rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), limiterBurst(opts.RequestsPerSecond))
	httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return rateLimiter.Wait(req.Context())
	})

	telemetry.InstrumentResty(httpClient, tel)
	if opts.Dump != nil {
		restyutil.DumpMessages(httpClient, opts.Dump)
	}

	failures := opts.BreakerFailures
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "webboka",
		Timeout: opts.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			tel.ReportWarning(report_client_breaker, from.String(), to.String())
		},
	})

	return &Client{
		baseUrl:    baseUrl,
		http:       httpClient,
		breaker:    breaker,
		classifier: opts.Classifier,
		clock:      opts.Clock,
		tel:        tel,
	}, nil
}

func (c *Client) endpoint(path string) string {
	return c.baseUrl.JoinPath(path).String()
}

// execute runs req through the circuit breaker. A 5xx answer is returned together with a
// *serverError so callers still see the response.
func (c *Client) execute(req *resty.Request, method, path string) (*resty.Response, error) {
	out, err := c.breaker.Execute(func() (any, error) {
		res, err := req.Execute(method, path)
		if err != nil {
			return nil, err
		}
		if res.StatusCode() >= 500 {
			return res, &serverError{status: res.Status()}
		}
		return res, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %w", errCircuitOpen, err)
	}
	res, _ := out.(*resty.Response)
	return res, err
}

// limiterBurst allows one second worth of requests at once, at least one.
func limiterBurst(rps float64) int {
	return max(1, int(math.Ceil(rps)))
}
