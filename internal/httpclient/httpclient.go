package httpclient

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/gustycube/uplinks/internal/circuitbreaker"
	"github.com/gustycube/uplinks/internal/logging"
	"github.com/gustycube/uplinks/internal/metrics"
	"github.com/gustycube/uplinks/internal/rate"
)

// maxBody caps decoded responses; aut-num objects of large transit networks run to a few hundred KB
const maxBody = 8 << 20

func Default(timeout time.Duration) *http.Client {
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
		MaxIdleConns:          16,
		MaxIdleConnsPerHost:   4,
		ResponseHeaderTimeout: timeout,
		IdleConnTimeout:       30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Transport: tr,
		Timeout:   timeout,
	}
}

// Options configures a Client
type Options struct {
	UA         string
	Timeout    time.Duration
	Retries    int
	RetryWait  time.Duration
	RatePerSec float64
	RateBurst  int
	HTTP       *http.Client
	// Breakers guards each endpoint when set. Nil sends every request.
	Breakers *circuitbreaker.Set
	Log      *logging.Logger
}

// Client performs JSON GETs against RIPE services with optional per-endpoint
// circuit breaking, per-host rate limiting and optional retries.
type Client struct {
	hc       *http.Client
	ua       string
	retries  int
	wait     time.Duration
	limiter  *rate.PerHost
	breakers *circuitbreaker.Set
	log      *logging.Logger
}

func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.HTTP == nil {
		opts.HTTP = Default(opts.Timeout)
	}
	if opts.Log == nil {
		opts.Log = logging.Nop()
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.RetryWait <= 0 {
		opts.RetryWait = 500 * time.Millisecond
	}
	return &Client{
		hc:       opts.HTTP,
		ua:       opts.UA,
		retries:  opts.Retries,
		wait:     opts.RetryWait,
		limiter:  rate.New(opts.RatePerSec, opts.RateBurst),
		breakers: opts.Breakers,
		log:      opts.Log,
	}
}

// NewBreakers returns a breaker set with the default config that reports
// state changes to metrics and log.
func NewBreakers(log *logging.Logger) *circuitbreaker.Set {
	if log == nil {
		log = logging.Nop()
	}
	cfg := circuitbreaker.DefaultConfig()
	cfg.OnStateChange = func(name string, from, to circuitbreaker.State) {
		metrics.BreakerState.WithLabelValues(name).Set(float64(to))
		log.Warnw("circuit breaker state changed", "endpoint", name, "from", from.String(), "to", to.String())
	}
	return circuitbreaker.NewSet(cfg)
}

// Breakers exposes the breaker set for health reporting, nil when disabled
func (c *Client) Breakers() *circuitbreaker.Set {
	return c.breakers
}

func (c *Client) execute(endpoint string, fn func() error) error {
	if c.breakers == nil {
		return fn()
	}
	return c.breakers.Execute(endpoint, fn)
}

// RequestOption adjusts an outgoing request
type RequestOption func(*http.Request)

// WithHeader sets a request header
func WithHeader(key, value string) RequestOption {
	return func(r *http.Request) { r.Header.Set(key, value) }
}

// CloseConnection asks the server to close the connection after the response
func CloseConnection() RequestOption {
	return func(r *http.Request) { r.Close = true }
}

// GetJSON fetches url and decodes a 200 response body into out. endpoint
// names the remote service for breakers, metrics and logs.
func (c *Client) GetJSON(ctx context.Context, endpoint, url string, out interface{}, opts ...RequestOption) error {
	tr := otel.Tracer("uplinks/httpclient")
	ctx, span := tr.Start(ctx, "GET "+endpoint)
	defer span.End()
	span.SetAttributes(attribute.String("http.url", url), attribute.String("uplinks.endpoint", endpoint))

	op := func() error {
		return c.attempt(ctx, endpoint, url, out, opts)
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.wait
	bo.MaxElapsedTime = 30 * time.Second
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.retries)), ctx)

	attempt := 0
	err := backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		attempt++
		c.log.Debugw("retrying lookup", "endpoint", endpoint, "url", url, "attempt", attempt, "wait", wait, "err", err)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.log.Debugw("lookup failed", "endpoint", endpoint, "url", url, "err", err)
		return err
	}
	return nil
}

func (c *Client) attempt(ctx context.Context, endpoint, url string, out interface{}, opts []RequestOption) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	if c.ua != "" {
		req.Header.Set("User-Agent", c.ua)
	}
	req.Header.Set("Accept", "application/json")
	for _, o := range opts {
		o(req)
	}

	if err := c.limiter.Wait(ctx, req.URL.Host); err != nil {
		return backoff.Permanent(err)
	}

	start := time.Now()
	var resp *http.Response
	err = c.execute(endpoint, func() error {
		r, err := c.hc.Do(req)
		if err != nil {
			return err
		}
		// only server-side failures count against the breaker
		if r.StatusCode >= 500 {
			io.Copy(io.Discard, io.LimitReader(r.Body, maxBody))
			r.Body.Close()
			return &HTTPError{StatusCode: r.StatusCode, Status: r.Status, URL: url}
		}
		resp = r
		return nil
	})
	metrics.LookupDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.LookupsTotal.WithLabelValues(endpoint, statusLabel(err)).Inc()
		if errors.Is(err, circuitbreaker.ErrOpenState) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
			return backoff.Permanent(err)
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
		herr := &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status, URL: url}
		metrics.LookupsTotal.WithLabelValues(endpoint, statusLabel(herr)).Inc()
		return backoff.Permanent(herr)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(out); err != nil {
		metrics.LookupsTotal.WithLabelValues(endpoint, "malformed").Inc()
		return backoff.Permanent(fmt.Errorf("%w: %s: %v", ErrMalformed, endpoint, err))
	}
	metrics.LookupsTotal.WithLabelValues(endpoint, "ok").Inc()
	return nil
}

func statusLabel(err error) string {
	var herr *HTTPError
	switch {
	case errors.As(err, &herr):
		return strconv.Itoa(herr.StatusCode)
	case errors.Is(err, circuitbreaker.ErrOpenState), errors.Is(err, circuitbreaker.ErrTooManyRequests):
		return "breaker_open"
	default:
		return "error"
	}
}

// ErrMalformed marks a 200 response whose body could not be decoded
var ErrMalformed = errors.New("malformed response body")

// HTTPError represents a non-200 HTTP response
type HTTPError struct {
	StatusCode int
	Status     string
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("GET %s: %s", e.URL, e.Status)
}

// IsHTTPError checks if an error is an HTTPError
func IsHTTPError(err error) bool {
	var herr *HTTPError
	return errors.As(err, &herr)
}

// StatusCode returns the HTTP status code carried by err, or 0
func StatusCode(err error) int {
	var herr *HTTPError
	if errors.As(err, &herr) {
		return herr.StatusCode
	}
	return 0
}
