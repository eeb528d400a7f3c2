package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// ErrorHook is notified with the endpoint name of every failed upstream call.
type ErrorHook func(endpoint string)

// apiClient is the rate limited, circuit broken JSON client shared by every upstream.
type apiClient struct {
	name    string
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	headers http.Header
	onError ErrorHook
}

// ClientOptions configures an upstream client.
type ClientOptions struct {
	ProxyURL          string
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
	OnError           ErrorHook
}

func newAPIClient(name string, opts ClientOptions) *apiClient {
	transport := &http.Transport{}
	if opts.ProxyURL != "" {
		if u, err := url.Parse(opts.ProxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 5
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	st := gobreaker.Settings{
		Name:     name,
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// 4xx other than 429 does not trip the breaker
			var se *StatusError
			return err == nil || (errors.As(err, &se) && se.Code < 500 && se.Code != http.StatusTooManyRequests)
		},
	}
	return &apiClient{
		name:    name,
		http:    &http.Client{Timeout: opts.Timeout, Transport: transport},
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst),
		breaker: gobreaker.NewCircuitBreaker(st),
		headers: http.Header{},
		onError: opts.OnError,
	}
}

// StatusError is returned for non-200 upstream responses.
type StatusError struct {
	Endpoint string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d, body: %s", e.Endpoint, e.Code, e.Body)
}

// getJSON performs a GET of base+path with query and decodes the JSON body into out.
func (c *apiClient) getJSON(ctx context.Context, endpoint, rawURL string, query url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s %s: %w", c.name, endpoint, err)
	}
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.do(ctx, endpoint, rawURL, query, out)
	})
	if err != nil {
		if c.onError != nil {
			c.onError(c.name + "." + endpoint)
		}
		return fmt.Errorf("%s %s: %w", c.name, endpoint, err)
	}
	return nil
}

func (c *apiClient) do(ctx context.Context, endpoint, rawURL string, query url.Values, out any) error {
	if len(query) > 0 {
		rawURL += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	for k, vs := range c.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Endpoint: endpoint, Code: resp.StatusCode, Body: string(body)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", endpoint, err)
	}
	return nil
}
