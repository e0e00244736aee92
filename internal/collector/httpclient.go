package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"TSIWatch/internal/logger"
)

// httpClient performs rate-limited GETs with exponential backoff on transport
// errors, 429 and 5xx responses.
type httpClient struct {
	client       *http.Client
	limiter      *rate.Limiter
	log          *logger.Logger
	maxRetries   int
	initialDelay time.Duration
	maxDelay     time.Duration
}

func newHTTPClient(proxyURL string, timeout time.Duration, perSecond float64, log *logger.Logger) *httpClient {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if perSecond <= 0 {
		perSecond = 2
	}
	if log == nil {
		log = logger.Nop()
	}
	return &httpClient{
		client:       &http.Client{Timeout: timeout, Transport: transport},
		limiter:      rate.NewLimiter(rate.Limit(perSecond), 1),
		log:          log,
		maxRetries:   3,
		initialDelay: time.Second,
		maxDelay:     10 * time.Second,
	}
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// getJSON decodes the body of a 200 response into out.
func (c *httpClient) getJSON(ctx context.Context, endpoint string, header http.Header, out interface{}) error {
	delay := c.initialDelay
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.log.WithFields(map[string]interface{}{
				"attempt": attempt + 1,
				"delay":   delay.String(),
				"url":     endpoint,
			}).Warnf("retrying request: %v", lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
		retry, err := c.do(ctx, endpoint, header, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry || ctx.Err() != nil {
			return err
		}
	}
	return fmt.Errorf("all %d attempts failed: %w", c.maxRetries+1, lastErr)
}

func (c *httpClient) do(ctx context.Context, endpoint string, header http.Header, out interface{}) (retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return true, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()
	c.log.WithFields(map[string]interface{}{
		"url":      endpoint,
		"status":   resp.StatusCode,
		"duration": time.Since(start).String(),
	}).Debug("http request completed")

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return retryable(resp.StatusCode), fmt.Errorf("status %d, body: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("decode: %w", err)
	}
	return false, nil
}
