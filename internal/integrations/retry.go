package integrations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
	"github.com/saga-it/qyburn/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	defaultMaxTries      = 4
	defaultRetryInterval = 250 * time.Millisecond
)

// RetryConfig controls how upstream HTTP calls are retried.
type RetryConfig struct {
	MaxTries        uint
	InitialInterval time.Duration
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxTries == 0 {
		c.MaxTries = defaultMaxTries
	}
	if c.InitialInterval == 0 {
		c.InitialInterval = defaultRetryInterval
	}
	return c
}

// StatusError is returned for non-retryable HTTP failures.
type StatusError struct {
	Service string
	Method  string
	Path    string
	Status  int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s %s: unexpected status %d", e.Service, e.Method, e.Path, e.Status)
}

// jsonCaller issues JSON requests with exponential backoff on transport errors, 429 and 5xx.
type jsonCaller struct {
	service string
	client  *http.Client
	retry   RetryConfig
	header  http.Header
}

// call returns the final HTTP status. A 404 is returned as a status, not an error,
// so callers can decide what missing means for them.
func (c *jsonCaller) call(ctx context.Context, method, url string, body, out any) (int, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal %s request: %w", c.service, err)
		}
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = c.retry.InitialInterval

	start := time.Now()
	status, err := backoff.Retry(ctx, func() (int, error) {
		return c.once(ctx, method, url, payload, out)
	},
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(c.retry.MaxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn().Err(err).Str("service", c.service).Dur("next", next).Msg("Upstream call failed, retrying")
		}),
	)

	telemetry.GetMetrics().UpstreamCallLatency.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(
			attribute.String("service", c.service),
			attribute.Bool("error", err != nil),
		))

	return status, err
}

func (c *jsonCaller) once(ctx context.Context, method, url string, payload []byte, out any) (int, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, backoff.Permanent(err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return resp.StatusCode, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		serr := &StatusError{Service: c.service, Method: method, Path: req.URL.Path, Status: resp.StatusCode}
		if secs, perr := strconv.Atoi(resp.Header.Get("Retry-After")); perr == nil && secs > 0 {
			return 0, backoff.RetryAfter(secs)
		}
		return 0, serr
	case resp.StatusCode >= 400:
		return resp.StatusCode, backoff.Permanent(&StatusError{Service: c.service, Method: method, Path: req.URL.Path, Status: resp.StatusCode})
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, backoff.Permanent(fmt.Errorf("failed to decode %s response: %w", c.service, err))
		}
	}

	return resp.StatusCode, nil
}
