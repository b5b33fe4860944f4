package partner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/flightline-dev/flightline/internal/telemetry"
	"github.com/flightline-dev/flightline/pkg/idempotency"
)

// TokenSource supplies a valid bearer token for a (tenant, partner) pair.
// Satisfied by *tokenstore.Store; kept as an interface here to avoid a
// dependency cycle and to ease testing.
type TokenSource interface {
	GetValid(ctx context.Context, tenant, partner string) (accessToken string, err error)
	// Invalidate forces the next GetValid for (tenant, partner) to perform a
	// fresh exchange, used for the single forced refresh spec.md §4.E
	// obligation 2 requires after an AuthError.
	Invalidate(ctx context.Context, tenant, partner string)
}

// RateLimitConfig is the partner-documented token-bucket parameters
// (spec.md §4.E obligation 1).
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// RetryConfig is the fixed retry policy from spec.md §4.E obligation 2:
// base 1s, multiplier 2, cap 30s, max 3 attempts.
var RetryConfig = struct {
	Base       time.Duration
	Multiplier float64
	Cap        time.Duration
	MaxTries   uint
}{
	Base:       time.Second,
	Multiplier: 2,
	Cap:        30 * time.Second,
	MaxTries:   3,
}

// HTTPClient is an HTTPS JSON-POST partner client shared by every partner
// kind, parameterised by endpoint, signing secret, and rate limit.
type HTTPClient struct {
	kind          string
	endpoint      string
	signingSecret string

	http    *http.Client
	tokens  TokenSource
	cache   *idempotency.Cache
	redact  Redactor
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewHTTPClient builds an HTTPClient for one partner kind.
func NewHTTPClient(kind, endpoint, signingSecret string, rl RateLimitConfig, tokens TokenSource, cache *idempotency.Cache, redact Redactor, logger *slog.Logger) *HTTPClient {
	if redact == nil {
		redact = NoopRedactor{}
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    kind,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			var v float64
			switch to {
			case gobreaker.StateClosed:
				v = 0
			case gobreaker.StateHalfOpen:
				v = 1
			case gobreaker.StateOpen:
				v = 2
			}
			telemetry.PartnerCircuitState.WithLabelValues(name).Set(v)
			if logger != nil {
				logger.Info("partner circuit breaker state change", "partner", name, "from", from, "to", to)
			}
		},
	})

	return &HTTPClient{
		kind:          kind,
		endpoint:      endpoint,
		signingSecret: signingSecret,
		http:          &http.Client{Timeout: 10 * time.Second},
		tokens:        tokens,
		cache:         cache,
		redact:        redact,
		limiter:       rate.NewLimiter(rate.Limit(rl.RPS), rl.Burst),
		breaker:       cb,
		logger:        logger,
	}
}

// Kind implements Client.
func (c *HTTPClient) Kind() string { return c.kind }

// Verify implements Client.
func (c *HTTPClient) Verify(signature string, payload []byte, secret string) bool {
	if secret == "" {
		secret = c.signingSecret
	}
	return VerifySignature(signature, payload, secret)
}

// Send implements Client, applying rate limiting, the idempotency cache,
// token auth, and retry/backoff in the order spec.md §4.E describes.
func (c *HTTPClient) Send(ctx context.Context, tenant string, record Record, idempotencyKey string) (Response, error) {
	redacted, err := c.redact.Redact(record.Payload)
	if err != nil {
		return Response{}, &PermanentError{Err: fmt.Errorf("redacting payload: %w", err)}
	}

	if idempotencyKey == "" {
		var payload any
		if err := json.Unmarshal(redacted, &payload); err != nil {
			return Response{}, &PermanentError{Err: fmt.Errorf("payload is not valid JSON: %w", err)}
		}
		idempotencyKey, err = idempotency.Key(c.kind, payload, "")
		if err != nil {
			return Response{}, &PermanentError{Err: fmt.Errorf("deriving idempotency key: %w", err)}
		}
	}

	if cached, ok := c.cache.Lookup(ctx, c.kind, idempotencyKey); ok {
		var resp Response
		if err := json.Unmarshal(cached.Body, &resp); err == nil {
			resp.FromCache = true
			return resp, nil
		}
	}

	waitStart := time.Now()
	if err := c.limiter.Wait(ctx); err != nil {
		return Response{}, &TransientError{Err: fmt.Errorf("rate limiter: %w", err)}
	}
	telemetry.PartnerRateLimitWaitSeconds.WithLabelValues(c.kind).Observe(time.Since(waitStart).Seconds())

	resp, err := c.sendWithRetry(ctx, tenant, redacted, idempotencyKey)
	if isAuthError(err) {
		c.tokens.Invalidate(ctx, tenant, c.kind)
		resp, err = c.sendWithRetry(ctx, tenant, redacted, idempotencyKey)
	}
	if err != nil {
		return Response{}, err
	}

	if resp.Accepted {
		if body, mErr := json.Marshal(resp); mErr == nil {
			c.cache.Store(ctx, c.kind, idempotencyKey, body)
		}
	}

	return resp, nil
}

func isAuthError(err error) bool {
	_, ok := err.(*AuthError)
	return ok
}

// sendWithRetry runs one attempt sequence through the circuit breaker and
// the fixed exponential-backoff retry policy.
func (c *HTTPClient) sendWithRetry(ctx context.Context, tenant string, payload json.RawMessage, idempotencyKey string) (Response, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = RetryConfig.Base
	eb.Multiplier = RetryConfig.Multiplier
	eb.MaxInterval = RetryConfig.Cap

	attempts := 0
	operation := func() (Response, error) {
		attempts++
		token, err := c.tokens.GetValid(ctx, tenant, c.kind)
		if err != nil {
			return Response{}, backoff.Permanent(fmt.Errorf("fetching partner token: %w", err))
		}

		v, err := c.breaker.Execute(func() (interface{}, error) {
			return c.doSend(ctx, token, payload, idempotencyKey)
		})
		if err != nil {
			var transient *TransientError
			var auth *AuthError
			switch {
			case asTransient(err, &transient):
				if attempts == 1 {
					telemetry.PartnerRetriesTotal.WithLabelValues(c.kind, "transient").Inc()
				}
				return Response{}, transient
			case asAuth(err, &auth):
				return Response{}, backoff.Permanent(auth)
			default:
				return Response{}, backoff.Permanent(err)
			}
		}
		return v.(Response), nil
	}

	return backoff.Retry(ctx, operation, backoff.WithBackOff(eb), backoff.WithMaxTries(RetryConfig.MaxTries))
}

func asTransient(err error, target **TransientError) bool {
	if t, ok := err.(*TransientError); ok {
		*target = t
		return true
	}
	return false
}

func asAuth(err error, target **AuthError) bool {
	if a, ok := err.(*AuthError); ok {
		*target = a
		return true
	}
	return false
}

func (c *HTTPClient) doSend(ctx context.Context, token string, payload json.RawMessage, idempotencyKey string) (Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return Response{}, &PermanentError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Idempotency-Key", idempotencyKey)
	req.Header.Set("X-API-Version", "1.0")

	start := time.Now()
	httpResp, err := c.http.Do(req)
	telemetry.DeliveryAttemptDuration.WithLabelValues(c.kind).Observe(time.Since(start).Seconds())
	if err != nil {
		return Response{}, &TransientError{Err: err}
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return Response{}, &TransientError{Err: err}
	}

	resp := Response{StatusCode: httpResp.StatusCode, Body: body}

	switch {
	case httpResp.StatusCode == http.StatusUnauthorized:
		return Response{}, &AuthError{Err: fmt.Errorf("partner returned 401")}
	case httpResp.StatusCode == http.StatusTooManyRequests:
		return Response{}, &TransientError{Err: fmt.Errorf("partner returned 429")}
	case httpResp.StatusCode >= 500:
		return Response{}, &TransientError{Err: fmt.Errorf("partner returned %d", httpResp.StatusCode)}
	case httpResp.StatusCode >= 400:
		return Response{}, &PermanentError{Err: fmt.Errorf("partner returned %d", httpResp.StatusCode)}
	}

	var parsed struct {
		Accepted   bool   `json:"accepted"`
		ExternalID string `json:"externalId"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		resp.Accepted = parsed.Accepted
		resp.ExternalID = parsed.ExternalID
	} else {
		resp.Accepted = true
	}

	return resp, nil
}
