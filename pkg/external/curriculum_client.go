package external

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/curriculum-catalog-server/internal/domain"
)

// ErrPayloadTooLarge is wrapped in the FetchError returned for bodies above
// the configured limit.
var ErrPayloadTooLarge = errors.New("catalog payload exceeds size limit")

// CurriculumClient downloads the raw curriculum catalog document
type CurriculumClient struct {
	sourceURL  string
	httpClient *http.Client
	rateLimit  *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	maxBytes   int64
	logger     *logrus.Logger
}

// NewCurriculumClient creates a new curriculum catalog client
func NewCurriculumClient(config domain.CatalogConfig, logger *logrus.Logger) *CurriculumClient {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 1
	}
	if config.MaxPayloadBytes == 0 {
		config.MaxPayloadBytes = 32 << 20
	}

	breakerCfg := config.Breaker
	if breakerCfg.MaxRequests == 0 {
		breakerCfg.MaxRequests = 1
	}
	if breakerCfg.Interval == 0 {
		breakerCfg.Interval = 60 * time.Second
	}
	if breakerCfg.Timeout == 0 {
		breakerCfg.Timeout = 30 * time.Second
	}
	if breakerCfg.MinRequests == 0 {
		breakerCfg.MinRequests = 3
	}
	if breakerCfg.FailureRatio == 0 {
		breakerCfg.FailureRatio = 0.6
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "curriculum-catalog",
		MaxRequests: breakerCfg.MaxRequests,
		Interval:    breakerCfg.Interval,
		Timeout:     breakerCfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= breakerCfg.MinRequests && failureRatio >= breakerCfg.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	return &CurriculumClient{
		sourceURL: config.SourceURL,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimit: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		breaker:   breaker,
		maxBytes:  config.MaxPayloadBytes,
		logger:    logger,
	}
}

// Fetch performs one GET of the catalog document. Transport failures,
// non-2xx responses and oversized bodies are returned as *domain.FetchError.
func (c *CurriculumClient) Fetch(ctx context.Context) ([]byte, error) {
	if err := c.rateLimit.Wait(ctx); err != nil {
		return nil, domain.NewFetchError(c.sourceURL, fmt.Errorf("rate limit wait failed: %w", err))
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.get(ctx)
	})
	if err != nil {
		var fetchErr *domain.FetchError
		if errors.As(err, &fetchErr) {
			return nil, fetchErr
		}
		// gobreaker.ErrOpenState and ErrTooManyRequests
		return nil, domain.NewFetchError(c.sourceURL, err)
	}
	return result.([]byte), nil
}

func (c *CurriculumClient) get(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.sourceURL, nil)
	if err != nil {
		return nil, domain.NewFetchError(c.sourceURL, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewFetchError(c.sourceURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, domain.NewStatusError(c.sourceURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, domain.NewFetchError(c.sourceURL, fmt.Errorf("failed to read response: %w", err))
	}
	if int64(len(body)) > c.maxBytes {
		return nil, domain.NewFetchError(c.sourceURL, fmt.Errorf("%w (%d bytes)", ErrPayloadTooLarge, c.maxBytes))
	}

	c.logger.WithFields(logrus.Fields{
		"url":         c.sourceURL,
		"bytes":       len(body),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("Fetched curriculum catalog")

	return body, nil
}

// SourceURL returns the configured catalog location.
func (c *CurriculumClient) SourceURL() string {
	return c.sourceURL
}

// BreakerState returns the circuit breaker state ("closed", "half-open", "open").
func (c *CurriculumClient) BreakerState() string {
	return c.breaker.State().String()
}
