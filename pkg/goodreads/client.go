package goodreads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bookreview/pkg/apperrors"
	"bookreview/pkg/circuitbreaker"
	"bookreview/pkg/config"
	"bookreview/pkg/metrics"
	"bookreview/pkg/models"
	"bookreview/pkg/ratelimit"
)

const maxBodySize = 1 << 20

// Result is the outcome of one lookup. Exactly one of Stats and Err is set.
type Result struct {
	Stats *models.ExternalStats
	Err   error
}

func (r Result) Available() bool {
	return r.Err == nil && r.Stats != nil
}

// Reason names the failure kind, or is empty when stats are available.
func (r Result) Reason() string {
	switch {
	case r.Available():
		return ""
	case errors.Is(r.Err, apperrors.ErrUpstreamRejected):
		return "rejected"
	case errors.Is(r.Err, apperrors.ErrUpstreamMalformed):
		return "malformed"
	default:
		return "unavailable"
	}
}

// Client fetches review counts from the Goodreads API. It never retries.
type Client struct {
	baseURL    string
	key        string
	timeout    time.Duration
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	breaker    *circuitbreaker.CircuitBreaker[*models.ExternalStats]
	logger     *slog.Logger
}

func New(cfg config.GoodreadsConfig, logger *slog.Logger) *Client {
	rps := cfg.RPS
	if rps < 1 {
		rps = 1
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		key:        cfg.Key,
		timeout:    cfg.Timeout,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    ratelimit.New("goodreads", rps),
		breaker: circuitbreaker.New[*models.ExternalStats](circuitbreaker.Settings{
			Name:        "goodreads",
			MaxFailures: cfg.BreakerMaxFailures,
			Timeout:     cfg.BreakerOpenTimeout,
			Window:      cfg.BreakerWindow,
			// A rejected ISBN is a healthy answer from a healthy upstream, and a
			// caller giving up says nothing about the upstream at all.
			IsSuccessful: func(err error) bool {
				return err == nil ||
					errors.Is(err, apperrors.ErrUpstreamRejected) ||
					errors.Is(err, context.Canceled)
			},
		}, logger),
		logger: logger,
	}
}

func (c *Client) Enabled() bool {
	return c.key != ""
}

// Fetch looks up external stats for isbn. Failures are returned inside the
// Result, never as a panic or separate error, so callers can always render
// local data.
func (c *Client) Fetch(ctx context.Context, isbn string) Result {
	if !c.Enabled() {
		metrics.ExternalStatsRequests.WithLabelValues("disabled").Inc()
		return Result{Err: apperrors.Upstream(apperrors.ErrUpstreamUnavailable, "external stats disabled", nil)}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res := c.lookup(ctx, isbn)
	if res.Err != nil {
		res.Stats = nil
		metrics.ExternalStatsRequests.WithLabelValues(res.Reason()).Inc()
		c.logger.WarnContext(ctx, "external stats unavailable",
			slog.String("isbn", isbn),
			slog.String("reason", res.Reason()),
			slog.Any("error", res.Err),
		)
		return res
	}
	metrics.ExternalStatsRequests.WithLabelValues("ok").Inc()
	return res
}

// lookup waits for a local rate-limit token before entering the breaker, so
// a burst of local callers never counts against the upstream's health.
func (c *Client) lookup(ctx context.Context, isbn string) Result {
	if err := c.limiter.Wait(ctx); err != nil {
		return Result{Err: apperrors.Upstream(apperrors.ErrUpstreamUnavailable, "rate limited", err)}
	}

	stats, err := c.breaker.Execute(func() (*models.ExternalStats, error) {
		return c.fetch(ctx, isbn)
	}, nil)
	if errors.Is(err, circuitbreaker.ErrOpen) {
		err = apperrors.Upstream(apperrors.ErrUpstreamUnavailable, "circuit breaker open", err)
	}
	return Result{Stats: stats, Err: err}
}

type reviewCountsResponse struct {
	Books []struct {
		ISBN             string      `json:"isbn"`
		ISBN13           string      `json:"isbn13"`
		RatingsCount     int         `json:"ratings_count"`
		WorkRatingsCount int         `json:"work_ratings_count"`
		AverageRating    json.Number `json:"average_rating"`
	} `json:"books"`
}

func (c *Client) fetch(ctx context.Context, isbn string) (*models.ExternalStats, error) {
	q := url.Values{}
	q.Set("key", c.key)
	q.Set("isbns", isbn)
	endpoint := c.baseURL + "/book/review_counts.json?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, apperrors.Upstream(apperrors.ErrUpstreamUnavailable, "failed to create request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		return nil, apperrors.Upstream(apperrors.ErrUpstreamUnavailable, "request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		return nil, apperrors.Upstream(apperrors.ErrUpstreamRejected,
			fmt.Sprintf("provider returned status %d", resp.StatusCode), nil)
	default:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		return nil, apperrors.Upstream(apperrors.ErrUpstreamUnavailable,
			fmt.Sprintf("provider returned status %d", resp.StatusCode), nil)
	}

	var body reviewCountsResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(&body); err != nil {
		if ctx.Err() != nil {
			return nil, apperrors.Upstream(apperrors.ErrUpstreamUnavailable, "reading response", ctx.Err())
		}
		return nil, apperrors.Upstream(apperrors.ErrUpstreamMalformed, "failed to decode response", err)
	}
	if len(body.Books) == 0 {
		return nil, apperrors.Upstream(apperrors.ErrUpstreamMalformed, "response contains no books", nil)
	}

	entry := body.Books[0]
	avg, err := entry.AverageRating.Float64()
	if err != nil {
		return nil, apperrors.Upstream(apperrors.ErrUpstreamMalformed,
			fmt.Sprintf("average_rating %q is not a number", entry.AverageRating), err)
	}

	return &models.ExternalStats{
		ReviewCount:   entry.WorkRatingsCount,
		AverageRating: avg,
	}, nil
}
