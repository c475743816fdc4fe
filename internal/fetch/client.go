package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jmllr/alertchain/internal/config"
	"github.com/jmllr/alertchain/internal/logger"
	"github.com/jmllr/alertchain/internal/metrics"
	"github.com/jmllr/alertchain/internal/models"
)

// retryableStatus lists HTTP statuses worth another attempt.
var retryableStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Client fetches indicator values over HTTP. Transport failures are
// normalized into failed FetchResults, never surfaced as errors: a broken
// indicator must degrade the rows that use it, not the run.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	maxRetries     int
	retryDelayBase time.Duration
	requestMode    string
	requestAsOf    string
}

func NewClient(cfg config.FetchConfig, mode, asOf string) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        cfg.MaxIdleConns,
				MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
				IdleConnTimeout:     cfg.IdleConnTimeout,
			},
		},
		maxRetries:     cfg.MaxRetries,
		retryDelayBase: cfg.RetryDelayBase,
		requestMode:    mode,
		requestAsOf:    asOf,
	}
}

// Fetch executes one indicator request with retries and normalizes the
// response.
func (c *Client) Fetch(ctx context.Context, key RequestKey) models.FetchResult {
	start := time.Now()
	res := c.fetch(ctx, key)
	metrics.FetchDuration.Observe(time.Since(start).Seconds())
	if res.OK {
		metrics.FetchesTotal.WithLabelValues("ok").Inc()
	} else {
		metrics.FetchesTotal.WithLabelValues("fail").Inc()
	}
	return res
}

func (c *Client) fetch(ctx context.Context, key RequestKey) models.FetchResult {
	reqURL := c.requestURL(key)

	var lastErr string
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.retryDelayBase * time.Duration(1<<(attempt-1))
			logger.Debug("retrying fetch: key=%s attempt=%d delay=%s", key, attempt, delay)
			select {
			case <-ctx.Done():
				return models.FetchResult{OK: false, Error: ctx.Err().Error()}
			case <-time.After(delay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return models.FetchResult{OK: false, Error: fmt.Sprintf("build request: %v", err)}
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Sprintf("request failed: %v", err)
			if ctx.Err() != nil {
				break
			}
			continue
		}

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
		resp.Body.Close()

		if retryableStatus[resp.StatusCode] {
			lastErr = fmt.Sprintf("status %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return models.FetchResult{OK: false, Error: fmt.Sprintf("status %d", resp.StatusCode)}
		}
		if readErr != nil {
			lastErr = fmt.Sprintf("read body: %v", readErr)
			continue
		}

		var decoded any
		if err := json.Unmarshal(body, &decoded); err != nil {
			return models.FetchResult{OK: false, Error: fmt.Sprintf("decode body: %v", err)}
		}
		return Normalize(decoded, key.Output)
	}

	return models.FetchResult{OK: false, Error: lastErr}
}

func (c *Client) requestURL(key RequestKey) string {
	q := url.Values{}
	q.Set("name", key.Name)
	q.Set("symbol", key.Symbol)
	q.Set("chart_interval", key.ChartInterval)
	q.Set("indicator_interval", key.IndicatorInterval)
	q.Set("exchange", key.Exchange)
	q.Set("count", strconv.Itoa(key.Count))
	if key.Output != "" {
		q.Set("output", key.Output)
	}
	if key.ParamsJSON != "" {
		q.Set("params", key.ParamsJSON)
	}
	if c.requestMode != "" {
		q.Set("mode", c.requestMode)
	}
	if c.requestMode == "as_of" && c.requestAsOf != "" {
		q.Set("as_of", c.requestAsOf)
	}
	return c.baseURL + "/indicator?" + q.Encode()
}
