// Package oracle holds the clients for every external data source the
// dashboard depends on: MON price, protocol TVL, DEX volume, incentive
// campaigns, and the AI commentary. One file per source. All clients
// share the same retrying HTTP transport and degrade per caller policy:
// the refresh survives any single oracle being down.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/mon-metrics/incentive-dashboard/internal/metrics"
)

// newRetryClient builds the shared HTTP transport: three retries with
// short backoff, then give up and let the caller fall back.
func newRetryClient(timeout time.Duration) *http.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = 3
	c.RetryWaitMin = 500 * time.Millisecond
	c.RetryWaitMax = 3 * time.Second
	c.Logger = nil
	c.HTTPClient.Timeout = timeout
	return c.StandardClient()
}

// getJSON fetches url and decodes the body into out.
func getJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// observe records the fetch outcome for one oracle.
func observe(oracle string, start time.Time, err error) {
	metrics.OracleRequestDuration.WithLabelValues(oracle).Observe(time.Since(start).Seconds())
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.OracleRequestsTotal.WithLabelValues(oracle, status).Inc()
	if err == nil {
		metrics.OracleLastSuccess.WithLabelValues(oracle).SetToCurrentTime()
	}
}
