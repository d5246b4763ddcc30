package oracle

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/mon-metrics/incentive-dashboard/internal/config"
)

// PriceClient fetches MON/USD pricing from a CoinGecko-compatible API.
type PriceClient struct {
	baseURL string
	apiKey  string
	coinID  string
	client  *http.Client
}

func NewPriceClient(cfg config.Config) *PriceClient {
	return &PriceClient{
		baseURL: cfg.PriceAPIURL,
		apiKey:  cfg.PriceAPIKey,
		coinID:  cfg.MonCoinID,
		client:  newRetryClient(cfg.PriceTimeout),
	}
}

func (c *PriceClient) headers() map[string]string {
	if c.apiKey == "" {
		return nil
	}
	return map[string]string{"x-cg-demo-api-key": c.apiKey}
}

// Price returns the current MON/USD price. Callers apply the documented
// fallback price on error; the refresh never fails on pricing alone.
func (c *PriceClient) Price(ctx context.Context) (float64, error) {
	start := time.Now()
	price, err := c.price(ctx)
	observe("price", start, err)
	return price, err
}

func (c *PriceClient) price(ctx context.Context) (float64, error) {
	url := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd", c.baseURL, c.coinID)

	var result map[string]map[string]float64
	if err := getJSON(ctx, c.client, url, c.headers(), &result); err != nil {
		return 0, fmt.Errorf("price API: %w", err)
	}

	price, ok := result[c.coinID]["usd"]
	if !ok || price <= 0 {
		return 0, fmt.Errorf("price API: no usd quote for %s", c.coinID)
	}
	return price, nil
}

// PriceAt returns the MON/USD price closest to t, from the daily market
// chart around that moment.
func (c *PriceClient) PriceAt(ctx context.Context, t time.Time) (float64, error) {
	start := time.Now()
	price, err := c.priceInRange(ctx, t.Add(-36*time.Hour), t.Add(36*time.Hour), t)
	observe("price", start, err)
	return price, err
}

// TrailingAverage returns the mean price over the windowDays days
// ending at end. Used for the incentive adjustment factor: spend is
// valued at the average price over the distribution window, not at a
// single instant.
func (c *PriceClient) TrailingAverage(ctx context.Context, end time.Time, windowDays int) (float64, error) {
	start := time.Now()
	avg, err := c.trailingAverage(ctx, end, windowDays)
	observe("price", start, err)
	return avg, err
}

func (c *PriceClient) trailingAverage(ctx context.Context, end time.Time, windowDays int) (float64, error) {
	points, err := c.chart(ctx, end.AddDate(0, 0, -windowDays), end)
	if err != nil {
		return 0, err
	}
	if len(points) == 0 {
		return 0, fmt.Errorf("price API: no chart points in window")
	}

	var sum float64
	for _, p := range points {
		sum += p[1]
	}
	return sum / float64(len(points)), nil
}

func (c *PriceClient) priceInRange(ctx context.Context, from, to time.Time, target time.Time) (float64, error) {
	points, err := c.chart(ctx, from, to)
	if err != nil {
		return 0, err
	}
	if len(points) == 0 {
		return 0, fmt.Errorf("price API: no chart points around %s", target.Format("2006-01-02"))
	}

	targetMs := float64(target.UnixMilli())
	best := points[0]
	for _, p := range points[1:] {
		if math.Abs(p[0]-targetMs) < math.Abs(best[0]-targetMs) {
			best = p
		}
	}
	return best[1], nil
}

// chart fetches [timestamp_ms, price] pairs for the given range.
func (c *PriceClient) chart(ctx context.Context, from, to time.Time) ([][2]float64, error) {
	url := fmt.Sprintf("%s/coins/%s/market_chart/range?vs_currency=usd&from=%d&to=%d",
		c.baseURL, c.coinID, from.Unix(), to.Unix())

	var result struct {
		Prices [][2]float64 `json:"prices"`
	}
	if err := getJSON(ctx, c.client, url, c.headers(), &result); err != nil {
		return nil, fmt.Errorf("price API: %w", err)
	}
	return result.Prices, nil
}
