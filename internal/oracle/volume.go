package oracle

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mon-metrics/incentive-dashboard/internal/config"
	"github.com/mon-metrics/incentive-dashboard/internal/model"
)

// VolumeClient fetches DEX trading volume from a DefiLlama-compatible
// dexs summary API.
type VolumeClient struct {
	baseURL string
	client  *http.Client
}

func NewVolumeClient(cfg config.Config) *VolumeClient {
	return &VolumeClient{
		baseURL: cfg.LlamaAPIURL,
		client:  newRetryClient(cfg.MarketTimeout),
	}
}

type llamaDexSummary struct {
	Total7d  *float64     `json:"total7d"`
	Total30d *float64     `json:"total30d"`
	Chart    [][2]float64 `json:"totalDataChart"`
}

// Volume returns the protocol's DEX volume for [start, end] plus the
// API's rolling 7d/30d figures. InRange stays nil when the daily chart
// has no points inside the window; the report then falls back to the
// rolling figures per VolumeBreakdown.Preferred.
func (c *VolumeClient) Volume(ctx context.Context, slug string, startDate, endDate time.Time) (model.VolumeBreakdown, error) {
	start := time.Now()
	breakdown, err := c.volume(ctx, slug, startDate, endDate)
	observe("volume", start, err)
	return breakdown, err
}

func (c *VolumeClient) volume(ctx context.Context, slug string, startDate, endDate time.Time) (model.VolumeBreakdown, error) {
	url := fmt.Sprintf("%s/summary/dexs/%s?excludeTotalDataChart=false&excludeTotalDataChartBreakdown=true",
		c.baseURL, slug)

	var summary llamaDexSummary
	if err := getJSON(ctx, c.client, url, nil, &summary); err != nil {
		return model.VolumeBreakdown{}, fmt.Errorf("volume API %s: %w", slug, err)
	}

	breakdown := model.VolumeBreakdown{
		Last7d:  summary.Total7d,
		Last30d: summary.Total30d,
	}

	// Chart points are [day_unix, volume]; the window is inclusive on
	// both ends.
	from := startDate.Unix()
	to := endDate.Unix() + 24*60*60 - 1
	var (
		sum float64
		hit bool
	)
	for _, p := range summary.Chart {
		ts := int64(p[0])
		if ts >= from && ts <= to {
			sum += p[1]
			hit = true
		}
	}
	if hit {
		breakdown.InRange = model.Float(sum)
	}

	return breakdown, nil
}
